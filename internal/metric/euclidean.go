package metric

import "math"

// euclideanCodec validates any finite vector and measures plain L2
// distance.
type euclideanCodec struct {
	base
}

func (c *euclideanCodec) Kind() Kind { return Euclidean }

func (c *euclideanCodec) Validate(v Raw) error {
	return validateFinite(v, c.dim)
}

func (c *euclideanCodec) Distance(query Raw, rec []byte) float64 {
	if c.quant == Binary {
		return hammingDistance(encodeBinary(query), rec)
	}
	stored := c.Decode(rec)
	return math.Sqrt(norm2(sub(query, stored)))
}
