package metric

import "math"

// cosineCodec rejects the zero vector (undefined direction) and measures
// 1 - cosine similarity.
type cosineCodec struct {
	base
}

func (c *cosineCodec) Kind() Kind { return Cosine }

func (c *cosineCodec) Validate(v Raw) error {
	if err := validateFinite(v, c.dim); err != nil {
		return err
	}
	if norm2(v) == 0 {
		return invalidZeroVector()
	}
	return nil
}

func (c *cosineCodec) Distance(query Raw, rec []byte) float64 {
	if c.quant == Binary {
		return hammingDistance(encodeBinary(query), rec)
	}
	stored := c.Decode(rec)
	qn := math.Sqrt(norm2(query))
	sn := math.Sqrt(norm2(stored))
	if qn == 0 || sn == 0 {
		return 1
	}
	return 1 - dot(query, stored)/(qn*sn)
}
