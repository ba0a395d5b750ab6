package metric

import "math"

// poincareCodec validates points strictly inside the open unit ball and
// measures the conformal hyperbolic distance.
type poincareCodec struct {
	base
}

func (c *poincareCodec) Kind() Kind { return Poincare }

func (c *poincareCodec) Validate(v Raw) error {
	if err := validateFinite(v, c.dim); err != nil {
		return err
	}
	if math.Sqrt(norm2(v)) >= 1-poincareEpsilon {
		return invalidOutsideBall()
	}
	return nil
}

func (c *poincareCodec) Distance(query Raw, rec []byte) float64 {
	if c.quant == Binary {
		return hammingDistance(encodeBinary(query), rec)
	}
	stored := c.Decode(rec)
	nu := norm2(query)
	nv := norm2(stored)
	arg := 1 + 2*norm2(sub(query, stored))/((1-nu)*(1-nv))
	if arg < acoshClamp {
		arg = acoshClamp
	}
	return math.Acosh(arg)
}

func invalidOutsideBall() error {
	return invalidManifold("point lies outside the open Poincaré ball")
}
