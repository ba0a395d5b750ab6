package metric

import "math"

// lorentzCodec validates points on the upper sheet of the two-sheeted
// hyperboloid and measures hyperbolic distance via the Minkowski inner
// product. Binary quantization is rejected at NewCodec time: the time
// component x0 is always positive, so a sign bit carries no information
// for it.
type lorentzCodec struct {
	base
}

func (c *lorentzCodec) Kind() Kind { return Lorentz }

func (c *lorentzCodec) Validate(v Raw) error {
	if err := validateFinite(v, c.dim); err != nil {
		return err
	}
	if v[0] <= 0 {
		return invalidManifold("lorentz time component x0 must be positive")
	}
	spatial := norm2(v[1:])
	if math.Abs(spatial-v[0]*v[0]-(-1)) > lorentzTolerance {
		return invalidManifold("point is off the upper hyperboloid sheet")
	}
	return nil
}

func minkowskiInner(u, v Raw) float64 {
	s := -u[0] * v[0]
	for i := 1; i < len(u); i++ {
		s += u[i] * v[i]
	}
	return s
}

func (c *lorentzCodec) Distance(query Raw, rec []byte) float64 {
	stored := c.Decode(rec)
	arg := -minkowskiInner(query, stored)
	if arg < acoshClamp {
		arg = acoshClamp
	}
	return math.Acosh(arg)
}
