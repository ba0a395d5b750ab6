package metric

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// scalarScaleEpsilon keeps the stored scale away from zero for an
// all-zero logical vector, so decode never divides by zero.
const scalarScaleEpsilon = 1e-12

// encodeNone writes v as dim little-endian float64s.
func encodeNone(v Raw) []byte {
	out := make([]byte, len(v)*8)
	for i, x := range v {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(x))
	}
	return out
}

func decodeNone(rec []byte, dim int) Raw {
	out := make(Raw, dim)
	for i := 0; i < dim; i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(rec[i*8:]))
	}
	return out
}

// scalarScale returns the dynamic-range scale s_conf = max_i |x_i| used by
// every ScalarI8 convention in this codebase. The spec's conformal factor
// 1/(1-‖x‖²) motivates *why* Poincaré points near the boundary need the
// extra precision scalar quantization buys them, but the value actually
// persisted and used to dequantize is this per-vector max-abs scale.
func scalarScale(v Raw) float32 {
	var maxAbs float64
	for _, x := range v {
		if a := math.Abs(x); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs < scalarScaleEpsilon {
		maxAbs = scalarScaleEpsilon
	}
	return float32(maxAbs)
}

// encodeScalarI8 quantizes v to N signed bytes plus a 4-byte float32
// scale, shared by the Euclidean/Cosine/Poincaré/Lorentz ScalarI8 codecs.
func encodeScalarI8(v Raw) []byte {
	scale := scalarScale(v)
	out := make([]byte, len(v)+4)
	for i, x := range v {
		q := math.Round(x / float64(scale) * 127)
		if q > 127 {
			q = 127
		} else if q < -127 {
			q = -127
		}
		out[i] = byte(int8(q))
	}
	binary.LittleEndian.PutUint32(out[len(v):], math.Float32bits(scale))
	return out
}

func decodeScalarI8(rec []byte, dim int) Raw {
	scale := math.Float32frombits(binary.LittleEndian.Uint32(rec[dim:]))
	out := make(Raw, dim)
	for i := 0; i < dim; i++ {
		q := int8(rec[i])
		out[i] = float64(q) / 127 * float64(scale)
	}
	return out
}

// encodeBinary packs one sign bit per coordinate (1 = non-negative).
func encodeBinary(v Raw) []byte {
	out := make([]byte, (len(v)+7)/8)
	for i, x := range v {
		if x >= 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func decodeBinary(rec []byte, dim int) Raw {
	out := make(Raw, dim)
	for i := 0; i < dim; i++ {
		if rec[i/8]&(1<<uint(i%8)) != 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

// Encode dispatches to the concrete quantization encoder. Promoted by
// embedding into every concrete Codec, so Euclidean/Cosine/Poincaré/
// Lorentz share one implementation.
func (b base) Encode(v Raw) []byte {
	switch b.quant {
	case ScalarI8:
		return encodeScalarI8(v)
	case Binary:
		return encodeBinary(v)
	default:
		return encodeNone(v)
	}
}

// Decode dispatches to the concrete quantization decoder.
func (b base) Decode(rec []byte) Raw {
	switch b.quant {
	case ScalarI8:
		return decodeScalarI8(rec, b.dim)
	case Binary:
		return decodeBinary(rec, b.dim)
	default:
		return decodeNone(rec, b.dim)
	}
}

// hammingDistance XORs a query's binarized form against a stored binary
// record and counts the differing bits.
func hammingDistance(queryBits, rec []byte) float64 {
	var d int
	for i := range rec {
		d += bits.OnesCount8(queryBits[i] ^ rec[i])
	}
	return float64(d)
}
