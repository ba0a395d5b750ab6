// Package metric implements the metric/codec abstraction: per-geometry
// vector validation, fixed-size on-disk encoding with optional
// quantization, and the distance kernel used by the HNSW index to compare
// a full-precision query against a (possibly quantized) stored record.
package metric

import (
	"math"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// Kind identifies the geometry a collection's vectors live in.
type Kind int

const (
	Euclidean Kind = iota
	Cosine
	Poincare
	Lorentz
)

func (k Kind) String() string {
	switch k {
	case Euclidean:
		return "euclidean"
	case Cosine:
		return "cosine"
	case Poincare:
		return "poincare"
	case Lorentz:
		return "lorentz"
	default:
		return "unknown"
	}
}

// Quantization identifies the on-disk record encoding.
type Quantization int

const (
	None Quantization = iota
	ScalarI8
	Binary
)

func (q Quantization) String() string {
	switch q {
	case None:
		return "none"
	case ScalarI8:
		return "scalar"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Raw is a full-precision logical vector: N elements of float64.
type Raw []float64

// poincareEpsilon bounds how close a Poincaré-ball point may get to the
// unit sphere before validation rejects it.
const poincareEpsilon = 1e-5

// lorentzTolerance bounds how far a point may sit from the hyperboloid
// sheet ‖x_spatial‖² − x₀² = −1 before validation rejects it.
const lorentzTolerance = 1e-4

// acoshClamp is the minimum argument passed to math.Acosh, avoiding NaN
// from floating point round-off driving the argument fractionally below 1.
const acoshClamp = 1 + 1e-15

// Codec validates, encodes, and computes distance for one (Kind,
// Quantization, dimension) combination. Collections bind a single
// concrete Codec at open time, so the hot insert/search paths never
// dispatch on Kind again; Encode, Decode and Distance still switch on the
// bound Quantization on each call.
type Codec interface {
	Kind() Kind
	Quantization() Quantization
	Dim() int
	// RecordSize is the fixed on-disk size in bytes of an encoded record.
	RecordSize() int
	// Validate rejects a logical vector outside the metric's manifold.
	Validate(v Raw) error
	// Encode produces the fixed-size on-disk record for v. Validate must
	// be called (and pass) first; Encode does not re-validate.
	Encode(v Raw) []byte
	// Decode dequantizes a stored record back to a full-precision vector.
	// Used by vacuum and replication, and by Distance for every
	// non-binary record.
	Decode(rec []byte) Raw
	// Distance computes the distance between a full-precision query and a
	// stored (possibly quantized) record.
	Distance(query Raw, rec []byte) float64
}

// NewCodec binds a concrete Codec for the given geometry, quantization
// mode, and dimension. It is the tagged-variant dispatch point; all call
// sites after this bind straight to the concrete implementation.
func NewCodec(kind Kind, quant Quantization, dim int) (Codec, error) {
	if dim < 1 || dim > 16384 {
		return nil, vecerrors.InvalidInputf("dimension %d out of range [1, 16384]", dim)
	}
	if kind == Lorentz && quant == Binary {
		return nil, vecerrors.InvalidInputf("binary quantization is incompatible with the lorentz metric")
	}

	base := base{dim: dim, quant: quant}
	switch kind {
	case Euclidean:
		return &euclideanCodec{base}, nil
	case Cosine:
		return &cosineCodec{base}, nil
	case Poincare:
		return &poincareCodec{base}, nil
	case Lorentz:
		return &lorentzCodec{base}, nil
	default:
		return nil, vecerrors.InvalidInputf("unknown metric kind %d", int(kind))
	}
}

// base holds the fields shared by every Codec implementation.
type base struct {
	dim   int
	quant Quantization
}

func (b base) Dim() int                   { return b.dim }
func (b base) Quantization() Quantization { return b.quant }

func (b base) RecordSize() int {
	switch b.quant {
	case None:
		return b.dim * 8
	case ScalarI8:
		return b.dim + 4
	case Binary:
		return (b.dim + 7) / 8
	default:
		return 0
	}
}

func validateFinite(v Raw, dim int) error {
	if len(v) != dim {
		return vecerrors.InvalidInputf("vector has dimension %d, expected %d", len(v), dim)
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return vecerrors.InvalidInputf("vector contains a non-finite coordinate")
		}
	}
	return nil
}

func norm2(v Raw) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

func sub(u, v Raw) Raw {
	out := make(Raw, len(u))
	for i := range u {
		out[i] = u[i] - v[i]
	}
	return out
}

func dot(u, v Raw) float64 {
	var s float64
	for i := range u {
		s += u[i] * v[i]
	}
	return s
}

func invalidZeroVector() error {
	return vecerrors.InvalidInputf("zero vector has no defined direction for this metric")
}

func invalidManifold(reason string) error {
	return vecerrors.InvalidInputf("%s", reason)
}
