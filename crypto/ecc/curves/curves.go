// Package curves is the registry of supported curve backends.
package curves

import (
	"fmt"

	"github.com/biovote/protocol/crypto/ecc"
	"github.com/biovote/protocol/crypto/ecc/bjj"
	"github.com/biovote/protocol/crypto/ecc/bn254"
)

const (
	// CurveTypeBN254 is the G1 group of the BN254 pairing curve.
	CurveTypeBN254 = bn254.CurveType
	// CurveTypeBabyJubJub is the BabyJubJub twisted Edwards curve.
	CurveTypeBabyJubJub = bjj.CurveType
)

// New creates a point on the curve identified by curveType, set to the
// identity element. It returns an error for unknown types.
func New(curveType string) (ecc.Point, error) {
	switch curveType {
	case CurveTypeBN254:
		return bn254.New(), nil
	case CurveTypeBabyJubJub:
		return bjj.New(), nil
	default:
		return nil, fmt.Errorf("unsupported curve type: %s", curveType)
	}
}
