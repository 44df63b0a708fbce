package estim

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"headstage-go/errcode"
)

// Current DAC scaling. The output stage is a symmetric current DAC: full
// negative scale is code 0, full positive scale is the top code.
const (
	// MaxCurrentUA is the symmetric full-scale magnitude in microamps.
	MaxCurrentUA = 2500.0
	// DACBits is the current DAC resolution.
	DACBits = 16

	dacMaxCode = 1<<DACBits - 1
)

func inRange[T constraints.Ordered](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// CurrentCode converts a current in microamps to its DAC code:
//
//	code = round((uA + MAX) / (2*MAX) * (2^BITS - 1))
//
// Inputs outside [-MaxCurrentUA, MaxCurrentUA] are rejected before any
// encoding; a value that would wrap must never reach the DAC.
func CurrentCode(uA float64) (uint32, error) {
	if math.IsNaN(uA) || !inRange(uA, -MaxCurrentUA, MaxCurrentUA) {
		return 0, errcode.New(errcode.OutOfRange, "estim.CurrentCode",
			fmt.Sprintf("current %.1f uA outside [%.0f, %.0f]", uA, -MaxCurrentUA, MaxCurrentUA))
	}
	code := math.Round((uA + MaxCurrentUA) / (2 * MaxCurrentUA) * dacMaxCode)
	return uint32(code), nil
}

// CurrentFromCode is the inverse mapping, exact only on the code grid.
func CurrentFromCode(code uint32) float64 {
	if code > dacMaxCode {
		code = dacMaxCode
	}
	return float64(code)/dacMaxCode*(2*MaxCurrentUA) - MaxCurrentUA
}
