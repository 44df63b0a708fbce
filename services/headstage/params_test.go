package headstage

import (
	"strconv"
	"testing"

	"headstage-go/types"
)

func TestAsUint32Bounds(t *testing.T) {
	if v, ok := asUint32(int(42)); !ok || v != 42 {
		t.Fatalf("asUint32(42) = %d, %v", v, ok)
	}
	if v, ok := asUint32(float64(0xFFFFFFFF)); !ok || v != 0xFFFFFFFF {
		t.Fatalf("asUint32(2^32-1) = %d, %v", v, ok)
	}

	// Everything past the register width must be rejected, never truncated.
	rejected := []any{
		int(-1),
		int64(-1),
		int64(0x100000000),
		uint64(1) << 32,
		float64(0x100000000),
		3.5,
		"100",
	}
	if strconv.IntSize == 64 {
		var big int64 = 0x100000005
		rejected = append(rejected, int(big))
	}
	for _, v := range rejected {
		if got, ok := asUint32(v); ok {
			t.Fatalf("asUint32(%v) accepted out-of-range payload as %d", v, got)
		}
	}
}

func TestAsFloatAndBool(t *testing.T) {
	if v, ok := asFloat(int32(7)); !ok || v != 7 {
		t.Fatalf("asFloat(int32) = %v, %v", v, ok)
	}
	if _, ok := asFloat("7"); ok {
		t.Fatal("asFloat accepted a string")
	}
	if on, ok := asBool(1.0); !ok || !on {
		t.Fatalf("asBool(1.0) = %v, %v", on, ok)
	}
	if _, ok := asBool("true"); ok {
		t.Fatal("asBool accepted a string")
	}
	if g, ok := asGain("medium"); !ok || g != types.GainMedium {
		t.Fatalf("asGain = %v, %v", g, ok)
	}
	if _, ok := asGain("loud"); ok {
		t.Fatal("asGain accepted an unknown setting")
	}
}
