// services/headstage/params.go
package headstage

import (
	"headstage-go/bus"
	"headstage-go/types"
)

// Parameter stream names. Each name is one live parameter: a totally ordered
// stream of updates with a retained current value on its topic.
const (
	// Stimulator parameters, one-to-one with registers.
	ParamEnable             = "enable"
	ParamCurrent1           = "current1"
	ParamRestCurrent        = "rest_current"
	ParamCurrent2           = "current2"
	ParamPulseDur1          = "pulse_dur1"
	ParamInterPhaseInterval = "inter_phase_interval"
	ParamPulseDur2          = "pulse_dur2"
	ParamInterPulseInterval = "inter_pulse_interval"
	ParamBurstCount         = "burst_count"
	ParamInterBurstInterval = "inter_burst_interval"
	ParamTrainCount         = "train_count"
	ParamTrainDelay         = "train_delay"
	ParamPowerOn            = "power_on"

	// Trigger is not a configuration parameter: each boolean is forwarded
	// verbatim to the trigger register.
	ParamTrigger = "trigger"

	// Miniscope live parameters.
	ParamLED  = "led"
	ParamGain = "gain"
	ParamLens = "lens"
)

// ParamTopic is the bus topic carrying updates for one parameter of one
// named device. Publish updates retained so the topic always holds the
// authoritative current value for late subscribers.
func ParamTopic(device, param string) bus.Topic {
	return bus.T("device", device, "param", param)
}

// paramPattern matches every parameter stream of one device.
func paramPattern(device string) bus.Topic {
	return bus.T("device", device, "param", bus.Wildcard)
}

// StateTopic carries the session's retained state record.
func StateTopic(device string) bus.Topic {
	return bus.T("device", device, "state")
}

// ---- payload conversion (bus payloads arrive as JSON/YAML-ish values) ----

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func asUint32(v any) (uint32, bool) {
	switch x := v.(type) {
	case uint32:
		return x, true
	case int:
		if x < 0 || int64(x) > 0xFFFFFFFF {
			return 0, false
		}
		return uint32(x), true
	case int64:
		if x < 0 || x > 0xFFFFFFFF {
			return 0, false
		}
		return uint32(x), true
	case uint64:
		if x > 0xFFFFFFFF {
			return 0, false
		}
		return uint32(x), true
	case float64:
		if x < 0 || x > 0xFFFFFFFF || x != float64(uint32(x)) {
			return 0, false
		}
		return uint32(x), true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int:
		return x != 0, true
	case float64:
		return x != 0, true
	default:
		return false, false
	}
}

func asGain(v any) (types.Gain, bool) {
	switch x := v.(type) {
	case types.Gain:
		return x, x.Valid()
	case string:
		g := types.Gain(x)
		return g, g.Valid()
	default:
		return "", false
	}
}
