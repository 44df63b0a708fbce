// Package types holds the shared configuration and state shapes exchanged
// between the headstage service, the CLI and external callers.
package types

// ------------------------
// Camera enumerations
// ------------------------

// FrameRate is the finite set of sensor frame rates, in Hz.
type FrameRate int

const (
	FrameRate10 FrameRate = 10
	FrameRate15 FrameRate = 15
	FrameRate20 FrameRate = 20
	FrameRate25 FrameRate = 25
	FrameRate30 FrameRate = 30
)

// Valid reports whether r is one of the supported rates.
func (r FrameRate) Valid() bool {
	switch r {
	case FrameRate10, FrameRate15, FrameRate20, FrameRate25, FrameRate30:
		return true
	}
	return false
}

// Gain is the sensor analog gain setting. It is not computed: each value maps
// to a fixed raw register word written verbatim.
type Gain string

const (
	GainLow    Gain = "low"
	GainMedium Gain = "medium"
	GainHigh   Gain = "high"
)

func (g Gain) Valid() bool {
	switch g {
	case GainLow, GainMedium, GainHigh:
		return true
	}
	return false
}

// ------------------------
// Device descriptors
// ------------------------

// DeviceKind discriminates the peripheral behind a named device.
type DeviceKind string

const (
	KindStimulator DeviceKind = "stimulator"
	KindMiniscope  DeviceKind = "miniscope"
)

// DeviceInfo is the registration record for a named device on the link.
type DeviceInfo struct {
	Kind    DeviceKind `json:"kind" yaml:"kind"`
	Address uint32     `json:"address" yaml:"address"` // device address on the control link
}

// ------------------------
// Session state (retained on the bus)
// ------------------------

type SessionState struct {
	Level  string `json:"level"`  // "opening", "running", "closed", "error"
	Status string `json:"status"` // freeform short code
	TSms   int64  `json:"ts_ms"`
}

// ------------------------
// Initial parameter sets
// ------------------------

// StimParams are the stimulator's configuration parameters in physical units.
// Currents are microamps, durations and intervals raw unsigned cycle counts.
type StimParams struct {
	Enable             bool    `json:"enable" yaml:"enable"`
	Current1UA         float64 `json:"current1_ua" yaml:"current1_ua"`
	RestCurrentUA      float64 `json:"rest_current_ua" yaml:"rest_current_ua"`
	Current2UA         float64 `json:"current2_ua" yaml:"current2_ua"`
	PulseDur1          uint32  `json:"pulse_dur1" yaml:"pulse_dur1"`
	InterPhaseInterval uint32  `json:"inter_phase_interval" yaml:"inter_phase_interval"`
	PulseDur2          uint32  `json:"pulse_dur2" yaml:"pulse_dur2"`
	InterPulseInterval uint32  `json:"inter_pulse_interval" yaml:"inter_pulse_interval"`
	BurstCount         uint32  `json:"burst_count" yaml:"burst_count"`
	InterBurstInterval uint32  `json:"inter_burst_interval" yaml:"inter_burst_interval"`
	TrainCount         uint32  `json:"train_count" yaml:"train_count"`
	TrainDelay         uint32  `json:"train_delay" yaml:"train_delay"`
	PowerOn            bool    `json:"power_on" yaml:"power_on"`
}

// MiniscopeParams are the camera's live parameters in physical units.
type MiniscopeParams struct {
	FrameRate   FrameRate `json:"frame_rate" yaml:"frame_rate"`
	Gain        Gain      `json:"gain" yaml:"gain"`
	LEDPercent  float64   `json:"led_percent" yaml:"led_percent"`
	LensVoltage float64   `json:"lens_voltage" yaml:"lens_voltage"`
}
