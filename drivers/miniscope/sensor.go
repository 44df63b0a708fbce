package miniscope

// Sensor power sequencing. The order below is a hardware contract derived
// from vendor sensor behaviour: downstream blocks are disabled before the
// clocks and PLL feeding them, and bring-up mirrors shutdown. Do not reorder
// without hardware validation.

type seqStep struct {
	name string
	reg  uint16
	val  uint16
}

// powerDownSeq takes a running sensor to its shut-down state.
var powerDownSeq = []seqStep{
	{"sequencer.disable", sensSequencer, 0x0000},
	{"lvds.disable", sensLVDS, 0x0999},
	{"chargepump.disable", sensChargePump, 0x0000},
	{"bias.disable", sensBias, 0x0000},
	{"afe.disable", sensAFE, 0x0000},
	{"core.shutdown", sensCoreConfig, 0x7006},
	{"colmux.disable", sensColumnMux, 0x0000},
	{"anaclk.disable", sensAnalogClock, 0x4000},
	{"imagecore.softreset", sensImageCore, 0x0000},
	{"logic.disable", sensLogicBlocks, 0x0000},
	{"clkgen.reset", sensClockGenerator, 0x0000},
	{"pll.disable", sensPLLEnable, 0x0099},
	{"pll.reset", sensPLLReset, 0x0000},
}

// powerUpPhase1 ends with clock management phase 2; the sensor needs a
// settling delay after it before the clock generator may be released.
// Omitting that delay is the known source of bring-up flakiness on this
// sensor family.
var powerUpPhase1 = []seqStep{
	{"pll.release", sensPLLReset, 0x0090},
	{"pll.enable", sensPLLEnable, 0x0003},
	{"pll.configure", sensPLLConfig, 0x2113},
	{"clkmgmt.configure", sensClockMgmt1, 0x2280},
	{"lockdetect.configure", sensLockDetect, 0x0080},
	{"clkmgmt.enable", sensClockMgmt2, 0x3D2D},
}

// powerUpPhase2 runs after the settling delay; exposure granularity, shutter
// width and gain are programmed between the logic enable and the soft-reset
// release (see Device.powerUp).
var powerUpPhase2 = []seqStep{
	{"clkgen.release", sensClockGenerator, 0x0007},
	{"logic.enable", sensLogicBlocks, 0x0001},
}

var powerUpPhase3 = []seqStep{
	{"imagecore.release", sensImageCore, 0x0003},
	{"anaclk.enable", sensAnalogClock, 0x4001},
	{"colmux.enable", sensColumnMux, 0x0001},
	{"core.configure", sensCoreConfig, 0x7007},
	{"afe.enable", sensAFE, 0x0001},
	{"bias.enable", sensBias, 0x0001},
	{"chargepump.enable", sensChargePump, 0x0001},
	// LVDS stays disabled as the final safety default until the stream
	// consumer enables it explicitly.
	{"lvds.disable", sensLVDS, 0x0999},
	{"sequencer.enable", sensSequencer, 0x0001},
}

// exposure granularity: one shutter-width unit per line.
const sensExposureGranValue uint16 = 0x0001

func (d *Device) runSeq(prefix string, steps []seqStep) error {
	for _, s := range steps {
		if err := d.pass.WriteSensorRegister(s.reg, s.val); err != nil {
			return seqError(prefix+"."+s.name, err)
		}
	}
	return nil
}
