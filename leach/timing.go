package leach

import (
	"fmt"
	"log"
	"time"

	"github.com/ccdlab/leachgo/arc"
)

const (
	// maxTimingUS is the longest interval the DSP can encode: 127 coarse
	// steps of 320 ns, with headroom shaved to a round number by the
	// original firmware authors
	maxTimingUS = 163

	// coarseStepNS and fineStepNS are the two step granularities of the
	// clock code
	coarseStepNS = 320
	fineStepNS   = 40
)

// ClockCode is the timing board's packed representation of an interval.
// Bits 23-16 hold the timing byte: bit 7 selects coarse (320 ns) or fine
// (40 ns) steps, bits 6-0 the step count.  All other bits are zero.
type ClockCode uint32

// Coarse reports whether the code uses 320 ns steps
func (c ClockCode) Coarse() bool {
	return c&(0x80<<16) != 0
}

// Steps returns the step count, 0-127
func (c ClockCode) Steps() int {
	return int(c>>16) & 0x7F
}

// Duration returns the interval the code actually encodes, after
// quantization
func (c ClockCode) Duration() time.Duration {
	step := fineStepNS
	if c.Coarse() {
		step = coarseStepNS
	}
	return time.Duration(c.Steps()*step) * time.Nanosecond
}

func (c ClockCode) String() string {
	return fmt.Sprintf("0x%06X (%v)", uint32(c), c.Duration())
}

// Quantize converts an interval in microseconds into the DSP's clock
// code.  Intervals above 163 us are clamped (with a logged warning, since
// the hardware will then not do what the caller asked).  The fractional
// microsecond value is truncated, not rounded, to nanoseconds; the DSP
// tables were built against truncation and rounding here shifts every
// boundary by half a step.
//
// Above 4000 ns only the coarse regime can represent the interval.  At or
// below, the rounding error of each regime is compared and the smaller
// wins, coarse taking ties.
func Quantize(us float64) ClockCode {
	if us > maxTimingUS {
		log.Printf("leach: timing interval %g us out of range (40 ns to 163 us), clamping to 163 us", us)
		us = maxTimingUS
	}
	ns := int(us * 1000)

	var b int
	if ns > 4000 {
		b = (ns / coarseStepNS) | 0x80
	} else {
		// fold each remainder to the nearer step boundary
		coarseRem := ns % coarseStepNS
		if coarseRem > coarseStepNS/2 {
			coarseRem = coarseStepNS - coarseRem
		}
		fineRem := ns % fineStepNS
		if fineRem > fineStepNS/2 {
			fineRem = fineStepNS - fineRem
		}
		if coarseRem <= fineRem {
			b = (ns / coarseStepNS) | 0x80
		} else {
			b = ns / fineStepNS
		}
	}
	return ClockCode(b) << 16
}

// SelectSpeed picks the integrator speed for an integration time: fast
// below 4.5 us, slow at or above
func SelectSpeed(integralTimeUS float64) Speed {
	if integralTimeUS < 4.5 {
		return Fast
	}
	return Slow
}

// applyTiming is the shared shape of every timing parameter setter:
// quantize, transmit to the timing board, check the reply against DON.
func (c *Controller) applyTiming(op uint32, what string, us float64) error {
	code := Quantize(us)
	reply, err := c.dev.Command(arc.TimID, op, int32(code))
	if err != nil {
		return fmt.Errorf("leach: could not set %s: %w", what, err)
	}
	return arc.CheckReply(op, reply)
}

// applyGainAndSpeed sends SGN; the caller holds c.mu
func (c *Controller) applyGainAndSpeed(gain int, speed Speed) error {
	switch gain {
	case 1, 2, 5, 10:
	default:
		return fmt.Errorf("leach: integrator gain must be one of 1, 2, 5, 10, got %d", gain)
	}
	reply, err := c.dev.Command(arc.TimID, arc.SGN, int32(gain), int32(speed))
	if err != nil {
		return fmt.Errorf("leach: could not set gain and speed: %w", err)
	}
	return arc.CheckReply(arc.SGN, reply)
}

// ApplyGainAndSpeed applies a dual-slope integrator gain and speed.  Gain
// must be one of 1, 2, 5 or 10; anything else is rejected before touching
// the hardware.  This is normally driven by ApplyNewIntegralTimeAndGain,
// which picks the speed to match the integration time.
func (c *Controller) ApplyGainAndSpeed(gain int, speed Speed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyGainAndSpeed(gain, speed)
}

// ApplyNewIntegralTimeAndGain applies a new integration time, along with
// the integrator gain and the speed appropriate to the new time (fast
// below 4.5 us).  The gain/speed write goes first; if it is rejected the
// integration time is never sent.  The two writes are not transactional:
// a failure of the second leaves the controller with the new speed and
// gain but the old integration time.
func (c *Controller) ApplyNewIntegralTimeAndGain(integralTimeUS float64, gain int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	code := Quantize(integralTimeUS)
	c.itgSpeed = SelectSpeed(integralTimeUS)
	if err := c.applyGainAndSpeed(gain, c.itgSpeed); err != nil {
		return err
	}
	reply, err := c.dev.Command(arc.TimID, arc.CIT, int32(code))
	if err != nil {
		return fmt.Errorf("leach: could not set integration time: %w", err)
	}
	return arc.CheckReply(arc.CIT, reply)
}

// ApplyNewPedestalIntegralWait applies the settling wait before the
// pedestal of the CDS pair is integrated
func (c *Controller) ApplyNewPedestalIntegralWait(waitUS float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTiming(arc.CPR, "pedestal wait", waitUS)
}

// ApplyNewSignalIntegralWait applies the settling wait before the signal
// of the CDS pair is integrated, after the summing well is exercised
func (c *Controller) ApplyNewSignalIntegralWait(waitUS float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTiming(arc.CPO, "signal wait", waitUS)
}

// ApplyDGWidth applies the dump gate width
func (c *Controller) ApplyDGWidth(widthUS float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTiming(arc.DGW, "DG width", widthUS)
}

// ApplyOGWidth applies the output gate width
func (c *Controller) ApplyOGWidth(widthUS float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTiming(arc.OGW, "OG width", widthUS)
}

// ApplySkippingRGWidth applies the reset gate width used during skipper
// readout
func (c *Controller) ApplySkippingRGWidth(widthUS float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTiming(arc.RSW, "RG width", widthUS)
}

// ApplySummingWellWidth applies the summing well width
func (c *Controller) ApplySummingWellWidth(widthUS float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTiming(arc.SWW, "SW width", widthUS)
}
