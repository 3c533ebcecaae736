package leach

import (
	"fmt"
	"log"
	"time"

	"github.com/ccdlab/leachgo/arc"
)

// SetIdleClocks starts (IDL) or stops (STP) the wave-shuffling the
// sequencer performs between exposures
func (c *Controller) SetIdleClocks(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setIdleClocks(on)
}

func (c *Controller) setIdleClocks(on bool) error {
	op := arc.STP
	if on {
		op = arc.IDL
	}
	reply, err := c.dev.Command(arc.TimID, op)
	if err != nil {
		return fmt.Errorf("leach: could not toggle idle clocks: %w", err)
	}
	return arc.CheckReply(op, reply)
}

// IdleClockToggle drives idle clocking to the state the loaded settings
// ask for.  Run it after the erase procedure or a settings upload so the
// sequencer matches the configuration again.
func (c *Controller) IdleClockToggle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setIdleClocks(c.CCDParams.IdleClocks)
}

// PerformEraseProcedure erases residual charge and trapped states from
// the CCD: idle clocking is stopped, the substrate bias is dropped
// through the battery box relay, the device dwells with the substrate
// grounded, and then bias and idle clocking are restored.  The dwell
// comes from CCDParams.EraseDwell (seconds).
//
// A relay or command failure mid-procedure leaves the CCD without
// substrate bias; the error reports how far the procedure got and the
// operator must re-bias by hand.
func (c *Controller) PerformEraseProcedure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.relay == nil {
		return ErrNoRelay
	}

	dwell := time.Duration(c.CCDParams.EraseDwell * float64(time.Second))
	if dwell <= 0 {
		dwell = DefaultEraseDwell
	}

	log.Println("leach: erase procedure: stopping idle clocks")
	if err := c.setIdleClocks(false); err != nil {
		return fmt.Errorf("erase procedure aborted before touching bias: %w", err)
	}
	log.Println("leach: erase procedure: dropping substrate bias")
	if err := c.relay.Switch(false, c.BiasParams.BattRelay); err != nil {
		return fmt.Errorf("erase procedure failed dropping substrate bias: %w", err)
	}
	time.Sleep(dwell)
	log.Println("leach: erase procedure: restoring substrate bias")
	if err := c.relay.Switch(true, c.BiasParams.BattRelay); err != nil {
		return fmt.Errorf("erase procedure failed restoring substrate bias, CCD is unbiased: %w", err)
	}
	// let the substrate settle before clocks move again
	time.Sleep(relaySettle)
	return c.setIdleClocks(c.CCDParams.IdleClocks)
}
