/*Package leach drives the timing side of an ARC ("Leach") CCD controller.

The controller's timing board wants every interval -- integrator time,
settling waits, gate and summing well widths -- as a packed clock code
rather than a physical unit.  This package owns that conversion (Quantize)
and wraps each timing parameter of the DSP in a setter that takes
microseconds, quantizes, transmits, and checks the reply.  It also carries
the slower procedures built on those parameters: the erase procedure, idle
clock control, and the substrate bias relay.

All methods on Controller are safe for concurrent use; commands are
serialized so the request/reply pairing with the hardware cannot be
corrupted by interleaved callers.
*/
package leach

import (
	"sync"

	"github.com/ccdlab/leachgo/arc"
)

// Speed is the dual-slope integrator speed setting
type Speed int

// integrator speeds; the values are what the SGN command expects on the wire
const (
	Slow Speed = 0
	Fast Speed = 1
)

func (s Speed) String() string {
	if s == Fast {
		return "fast"
	}
	return "slow"
}

// Relay switches the substrate bias battery box on or off at a given
// relay drive voltage
type Relay interface {
	Switch(on bool, volts float64) error
}

// Controller is one ARC controller crate.  Exported fields hold the most
// recently loaded settings; they are only applied to hardware by the
// Apply* methods or ApplyAllCCDParams.
type Controller struct {
	CCDParams  CCDParams
	BiasParams BiasParams

	dev   arc.Commander
	relay Relay

	mu sync.Mutex

	// itgSpeed tracks the speed most recently sent with SGN; it is
	// derived from the integration time, not set directly
	itgSpeed Speed
}

// NewController creates a Controller speaking through dev.  relay may be
// nil if the substrate bias relay is not cabled; bias toggles then error.
func NewController(dev arc.Commander, relay Relay) *Controller {
	return &Controller{
		dev:        dev,
		relay:      relay,
		BiasParams: BiasParams{BattRelay: DefaultBattRelayVolts}}
}

// IntegratorSpeed reports the speed most recently applied alongside the
// integration time
func (c *Controller) IntegratorSpeed() Speed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itgSpeed
}
