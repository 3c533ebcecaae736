package leach

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"
)

const (
	// DefaultBattRelayVolts is the relay drive voltage of the standard
	// battery box
	DefaultBattRelayVolts = 4.88

	// DefaultEraseDwell is how long the erase procedure holds the
	// substrate grounded when the settings do not say
	DefaultEraseDwell = 10 * time.Second
)

// relaySettle is how long the substrate takes to settle after the relay
// closes
var relaySettle = 2 * time.Second

// ErrNoRelay is generated when a bias operation is requested on a
// controller built without a relay
var ErrNoRelay = errors.New("leach: no substrate bias relay configured")

// BatteryBoxRelay is the serial-attached relay box that switches the
// substrate bias supply.  It speaks a one-line ASCII protocol:
// "RLY <0|1> <volts>\r" answered with "OK\r" or "ERR\r".
type BatteryBoxRelay struct {
	conn io.ReadWriteCloser
}

// OpenBatteryBoxRelay opens the relay box on a serial device file
func OpenBatteryBoxRelay(dev string) (*BatteryBoxRelay, error) {
	conn, err := serial.OpenPort(&serial.Config{
		Name:        dev,
		Baud:        9600,
		ReadTimeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("leach: could not open bias relay on %s: %w", dev, err)
	}
	return &BatteryBoxRelay{conn: conn}, nil
}

// Switch drives the relay on or off at the given drive voltage.
// It satisfies Relay.
func (r *BatteryBoxRelay) Switch(on bool, volts float64) error {
	state := 0
	if on {
		state = 1
	}
	if _, err := fmt.Fprintf(r.conn, "RLY %d %.2f\r", state, volts); err != nil {
		return fmt.Errorf("leach: could not write to bias relay: %w", err)
	}
	resp, err := bufio.NewReader(r.conn).ReadString('\r')
	if err != nil {
		return fmt.Errorf("leach: could not read bias relay response: %w", err)
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("leach: bias relay refused command, said %q", strings.TrimRight(resp, "\r"))
	}
	return nil
}

// Close the serial line to the relay box
func (r *BatteryBoxRelay) Close() error {
	return r.conn.Close()
}

// CCDBiasToggle switches the substrate bias through the battery box
// relay at the configured drive voltage (BiasParams.BattRelay)
func (c *Controller) CCDBiasToggle(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.relay == nil {
		return ErrNoRelay
	}
	return c.relay.Switch(on, c.BiasParams.BattRelay)
}
