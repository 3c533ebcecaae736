package arc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConnected is generated when Command is called before Open
	ErrNotConnected = errors.New("arc: conn is nil, not connected to gateway")
)

// RemoteDevice is a connection to an ARC gateway over TCP or RS-232.
// It satisfies Commander.  The zero value is not usable; create one with
// NewRemoteDevice and call Open before issuing commands.
//
// A RemoteDevice is concurrent safe; commands are serialized internally
// so request/reply pairs cannot interleave.
type RemoteDevice struct {
	// Addr is the network address of the gateway, or the device file of
	// the serial line
	Addr string

	// IsSerial selects RS-232 (true) or TCP (false)
	IsSerial bool

	conn    io.ReadWriteCloser
	limiter *rate.Limiter
	mu      sync.Mutex
}

// NewRemoteDevice creates a new RemoteDevice instance.  Commands are
// throttled to the DSP's command turnaround (a few ms between writes).
func NewRemoteDevice(addr string, isSerial bool) *RemoteDevice {
	return &RemoteDevice{
		Addr:     addr,
		IsSerial: isSerial,
		limiter:  rate.NewLimiter(rate.Every(5*time.Millisecond), 1)}
}

// SerialConf yields the serial config used when IsSerial is true
func (rd *RemoteDevice) SerialConf() *serial.Config {
	return &serial.Config{
		Name:        rd.Addr,
		Baud:        115200,
		ReadTimeout: 3 * time.Second}
}

// Open the connection, with exponential backoff on the TCP dial;
// the gateway refuses thrashed connections while it resets the PCIe link
func (rd *RemoteDevice) Open() error {
	wasTimeout := false
	op := func() error {
		err := rd.open()
		if err != nil {
			errS := strings.ToLower(err.Error())
			if strings.Contains(errS, "refused") {
				return err
			}
			wasTimeout = true
			return nil
		}
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err == nil && !wasTimeout {
		return nil
	}
	if wasTimeout {
		return fmt.Errorf("arc: connection timeout to %s", rd.Addr)
	}
	return err
}

func (rd *RemoteDevice) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if rd.IsSerial {
		conn, err = serial.OpenPort(rd.SerialConf())
	} else {
		conn, err = tcpSetup(rd.Addr, 3*time.Second)
	}
	if err != nil {
		return err
	}
	rd.conn = conn
	return nil
}

// Close the connection, nil-ing it out
func (rd *RemoteDevice) Close() error {
	if rd.conn == nil {
		return nil
	}
	err := rd.conn.Close()
	if err == nil {
		rd.conn = nil
	}
	return err
}

// Command frames one command, writes it to the gateway, and performs a
// blocking read for the 32-bit reply word.  It satisfies Commander.
func (rd *RemoteDevice) Command(board int, op uint32, args ...int32) (uint32, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.conn == nil {
		return 0, ErrNotConnected
	}
	frame, err := encodeCommand(board, op, args...)
	if err != nil {
		return 0, err
	}
	time.Sleep(rd.limiter.Reserve().Delay())
	if _, err = rd.conn.Write(frame); err != nil {
		return 0, fmt.Errorf("arc: could not send command %s: %w", Mnemonic(op), err)
	}
	buf := make([]byte, replyFrameLen)
	if _, err = io.ReadFull(rd.conn, buf); err != nil {
		return 0, fmt.Errorf("arc: could not read reply to %s: %w", Mnemonic(op), err)
	}
	return decodeReply(buf)
}

// tcpSetup opens a new TCP connection and sets a timeout on connect only;
// command round trips may legitimately outlast any sane read deadline
// while the DSP walks slow waveforms
func tcpSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}
