/*Package arc speaks the command/reply protocol of ARC ("Leach") CCD
controllers.  The controller is a stack of boards (PCI interface, timing
sequencer, utility) addressed by a board ID; each command is a three-letter
ASCII mnemonic packed into the low 24 bits of a 32-bit word, followed by up
to four integer arguments.  The timing board answers every command with a
single 32-bit reply, 'DON' on success or an error code otherwise.

Most users will not touch this package directly; the leach package wraps it
in physical-unit setters for the CCD parameters.
*/
package arc

import (
	"fmt"
)

// Board IDs for the three boards in an ARC controller crate.
const (
	PCIID  = 1
	TimID  = 2
	UtilID = 3
)

// Command mnemonics understood by the timing board DSP.  Each is the
// three ASCII characters of the mnemonic packed big-endian into the low
// 24 bits, matching the DSP's own header definitions.
const (
	// DON is the reply sent by the DSP when a command is accepted
	DON uint32 = 0x00444F4E // 'DON'

	// ERR is the generic rejection reply
	ERR uint32 = 0x00455252 // 'ERR'

	// CIT sets the dual-slope integrator (charge integration) time
	CIT uint32 = 0x00434954 // 'CIT'

	// SGN sets the integrator gain and speed
	SGN uint32 = 0x0053474E // 'SGN'

	// CPR sets the pre-pedestal settling wait
	CPR uint32 = 0x00435052 // 'CPR'

	// CPO sets the pre-signal settling wait
	CPO uint32 = 0x0043504F // 'CPO'

	// DGW sets the dump gate width
	DGW uint32 = 0x00444757 // 'DGW'

	// OGW sets the output gate width
	OGW uint32 = 0x004F4757 // 'OGW'

	// RSW sets the (skipping) reset gate width
	RSW uint32 = 0x00525357 // 'RSW'

	// SWW sets the summing well width
	SWW uint32 = 0x00535757 // 'SWW'

	// IDL starts idle clocking between exposures
	IDL uint32 = 0x0049444C // 'IDL'

	// STP stops idle clocking
	STP uint32 = 0x00535450 // 'STP'

	// PON switches the analog power supplies on
	PON uint32 = 0x00504F4E // 'PON'

	// POF switches the analog power supplies off
	POF uint32 = 0x00504F46 // 'POF'

	// CLR clears charge off the array
	CLR uint32 = 0x00434C52 // 'CLR'

	// TDL tests the data link by echoing its argument
	TDL uint32 = 0x0054444C // 'TDL'
)

// Commander issues one command to a board of the controller and performs
// a blocking round trip for its 32-bit reply.  Implementations return an
// error only for transport faults; a hardware rejection is expressed
// through the reply word itself.
type Commander interface {
	Command(board int, op uint32, args ...int32) (uint32, error)
}

// Mnemonic unpacks the ASCII mnemonic from a command or reply word,
// e.g. Mnemonic(DON) == "DON".  Non-printable bytes are dropped, so an
// arbitrary error code comes back possibly empty; print those with %X
// instead.
func Mnemonic(w uint32) string {
	b := make([]byte, 0, 3)
	for shift := 16; shift >= 0; shift -= 8 {
		c := byte(w >> uint(shift))
		if c >= 0x20 && c < 0x7F {
			b = append(b, c)
		}
	}
	return string(b)
}

// ReplyError is returned when the controller answers a command with
// anything other than DON.  Code carries the raw reply word.
type ReplyError struct {
	Op   uint32
	Code uint32
}

func (e ReplyError) Error() string {
	return fmt.Sprintf("arc: command %s rejected by controller, reply %X", Mnemonic(e.Op), e.Code)
}

// CheckReply maps a reply word to an error, nil for DON.
func CheckReply(op, reply uint32) error {
	if reply == DON {
		return nil
	}
	return ReplyError{Op: op, Code: reply}
}
