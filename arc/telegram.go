package arc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

// This file implements the framing used between this driver and the
// ARC gateway (the small daemon that owns the PCIe card and exposes the
// controller over a socket or RS-232 line).  A request frame is
//
//	[ start | board | nargs | op u32 | arg0 i32 ... | crc16 ]
//
// and a reply frame is
//
//	[ start | reply u32 | crc16 ]
//
// multi-byte fields little-endian, CRC-16/XMODEM over everything between
// the start byte and the CRC, CRC itself big-endian.

const (
	// frameStart is the start of frame byte
	frameStart = 0xDA

	// maxArgs is the most arguments a DSP command accepts
	maxArgs = 4

	// replyFrameLen is the fixed size of a reply frame
	replyFrameLen = 7
)

var (
	// dataOrder is the byte order of the command and argument fields
	dataOrder = binary.LittleEndian

	crcTable = crc.NewTable(crc.XMODEM)

	// ErrTooManyArgs is generated when a command carries more than maxArgs arguments
	ErrTooManyArgs = errors.New("arc: a command may carry at most 4 arguments")

	// ErrBadFrame is generated when a frame does not begin with the start byte
	ErrBadFrame = errors.New("arc: frame does not begin with the start byte")

	// ErrBadCRC is generated when a frame fails its CRC check
	ErrBadCRC = errors.New("arc: frame failed CRC check")
)

// checksum computes the CRC-16/XMODEM of a frame body
func checksum(body []byte) uint16 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, body)
	return crcTable.CRC16(c)
}

// encodeCommand packs a command for one board into a request frame.
func encodeCommand(board int, op uint32, args ...int32) ([]byte, error) {
	if len(args) > maxArgs {
		return nil, ErrTooManyArgs
	}
	buf := make([]byte, 3, 3+4+4*len(args)+2)
	buf[0] = frameStart
	buf[1] = byte(board)
	buf[2] = byte(len(args))
	var u [4]byte
	dataOrder.PutUint32(u[:], op)
	buf = append(buf, u[:]...)
	for _, a := range args {
		dataOrder.PutUint32(u[:], uint32(a))
		buf = append(buf, u[:]...)
	}
	sum := checksum(buf[1:])
	buf = append(buf, byte(sum>>8), byte(sum))
	return buf, nil
}

// decodeCommand is the inverse of encodeCommand.  It is used by gateway
// implementations and by tests standing in for the hardware.
func decodeCommand(frame []byte) (board int, op uint32, args []int32, err error) {
	if len(frame) < 3+4+2 {
		return 0, 0, nil, fmt.Errorf("arc: command frame too short (%d bytes)", len(frame))
	}
	if frame[0] != frameStart {
		return 0, 0, nil, ErrBadFrame
	}
	body, sum := frame[1:len(frame)-2], frame[len(frame)-2:]
	want := checksum(body)
	if sum[0] != byte(want>>8) || sum[1] != byte(want) {
		return 0, 0, nil, ErrBadCRC
	}
	board = int(frame[1])
	nargs := int(frame[2])
	if len(frame) != 3+4+4*nargs+2 {
		return 0, 0, nil, fmt.Errorf("arc: command frame length %d does not match %d arguments", len(frame), nargs)
	}
	op = dataOrder.Uint32(frame[3:7])
	args = make([]int32, nargs)
	for i := range args {
		args[i] = int32(dataOrder.Uint32(frame[7+4*i : 11+4*i]))
	}
	return board, op, args, nil
}

// encodeReply packs a reply word into a reply frame.
func encodeReply(reply uint32) []byte {
	buf := make([]byte, replyFrameLen)
	buf[0] = frameStart
	dataOrder.PutUint32(buf[1:5], reply)
	sum := checksum(buf[1:5])
	buf[5] = byte(sum >> 8)
	buf[6] = byte(sum)
	return buf
}

// decodeReply unpacks a reply frame into the reply word.
func decodeReply(frame []byte) (uint32, error) {
	if len(frame) != replyFrameLen {
		return 0, fmt.Errorf("arc: reply frame is %d bytes, want %d", len(frame), replyFrameLen)
	}
	if frame[0] != frameStart {
		return 0, ErrBadFrame
	}
	want := checksum(frame[1:5])
	if frame[5] != byte(want>>8) || frame[6] != byte(want) {
		return 0, ErrBadCRC
	}
	return dataOrder.Uint32(frame[1:5]), nil
}
