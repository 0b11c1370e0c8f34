package mavftp

import (
	"encoding/binary"
	"fmt"
)

// Frame is a single MAVFTP header plus payload, as carried inside one
// MAVLink FILE_TRANSFER_PROTOCOL datagram. All integer fields are
// little-endian on the wire.
type Frame struct {
	Seq           uint16
	Session       uint8
	Opcode        OpCode
	Size          uint8
	ReqOpcode     OpCode
	BurstComplete bool
	Offset        uint32
	Payload       []byte
}

// String returns a compact diagnostic representation, grounded on the
// original FTP_OP.__str__ format used in pymavlink's mavftp.py.
func (f Frame) String() string {
	s := fmt.Sprintf("OP seq:%d sess:%d opcode:%s req_opcode:%s size:%d bc:%t ofs:%d plen=%d",
		f.Seq, f.Session, f.Opcode, f.ReqOpcode, f.Size, f.BurstComplete, f.Offset, len(f.Payload))
	if len(f.Payload) > 0 {
		s += fmt.Sprintf(" [%d]", f.Payload[0])
	}
	return s
}

// ErrorCode returns the Nack error code carried in the first payload byte.
// Only meaningful when Opcode == OpNack and len(Payload) >= 1.
func (f Frame) ErrorCode() ErrorCode {
	if len(f.Payload) == 0 {
		return ErrNone
	}
	return ErrorCode(f.Payload[0])
}

// pack encodes the frame into a fixed TotalPayload-byte buffer: a 12-byte
// header followed by payload, zero-padded to TotalPayload bytes.
func (f *Frame) pack() [TotalPayload]byte {
	var buf [TotalPayload]byte

	binary.LittleEndian.PutUint16(buf[0:2], f.Seq)
	buf[2] = f.Session
	buf[3] = byte(f.Opcode)
	buf[4] = f.Size
	buf[5] = byte(f.ReqOpcode)
	if f.BurstComplete {
		buf[6] = 1
	}
	buf[7] = 0 // pad
	binary.LittleEndian.PutUint32(buf[8:12], f.Offset)

	copy(buf[HdrLen:], f.Payload)

	return buf
}

// unpackFrame decodes a frame from a raw MAVLink payload buffer. Buffers
// shorter than HdrLen are malformed and rejected.
func unpackFrame(buf []byte) (Frame, error) {
	if len(buf) < HdrLen {
		return Frame{}, fmt.Errorf("mavftp: malformed frame: %d bytes, want at least %d", len(buf), HdrLen)
	}

	var f Frame
	f.Seq = binary.LittleEndian.Uint16(buf[0:2])
	f.Session = buf[2]
	f.Opcode = OpCode(buf[3])
	f.Size = buf[4]
	f.ReqOpcode = OpCode(buf[5])
	f.BurstComplete = buf[6] != 0
	f.Offset = binary.LittleEndian.Uint32(buf[8:12])

	size := int(f.Size)
	avail := len(buf) - HdrLen
	if size > avail {
		size = avail
	}
	if size > 0 {
		f.Payload = append([]byte(nil), buf[HdrLen:HdrLen+size]...)
	}

	return f, nil
}

// newFrame builds a Frame with the given opcode and payload; size is
// derived from the payload length.
func newFrame(opcode OpCode, offset uint32, payload []byte) Frame {
	return Frame{
		Opcode:  opcode,
		Size:    uint8(len(payload)),
		Offset:  offset,
		Payload: payload,
	}
}
