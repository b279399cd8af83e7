// Package sds implements the MIDI Sample Dump Standard.
package sds

import (
	"bytes"
	"fmt"
)

// DumpHeader is sent to the receiver to provide information about the waveform data that
// is about to be sent in DataPacket messages.
type DumpHeader struct {
	Channel byte
	Number  uint16 // waveform number (max 16383)

	// Sample format.
	BitDepth byte // bits per sample
	Period   uint // sample period in nanoseconds, i.e. 1.000.000.000/samplerate
	Length   uint // total number of samples in waveform

	// Sustain loop.
	LoopStart uint
	LoopEnd   uint
	LoopType  byte
}

// Loop types.
const (
	LoopForward  = byte(0x00)
	LoopPingPong = byte(0x01)
	LoopNone     = byte(0x7F)
)

// Supported sample bit depths.
const (
	MinBitDepth = 8
	MaxBitDepth = 28
)

// DumpRequest is sent by the receiving device who wishes to initiate the dump.
type DumpRequest struct {
	Channel byte
	Number  uint16 // waveform number (max 16383)
}

// DataPacket is used to transfer the actual waveform data. It transfers 127 bytes of
// waveform data at a time.
type DataPacket struct {
	Channel      byte
	PacketNumber byte
	Data         [PayloadSize]byte
	Checksum     byte
}

// ControlPacket is sent to control the data transfer.
type ControlPacket struct {
	Type         ControlPacketType
	Channel      byte
	PacketNumber byte
}

type ControlPacketType byte

const (
	// The receiver sends Ack after successfully receiving a DumpHeader and
	// after each successfully received DataPacket. It means "the last message
	// was received correctly. Proceed with the next message".
	//
	// PacketNumber is the packet that was received correctly (0 if responding
	// to a DumpHeader). The transmitter uses this to determine which particular
	// packet the receiver has accepted (in case packet dumps get out of order).
	Ack = ControlPacketType(0x7F)

	// The receiver sends Nak after unsuccessfully receiving a Dump Header and
	// after each unsuccessfully received Data Packet. It means "the last
	// message was not received correctly. Resend that message".
	//
	// PacketNumber is the packet that was received incorrectly (0 if responding
	// to a Dump Header).
	Nak = ControlPacketType(0x7E)

	// The receiver sends this when it wishes the transmitter to stop the dump.
	//
	// PacketNumber is the packet number upon which the dump is aborted (0 if
	// responding to a Dump Header).
	Cancel = ControlPacketType(0x7D)

	// The receiver sends this when it wants the transmitter to pause the dump
	// operation. The transmitter will send nothing until it receives another
	// message from the receiver; an ACK to continue, a NAK to resend, or a
	// CANCEL to abort the dump. PacketNumber is the packet number upon which
	// the wait was initiated (0 if responding to a Dump Header).
	//
	// This is useful for receivers which need to perform lengthy operations at
	// certain times, such as writing data to floppy disk.
	Wait = ControlPacketType(0x7C)
)

func (t ControlPacketType) String() string {
	switch t {
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Cancel:
		return "CANCEL"
	case Wait:
		return "WAIT"
	default:
		return fmt.Sprintf("ControlPacketType(%#x)", byte(t))
	}
}

// Sysex represents any SDS protocol message.
type Sysex interface {
	// Encode appends the encoding of the message to 'buf'.
	Encode(buf []byte) []byte
}

// Wire sizes of SDS messages, including the F0/F7 framing.
const (
	PayloadSize = 127
	HeaderSize  = 21
	PacketSize  = PayloadSize + 7

	dumpRequestSize   = 7
	controlPacketSize = 6
)

const (
	sysexStart  = 0xF0
	sysexEnd    = 0xF7
	nonRealtime = 0x7E

	idDumpHeader  = 0x01
	idDataPacket  = 0x02
	idDumpRequest = 0x03

	maxNumber = 1<<14 - 1
	max21bit  = 1<<21 - 1
)

func (msg *DumpHeader) Encode(b []byte) []byte {
	b = append(b, sysexStart, nonRealtime, msg.Channel&0x7F, idDumpHeader)
	b = append14bit(b, msg.Number)
	b = append(b, msg.BitDepth&0x7F)
	b = append21bit(b, msg.Period)
	b = append21bit(b, msg.Length)
	b = append21bit(b, msg.LoopStart)
	b = append21bit(b, msg.LoopEnd)
	b = append(b, msg.LoopType&0x7F)
	return append(b, sysexEnd)
}

func (msg *DataPacket) Encode(b []byte) []byte {
	b = append(b, sysexStart, nonRealtime, msg.Channel&0x7F, idDataPacket)
	b = append(b, msg.PacketNumber&0x7F)
	b = append(b, msg.Data[:]...)
	b = append(b, msg.Checksum&0x7F)
	return append(b, sysexEnd)
}

func (msg *DumpRequest) Encode(b []byte) []byte {
	b = append(b, sysexStart, nonRealtime, msg.Channel&0x7F, idDumpRequest)
	b = append14bit(b, msg.Number)
	return append(b, sysexEnd)
}

func (msg *ControlPacket) Encode(b []byte) []byte {
	return append(b, sysexStart, nonRealtime, msg.Channel&0x7F, byte(msg.Type)&0x7F, msg.PacketNumber&0x7F, sysexEnd)
}

func append14bit(b []byte, num uint16) []byte {
	return append(b, byte(num)&0x7F, byte(num>>7)&0x7F)
}

func append21bit(b []byte, num uint) []byte {
	return append(b, byte(num)&0x7F, byte(num>>7)&0x7F, byte(num>>14)&0x7F)
}

// Validate checks that all header fields fit their wire encoding.
func (msg *DumpHeader) Validate() error {
	switch {
	case msg.Channel > 0x7F:
		return fmt.Errorf("%w: channel %d", ErrEncoding, msg.Channel)
	case msg.Number > maxNumber:
		return fmt.Errorf("%w: waveform number %d", ErrEncoding, msg.Number)
	case msg.BitDepth < MinBitDepth || msg.BitDepth > MaxBitDepth:
		return fmt.Errorf("%w: unsupported bit depth %d", ErrEncoding, msg.BitDepth)
	case msg.Period > max21bit:
		return fmt.Errorf("%w: sample period %d", ErrEncoding, msg.Period)
	case msg.Length > max21bit:
		return fmt.Errorf("%w: sample length %d", ErrEncoding, msg.Length)
	case msg.LoopStart > max21bit:
		return fmt.Errorf("%w: loop start %d", ErrEncoding, msg.LoopStart)
	case msg.LoopEnd > max21bit:
		return fmt.Errorf("%w: loop end %d", ErrEncoding, msg.LoopEnd)
	case msg.LoopType > 0x7F:
		return fmt.Errorf("%w: loop type %#x", ErrEncoding, msg.LoopType)
	}
	return nil
}

// EncodeHeader validates and encodes a dump header.
func EncodeHeader(h *DumpHeader) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h.Encode(make([]byte, 0, HeaderSize)), nil
}

// DecodeHeader decodes a complete dump header message.
func DecodeHeader(msg []byte) (*DumpHeader, error) {
	if len(msg) != HeaderSize {
		return nil, fmt.Errorf("%w: bad size %d", ErrMalformedHeader, len(msg))
	}
	if !isSDS(msg) || msg[3] != idDumpHeader {
		return nil, fmt.Errorf("%w: not a dump header", ErrMalformedHeader)
	}
	if i := highBitIndex(msg[2 : HeaderSize-1]); i >= 0 {
		return nil, fmt.Errorf("%w: byte %d has high bit set", ErrMalformedHeader, i+2)
	}
	dec := &DumpHeader{
		Channel:   msg[2],
		Number:    dec14bit(msg[4], msg[5]),
		BitDepth:  msg[6],
		Period:    dec21bit(msg[7], msg[8], msg[9]),
		Length:    dec21bit(msg[10], msg[11], msg[12]),
		LoopStart: dec21bit(msg[13], msg[14], msg[15]),
		LoopEnd:   dec21bit(msg[16], msg[17], msg[18]),
		LoopType:  msg[19],
	}
	if dec.BitDepth < MinBitDepth || dec.BitDepth > MaxBitDepth {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrMalformedHeader, dec.BitDepth)
	}
	return dec, nil
}

// NewDataPacket creates a packet carrying payload. Payloads shorter than
// PayloadSize are zero-padded.
func NewDataPacket(channel, number byte, payload []byte) (*DataPacket, error) {
	switch {
	case channel > 0x7F:
		return nil, fmt.Errorf("%w: channel %d", ErrEncoding, channel)
	case number > 0x7F:
		return nil, fmt.Errorf("%w: packet number %d", ErrEncoding, number)
	case len(payload) > PayloadSize:
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrEncoding, len(payload), PayloadSize)
	}
	if i := highBitIndex(payload); i >= 0 {
		return nil, fmt.Errorf("%w: payload byte %d is %#x", ErrEncoding, i, payload[i])
	}
	p := &DataPacket{Channel: channel, PacketNumber: number}
	copy(p.Data[:], payload)
	p.Checksum = p.ComputeChecksum()
	return p, nil
}

// EncodePacket encodes a data packet carrying payload, zero-padding it to
// PayloadSize bytes.
func EncodePacket(channel, number byte, payload []byte) ([]byte, error) {
	p, err := NewDataPacket(channel, number, payload)
	if err != nil {
		return nil, err
	}
	return p.Encode(make([]byte, 0, PacketSize)), nil
}

// DecodePacket decodes a complete data packet message. A checksum mismatch
// is not an error: it is reported through checksumOK so the caller can
// answer with NAK.
func DecodePacket(msg []byte) (p *DataPacket, checksumOK bool, err error) {
	if len(msg) != PacketSize {
		return nil, false, fmt.Errorf("%w: bad size %d", ErrMalformedPacket, len(msg))
	}
	if !isSDS(msg) || msg[3] != idDataPacket {
		return nil, false, fmt.Errorf("%w: not a data packet", ErrMalformedPacket)
	}
	p = &DataPacket{
		Channel:      msg[2],
		PacketNumber: msg[4],
		Checksum:     msg[PacketSize-2],
	}
	copy(p.Data[:], msg[5:PacketSize-2])
	return p, checksum(msg[1:PacketSize-2]) == p.Checksum, nil
}

var prefix = []byte{sysexStart, nonRealtime}

func isSDS(msg []byte) bool {
	return bytes.HasPrefix(msg, prefix) && msg[len(msg)-1] == sysexEnd
}

// Decode decodes a MIDI SDS message. The buffer must contain a complete MIDI message.
// The checksum of data packets is not verified, use DecodePacket for that.
func Decode(sysex []byte) (Sysex, error) {
	if len(sysex) < 4 {
		return nil, fmt.Errorf("message too short (%d bytes)", len(sysex))
	}
	if !isSDS(sysex) {
		return nil, fmt.Errorf("not an SDS sysex message")
	}
	switch sysex[3] {
	case idDumpHeader:
		return DecodeHeader(sysex)
	case idDataPacket:
		p, _, err := DecodePacket(sysex)
		if err != nil {
			return nil, err
		}
		return p, nil
	case idDumpRequest:
		return decodeDumpRequest(sysex)
	case byte(Wait), byte(Cancel), byte(Nak), byte(Ack):
		return decodeControlPacket(sysex)
	default:
		return nil, fmt.Errorf("invalid message id %x", sysex[3])
	}
}

func decodeDumpRequest(msg []byte) (Sysex, error) {
	if len(msg) != dumpRequestSize {
		return nil, fmt.Errorf("bad size %d for DumpRequest", len(msg))
	}
	dec := &DumpRequest{
		Channel: msg[2],
		Number:  dec14bit(msg[4], msg[5]),
	}
	return dec, nil
}

func decodeControlPacket(msg []byte) (Sysex, error) {
	if len(msg) != controlPacketSize {
		return nil, fmt.Errorf("bad size %d for ControlPacket", len(msg))
	}
	dec := &ControlPacket{
		Channel:      msg[2],
		Type:         ControlPacketType(msg[3]),
		PacketNumber: msg[4],
	}
	return dec, nil
}

func dec14bit(l, h byte) uint16 {
	return uint16(l&0x7F) | uint16(h&0x7F)<<7
}

func dec21bit(l, m, h byte) uint {
	return uint(l&0x7F) | uint(m&0x7F)<<7 | uint(h&0x7F)<<14
}

func highBitIndex(b []byte) int {
	for i, c := range b {
		if c&0x80 != 0 {
			return i
		}
	}
	return -1
}

// ComputeChecksum returns the computed checksum of the packet.
func (msg *DataPacket) ComputeChecksum() byte {
	c := byte(nonRealtime) ^ msg.Channel ^ idDataPacket ^ msg.PacketNumber
	for _, b := range msg.Data {
		c ^= b
	}
	return c & 0x7F
}

// checksum XORs all bytes of b without masking, so corruption of the top
// bit is detected as well.
func checksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c ^= v
	}
	return c
}
