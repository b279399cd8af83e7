package sds

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Message is a complete waveform dump: one header followed by its data
// packets. Packet numbers run from 0 and wrap after 127.
type Message struct {
	Header  DumpHeader
	Packets []DataPacket

	// ContentLen is the number of payload bytes holding sample data.
	// Packets don't say how much of their payload is padding, so this is
	// tracked separately. The remainder of the last packet is zero.
	ContentLen int
}

// PacketCount returns the number of packets needed for n payload bytes.
func PacketCount(n int) int {
	return (n + PayloadSize - 1) / PayloadSize
}

func newMessage(h DumpHeader, data []byte) (*Message, error) {
	m := &Message{
		Header:     h,
		Packets:    make([]DataPacket, 0, PacketCount(len(data))),
		ContentLen: len(data),
	}
	for i := 0; len(data) > 0; i++ {
		chunk := data[:min(len(data), PayloadSize)]
		data = data[len(chunk):]
		p, err := NewDataPacket(h.Channel, byte(i%128), chunk)
		if err != nil {
			return nil, err
		}
		m.Packets = append(m.Packets, *p)
	}
	return m, nil
}

// FromSource reads a dump from r. The source holds an encoded dump header
// followed by the raw 7-bit payload stream. The channel and waveform number
// of the header are replaced by the given values.
//
// A final chunk shorter than PayloadSize is accepted and zero-padded.
func FromSource(r io.Reader, channel byte, number uint16, log *slog.Logger) (*Message, error) {
	if log == nil {
		log = slog.Default()
	}

	var hdr [HeaderSize]byte
	if n, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d of %d header bytes", ErrTruncatedSource, n, HeaderSize)
		}
		return nil, fmt.Errorf("can't read header: %w", err)
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	h.Channel = channel
	h.Number = number
	if err := h.Validate(); err != nil {
		return nil, err
	}

	var (
		data  []byte
		chunk [PayloadSize]byte
	)
	for {
		n, err := io.ReadFull(r, chunk[:])
		data = append(data, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			log.Warn("message may contain incomplete packet", "packet", len(data)/PayloadSize, "bytes", n)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("can't read packet %d: %w", len(data)/PayloadSize, err)
		}
	}
	if i := highBitIndex(data); i >= 0 {
		return nil, fmt.Errorf("%w: source byte %d is %#x", ErrEncoding, HeaderSize+i, data[i])
	}
	// The header decides how many packets the receiver expects. Extra
	// data is dropped, missing data shortens the dump.
	ws := WordSize(int(h.BitDepth))
	if declared := int(h.Length) * ws; declared != len(data) {
		log.Warn("declared sample length disagrees with data", "declared", declared, "read", len(data))
		if len(data) > declared {
			data = data[:declared]
		} else {
			h.Length = uint(len(data) / ws)
			data = data[:int(h.Length)*ws]
		}
	}
	return newMessage(*h, data)
}

// FromSamples creates a dump of the given signed samples. The length field
// of h is set to the number of samples.
func FromSamples(h *DumpHeader, samples []int) (*Message, error) {
	h.Length = uint(len(samples))
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return newMessage(*h, PackSamples(nil, samples, int(h.BitDepth)))
}

// Payload returns the content bytes of all packets, without padding.
func (m *Message) Payload() []byte {
	data := make([]byte, 0, len(m.Packets)*PayloadSize)
	for i := range m.Packets {
		data = append(data, m.Packets[i].Data[:]...)
	}
	if len(data) > m.ContentLen {
		data = data[:m.ContentLen]
	}
	return data
}

// Samples decodes the sample data of the dump.
func (m *Message) Samples() []int {
	s := UnpackSamples(nil, m.Payload(), int(m.Header.BitDepth))
	if len(s) > int(m.Header.Length) {
		s = s[:m.Header.Length]
	}
	return s
}

// WriteTo writes the dump in source format: the encoded header followed by
// the payload stream, truncated to ContentLen.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.Header.Encode(make([]byte, 0, HeaderSize)))
	total := int64(n)
	if err != nil {
		return total, err
	}
	remaining := m.ContentLen
	for i := range m.Packets {
		if remaining <= 0 {
			break
		}
		chunk := m.Packets[i].Data[:min(remaining, PayloadSize)]
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
		remaining -= len(chunk)
	}
	return total, nil
}
