package sds

import (
	"fmt"
	"time"
)

// Transport is a byte-level duplex channel to a MIDI device. Only one
// transfer may use a Transport at a time.
type Transport interface {
	// Write sends p. It may accept fewer bytes than len(p).
	Write(p []byte) (int, error)

	// Read reads the bytes that are available into p, waiting at most
	// timeout for data to arrive. It returns 0, nil when nothing arrived.
	Read(p []byte, timeout time.Duration) (int, error)
}

// writeFull writes msg and fails with ErrShortWrite if the transport did
// not take all of it.
func writeFull(t Transport, msg []byte) (int, error) {
	n, err := t.Write(msg)
	if err != nil {
		return n, err
	}
	if n != len(msg) {
		return n, fmt.Errorf("%w: only %d of %d bytes sent", ErrShortWrite, n, len(msg))
	}
	return n, nil
}

// sysexReader splits the byte stream of a transport into sysex messages.
type sysexReader struct {
	t   Transport
	in  []byte // unconsumed input
	msg []byte // message being assembled, starts with F0
	buf [512]byte
}

// next returns the next complete sysex message. It returns nil if no
// complete message arrives within timeout.
func (r *sysexReader) next(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for first := true; ; first = false {
		if msg := r.scan(); msg != nil {
			return msg, nil
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			if !first {
				return nil, nil
			}
			wait = 0
		}
		n, err := r.t.Read(r.buf[:], wait)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		r.in = append(r.in, r.buf[:n]...)
	}
}

func (r *sysexReader) scan() []byte {
	for len(r.in) > 0 {
		b := r.in[0]
		r.in = r.in[1:]
		switch {
		case b >= 0xF8:
			// Real-time messages may appear anywhere, even inside sysex.
		case b == sysexStart:
			r.msg = append(r.msg[:0], b)
		case len(r.msg) == 0:
			// Not inside sysex.
		case b == sysexEnd:
			msg := append(r.msg, b)
			r.msg = nil
			return msg
		case b&0x80 != 0:
			// Any other status byte terminates the sysex.
			r.msg = r.msg[:0]
		default:
			r.msg = append(r.msg, b)
		}
	}
	if len(r.in) == 0 {
		r.in = nil
	}
	return nil
}
