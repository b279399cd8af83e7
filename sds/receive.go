package sds

import (
	"context"
	"fmt"
	"log/slog"
)

// ReceiveOptions configures Receive.
type ReceiveOptions struct {
	Options

	Channel byte
	Number  uint16 // waveform number to request

	// Request makes the receiver ask for the dump with a DumpRequest
	// instead of waiting for the device to start it.
	Request bool
}

// receiver drives the reception of one dump.
type receiver struct {
	t    Transport
	in   sysexReader
	opts ReceiveOptions
	log  *slog.Logger

	header  *DumpHeader
	packets []DataPacket
	want    int // number of packets announced by the header
	retries int
	waits   int
	res     Result
}

// Receive accepts one dump from t, answering each message with the
// appropriate handshake. The returned Message is nil unless the transfer
// completed.
func Receive(t Transport, opts ReceiveOptions) (*Message, Result) {
	opts.Options = opts.Options.withDefaults()
	r := &receiver{t: t, in: sysexReader{t: t}, opts: opts, log: opts.Log}
	r.run()
	logResult(r.log, "receive finished", r.res)
	if r.res.Status != Completed {
		return nil, r.res
	}
	msg := &Message{
		Header:     *r.header,
		Packets:    r.packets,
		ContentLen: int(r.header.Length) * WordSize(int(r.header.BitDepth)),
	}
	return msg, r.res
}

func (r *receiver) run() {
	if r.opts.Request {
		req := &DumpRequest{Channel: r.opts.Channel, Number: r.opts.Number}
		if !r.write(req.Encode(nil)) {
			return
		}
		r.log.Info("requested dump", "channel", r.opts.Channel, "number", r.opts.Number)
	}
	if !r.receiveHeader() {
		return
	}
	for len(r.packets) < r.want && r.res.Status == InProgress {
		r.receivePacket()
	}
	if r.res.Status == InProgress {
		r.res.Status = Completed
	}
}

func (r *receiver) receiveHeader() bool {
	for r.res.Status == InProgress {
		raw := r.read()
		if raw == nil {
			continue
		}
		if id, ok := sdsID(raw); !ok || id != idDumpHeader || raw[2] != r.opts.Channel {
			r.ignore(raw)
			continue
		}
		h, err := DecodeHeader(raw)
		if err != nil {
			r.log.Error("bad dump header", "err", err)
			r.sendControl(Cancel, 0)
			r.abort(err)
			return false
		}
		r.header = h
		r.want = PacketCount(int(h.Length) * WordSize(int(h.BitDepth)))
		r.packets = make([]DataPacket, 0, r.want)
		r.log.Info("received dump header", "number", h.Number, "bits", h.BitDepth, "length", h.Length, "packets", r.want)
		r.waits = 0
		return r.sendControl(Ack, 0)
	}
	return false
}

func (r *receiver) receivePacket() {
	raw := r.read()
	if raw == nil {
		return
	}
	id, ok := sdsID(raw)
	switch {
	case !ok || raw[2] != r.opts.Channel:
		r.ignore(raw)
		return
	case id == byte(Cancel):
		r.log.Warn("transfer cancelled by sender", "packet", len(r.packets))
		r.res.Status = Cancelled
		r.res.Err = ErrCancelled
		return
	case id != idDataPacket:
		r.ignore(raw)
		return
	}

	p, checksumOK, err := DecodePacket(raw)
	if err != nil {
		r.log.Error("bad data packet", "err", err)
		r.sendControl(Cancel, byte(len(r.packets)%128))
		r.abort(err)
		return
	}
	r.waits = 0
	expected := byte(len(r.packets) % 128)
	switch {
	case !checksumOK:
		// The packet number may be corrupt as well, so this is always
		// answered for the expected packet.
		r.reject(expected, fmt.Errorf("%w in packet %d", ErrChecksumMismatch, expected))
	case len(r.packets) > 0 && p.PacketNumber == (expected+127)%128:
		// The sender missed our ACK and repeated the previous packet.
		r.log.Debug("duplicate packet", "number", p.PacketNumber)
		r.sendControl(Ack, p.PacketNumber)
	case p.PacketNumber != expected:
		r.reject(expected, fmt.Errorf("got packet %d, want %d", p.PacketNumber, expected))
	default:
		r.log.Log(context.Background(), LevelTrace, "<< packet", "number", p.PacketNumber)
		r.packets = append(r.packets, *p)
		r.res.PacketsReceived++
		r.res.BytesReceived += PayloadSize
		r.retries = 0
		r.sendControl(Ack, p.PacketNumber)
	}
}

// reject answers the current packet with NAK, or cancels the dump once
// the retry limit is exhausted.
func (r *receiver) reject(number byte, reason error) {
	if r.retries >= r.opts.RetryLimit {
		r.log.Error("cancelling transfer", "number", number, "retries", r.retries, "err", reason)
		r.sendControl(Cancel, number)
		r.abort(fmt.Errorf("%w: %v", ErrRetryLimitExceeded, reason))
		return
	}
	r.retries++
	r.res.Retries++
	r.log.Warn("rejecting packet", "number", number, "retry", r.retries, "err", reason)
	r.sendControl(Nak, number)
}

// read returns the next sysex message, or nil after a timeout.
func (r *receiver) read() []byte {
	raw, err := r.in.next(r.opts.Timeout)
	if err != nil {
		r.log.Error("receive failed", "err", err)
		r.abort(err)
		return nil
	}
	if raw == nil {
		r.poll()
	}
	return raw
}

// poll accounts for a read that produced nothing usable. Messages for
// other channels count too, so unrelated traffic can't keep the
// transfer alive.
func (r *receiver) poll() {
	r.waits++
	if r.waits > r.opts.WaitLimit {
		r.log.Error("no data from sender", "packet", len(r.packets), "polls", r.waits)
		r.res.Status = TimedOut
		r.res.Err = fmt.Errorf("%w: nothing received after %d polls", ErrTimedOut, r.opts.WaitLimit)
		return
	}
	r.log.Debug("waiting for sender", "packet", len(r.packets), "wait", r.waits)
}

func (r *receiver) ignore(raw []byte) {
	r.log.Debug("ignoring message", "msg", fmt.Sprintf("%x", raw))
	r.poll()
}

func (r *receiver) sendControl(typ ControlPacketType, number byte) bool {
	cp := &ControlPacket{Type: typ, Channel: r.opts.Channel, PacketNumber: number}
	r.log.Log(context.Background(), LevelTrace, ">> "+typ.String(), "number", number)
	return r.write(cp.Encode(make([]byte, 0, controlPacketSize)))
}

func (r *receiver) write(msg []byte) bool {
	n, err := writeFull(r.t, msg)
	r.res.BytesSent += n
	if err != nil {
		r.log.Error("send failed", "err", err)
		if r.res.Status == InProgress {
			r.abort(err)
		}
		return false
	}
	return true
}

func (r *receiver) abort(err error) {
	r.res.Status = Aborted
	r.res.Err = err
}

// sdsID returns the sub-ID byte of an SDS message.
func sdsID(msg []byte) (byte, bool) {
	if len(msg) < 5 || !isSDS(msg) {
		return 0, false
	}
	return msg[3], true
}
