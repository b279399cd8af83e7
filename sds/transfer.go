package sds

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

type sendState int

const (
	stateHeaderSent sendState = iota
	stateAwaitingHeaderAck
	stateSendingPacket
	stateAwaitingPacketAck
)

// handshake is a control packet type, or noReply when nothing usable
// arrived in time.
type handshake int

const noReply handshake = -1

// sender drives the transmission of one Message.
type sender struct {
	msg  *Message
	t    Transport
	in   sysexReader
	opts Options
	log  *slog.Logger

	state    sendState
	header   []byte
	index    int // current packet
	retries  int // consecutive NAKs for the current message
	waits    int // consecutive WAITs or timeouts for the current message
	progress int
	res      Result
}

func newSender(msg *Message, t Transport, opts Options) *sender {
	return &sender{
		msg:    msg,
		t:      t,
		in:     sysexReader{t: t},
		opts:   opts,
		log:    opts.Log,
		header: msg.Header.Encode(make([]byte, 0, HeaderSize)),
	}
}

func (s *sender) run() Result {
	s.state = stateHeaderSent
	for s.res.Status == InProgress {
		switch s.state {
		case stateHeaderSent:
			if s.write(s.header) {
				s.log.Info("successfully sent dump header", "channel", s.msg.Header.Channel,
					"number", s.msg.Header.Number, "packets", len(s.msg.Packets))
				s.state = stateAwaitingHeaderAck
			}

		case stateAwaitingHeaderAck:
			switch hs := s.handshake(0); hs {
			case handshake(Ack):
				s.log.Debug("<< ACK (header)")
				s.next()
			case handshake(Nak), handshake(Wait):
				if s.retry(fmt.Sprintf("header %v", ControlPacketType(hs))) {
					s.state = stateHeaderSent
				}
			case handshake(Cancel):
				s.cancel()
			default:
				s.wait()
			}

		case stateSendingPacket:
			if s.index == len(s.msg.Packets) {
				s.res.Status = Completed
				break
			}
			p := &s.msg.Packets[s.index]
			if s.write(p.Encode(make([]byte, 0, PacketSize))) {
				s.log.Log(context.Background(), LevelTrace, ">> packet", "index", s.index, "number", p.PacketNumber)
				s.state = stateAwaitingPacketAck
			}

		case stateAwaitingPacketAck:
			number := s.msg.Packets[s.index].PacketNumber
			switch hs := s.handshake(number); hs {
			case handshake(Ack):
				s.log.Log(context.Background(), LevelTrace, "<< ACK", "number", number)
				s.res.PacketsSent++
				s.index++
				s.reportProgress()
				s.next()
			case handshake(Nak):
				if s.retry(fmt.Sprintf("packet %d NAK", number)) {
					s.state = stateSendingPacket
				}
			case handshake(Cancel):
				s.cancel()
			default:
				s.wait()
			}
		}
	}
	return s.res
}

// next moves on to the packet at s.index.
func (s *sender) next() {
	s.retries = 0
	s.waits = 0
	s.state = stateSendingPacket
}

// write sends a complete message. Any failure, including a short write,
// aborts the transfer.
func (s *sender) write(msg []byte) bool {
	n, err := writeFull(s.t, msg)
	s.res.BytesSent += n
	if err != nil {
		s.log.Error("send failed", "err", err)
		s.abort(err)
		return false
	}
	return true
}

// retry accounts for a rejected message. It returns false if the retry
// limit is exhausted.
func (s *sender) retry(what string) bool {
	s.waits = 0
	if s.retries >= s.opts.RetryLimit {
		s.log.Error("giving up after "+what, "retries", s.retries)
		s.abort(fmt.Errorf("%w: %s after %d retries", ErrRetryLimitExceeded, what, s.retries))
		return false
	}
	s.retries++
	s.res.Retries++
	s.log.Warn("resending after "+what, "retry", s.retries, "limit", s.opts.RetryLimit)
	return true
}

// wait accounts for a WAIT handshake or a missing response. The same
// handshake is polled again until the wait limit is reached.
func (s *sender) wait() {
	if s.res.Status != InProgress {
		return
	}
	s.waits++
	if s.waits > s.opts.WaitLimit {
		s.log.Error("no handshake from receiver", "packet", s.index, "polls", s.waits)
		s.res.Status = TimedOut
		s.res.Err = fmt.Errorf("%w: no handshake after %d polls", ErrTimedOut, s.opts.WaitLimit)
		return
	}
	s.log.Debug("waiting for receiver", "packet", s.index, "wait", s.waits)
}

func (s *sender) cancel() {
	s.log.Warn("transfer cancelled by receiver", "packet", s.index)
	s.res.Status = Cancelled
	s.res.Err = ErrCancelled
}

func (s *sender) abort(err error) {
	s.res.Status = Aborted
	s.res.Err = err
}

// handshake reads the receiver's response to the message with the given
// packet number. Messages for other channels, other packets, or which are
// not control packets don't count as a response.
func (s *sender) handshake(number byte) handshake {
	raw, err := s.in.next(s.opts.Timeout)
	if err != nil {
		s.log.Error("receive failed", "err", err)
		s.abort(err)
		return noReply
	}
	if raw == nil {
		return noReply
	}
	msg, err := Decode(raw)
	if err != nil {
		s.log.Debug("ignoring message", "msg", fmt.Sprintf("%x", raw), "err", err)
		return noReply
	}
	cp, ok := msg.(*ControlPacket)
	if !ok || cp.Channel != s.msg.Header.Channel {
		s.log.Debug("ignoring message", "msg", fmt.Sprintf("%#v", msg))
		return noReply
	}
	if cp.PacketNumber != number && cp.Type != Cancel && cp.Type != Wait {
		s.log.Debug("ignoring handshake for other packet", "type", cp.Type, "number", cp.PacketNumber, "want", number)
		return noReply
	}
	if cp.Type == Wait {
		s.log.Debug("<< WAIT", "number", cp.PacketNumber)
	}
	return handshake(cp.Type)
}

// reportProgress logs the completion percentage in steps of 5%.
func (s *sender) reportProgress() {
	total := len(s.msg.Packets)
	p := int(math.Round(float64(s.index) / float64(total) * 100))
	if p-s.progress >= 5 || (p == 100 && s.progress != 100) {
		s.progress = p
		s.log.Debug("progress", "percent", p)
	}
}
