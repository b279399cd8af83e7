package sds

import (
	"log/slog"
	"time"
)

// LevelTrace is the log level of per-packet protocol traffic.
const LevelTrace = slog.LevelDebug - 4

// Status is the state of a transfer.
type Status int

const (
	InProgress Status = iota
	Completed
	Cancelled
	TimedOut
	Aborted
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "in progress"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed out"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result reports the outcome of a transfer.
type Result struct {
	Status Status
	Err    error // reason for any status other than Completed

	PacketsSent int // data packets acknowledged by the receiver
	BytesSent   int // all bytes accepted by the transport
	Retries     int // packets and headers sent again after NAK

	PacketsReceived int // data packets accepted, when receiving
	BytesReceived   int // payload bytes accepted, when receiving
}

// Default transfer limits.
const (
	DefaultRetryLimit = 2
	DefaultWaitLimit  = 10
	DefaultTimeout    = 2 * time.Second
)

// Options configures a transfer.
type Options struct {
	// RetryLimit is the number of times a header or packet is sent again
	// after NAK before the transfer is aborted.
	RetryLimit int

	// WaitLimit is the number of consecutive WAIT handshakes or
	// handshake timeouts tolerated for one message.
	WaitLimit int

	// Timeout bounds each wait for a handshake.
	Timeout time.Duration

	Log *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RetryLimit <= 0 {
		o.RetryLimit = DefaultRetryLimit
	}
	if o.WaitLimit <= 0 {
		o.WaitLimit = DefaultWaitLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

// Send transmits msg over t and waits for the receiver to accept every
// packet. It returns when the transfer reaches a terminal status.
func Send(msg *Message, t Transport, opts Options) Result {
	opts = opts.withDefaults()
	s := newSender(msg, t, opts)
	res := s.run()
	logResult(opts.Log, "send finished", res)
	return res
}

// logResult writes the transfer summary. The event that ended a failed
// transfer has already been logged at its own level.
func logResult(log *slog.Logger, what string, res Result) {
	attrs := []any{"status", res.Status, "packets", res.PacketsSent + res.PacketsReceived, "bytes", res.BytesSent}
	if res.Err != nil {
		attrs = append(attrs, "err", res.Err)
	}
	log.Info(what, attrs...)
}
