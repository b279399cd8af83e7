package sds

import "errors"

var (
	// ErrEncoding is returned when a value does not fit its 7-bit wire field.
	ErrEncoding = errors.New("value out of range for 7-bit encoding")

	ErrMalformedHeader = errors.New("malformed dump header")
	ErrMalformedPacket = errors.New("malformed data packet")

	// ErrChecksumMismatch is reported for received packets whose checksum
	// does not match. It is answered with NAK and never fatal by itself.
	ErrChecksumMismatch = errors.New("bad checksum")

	// ErrTruncatedSource means the sample source ended before a complete
	// dump header could be read.
	ErrTruncatedSource = errors.New("truncated source")

	// ErrShortWrite means the transport accepted only part of a message.
	// Partial frames cannot be resumed, so the transfer is aborted.
	ErrShortWrite = errors.New("short write")

	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
	ErrTimedOut           = errors.New("timed out waiting for handshake")
	ErrCancelled          = errors.New("transfer cancelled by receiver")
)
