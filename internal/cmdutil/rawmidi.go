package cmdutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

func isDevicePath(name string) bool {
	return strings.HasPrefix(name, "/dev/")
}

// RawConn is a connection through a raw MIDI device file such as
// /dev/snd/midiC1D0.
type RawConn struct {
	f *os.File
}

// OpenRaw opens a raw MIDI device file for reading and writing.
func OpenRaw(path string) (*RawConn, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("can't open MIDI device: %w", err)
	}
	slog.Info("opened raw MIDI device", "path", path)
	return &RawConn{f: f}, nil
}

func (c *RawConn) Write(p []byte) (int, error) {
	return c.f.Write(p)
}

// Read implements sds.Transport. The device must support read deadlines,
// which is the case for character devices on Linux.
func (c *RawConn) Read(p []byte, timeout time.Duration) (int, error) {
	if err := c.f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("can't set read deadline: %w", err)
	}
	n, err := c.f.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func (c *RawConn) Close() error {
	return c.f.Close()
}
