package cmdutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fjl/midisds/sds"
	"gitlab.com/gomidi/midi"
	driver "gitlab.com/gomidi/rtmididrv"
)

type Config struct {
	OutDevice string
	InDevice  string
}

// Device is an open MIDI connection.
type Device interface {
	sds.Transport
	Close() error
}

// Open opens the MIDI connection. Device names starting with /dev/ are
// opened as raw MIDI device files, anything else is looked up among the
// MIDI ports of the system.
func Open(cfg *Config) (Device, error) {
	if isDevicePath(cfg.InDevice) {
		c, err := OpenRaw(cfg.InDevice)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Conn is a connection to a pair of MIDI ports.
type Conn struct {
	packetCh chan []byte // receives all sysex messages
	pending  []byte      // unread part of the last message

	drv *driver.Driver
	in  midi.In
	out midi.Out
}

// OpenPort opens the MIDI ports selected by cfg.
func OpenPort(cfg *Config) (*Conn, error) {
	drv, err := driver.New(driver.IgnoreActiveSense(), driver.IgnoreTimeCode())
	if err != nil {
		return nil, err
	}
	in, out, err := findDevices(drv, cfg)
	if err != nil {
		drv.Close()
		return nil, err
	}
	slog.Info("opening MIDI ports", "input", in.String(), "output", out.String())
	if err := in.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("can't open MIDI input: %v", err)
	}
	if err := out.Open(); err != nil {
		in.Close()
		drv.Close()
		return nil, fmt.Errorf("can't open MIDI output: %v", err)
	}

	var packetCh = make(chan []byte, 512)
	err = in.SetListener(func(msg []byte, deltaT int64) {
		if !isSysex(msg) {
			return
		}
		select {
		case packetCh <- append([]byte(nil), msg...):
		default:
			slog.Warn("dropping sysex message, input queue full")
		}
	})
	if err != nil {
		in.Close()
		out.Close()
		drv.Close()
		return nil, fmt.Errorf("can't listen on MIDI input: %v", err)
	}

	c := &Conn{packetCh: packetCh, drv: drv, in: in, out: out}
	return c, nil
}

func isSysex(msg []byte) bool {
	return len(msg) > 0 && msg[0] == 0xf0 && msg[len(msg)-1] == 0xf7
}

func (c *Conn) Write(msg []byte) (int, error) {
	return c.out.Write(msg)
}

// Read implements sds.Transport. The driver delivers complete sysex
// messages, which are handed out in pieces if p is too small.
func (c *Conn) Read(p []byte, timeout time.Duration) (int, error) {
	if len(c.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case msg := <-c.packetCh:
			c.pending = msg
		case <-timer.C:
			return 0, nil
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Conn) Close() error {
	c.in.StopListening()
	c.in.Close()
	c.out.Close()
	return c.drv.Close()
}

func findDevices(drv *driver.Driver, cfg *Config) (midi.In, midi.Out, error) {
	inputs, err := drv.Ins()
	if err != nil {
		return nil, nil, fmt.Errorf("can't list MIDI inputs: %v", err)
	}
	outputs, err := drv.Outs()
	if err != nil {
		return nil, nil, fmt.Errorf("can't list MIDI outputs: %v", err)
	}
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("no MIDI inputs")
	}

	// Find a matching input device.
	var selectedIn midi.In
	if cfg.InDevice == "" {
		selectedIn = inputs[0]
	} else {
		var inputNames []string
		for _, in := range inputs {
			name := in.String()
			inputNames = append(inputNames, name)
			if strings.Contains(strings.ToLower(name), strings.ToLower(cfg.InDevice)) {
				selectedIn = in
				break
			}
		}
		if selectedIn == nil {
			return nil, nil, fmt.Errorf("can't find MIDI input device %q, have %v", cfg.InDevice, inputNames)
		}
	}

	// Find the output device.
	outDevice := cfg.OutDevice
	if outDevice == "" {
		outDevice = selectedIn.String()
	}
	var selectedOut midi.Out
	var outputNames []string
	for _, out := range outputs {
		outputNames = append(outputNames, out.String())
		if out.String() == outDevice {
			selectedOut = out
			break
		}
	}
	if selectedOut == nil {
		return nil, nil, fmt.Errorf("can't find MIDI output device %q, have %v", outDevice, outputNames)
	}
	return selectedIn, selectedOut, nil
}

// ListDevices prints the MIDI ports of the system.
func ListDevices(w io.Writer) error {
	drv, err := driver.New()
	if err != nil {
		return err
	}
	defer drv.Close()

	inputs, err := drv.Ins()
	if err != nil {
		return fmt.Errorf("can't list MIDI inputs: %v", err)
	}
	outputs, err := drv.Outs()
	if err != nil {
		return fmt.Errorf("can't list MIDI outputs: %v", err)
	}
	for _, in := range inputs {
		fmt.Fprintf(w, "in  %2d  %s\n", in.Number(), in.String())
	}
	for _, out := range outputs {
		fmt.Fprintf(w, "out %2d  %s\n", out.Number(), out.String())
	}
	return nil
}
