package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fjl/midisds/internal/cmdutil"
	"github.com/fjl/midisds/sds"
)

func main() {
	var (
		inDevice  = flag.String("dev", "", "MIDI input device, or raw MIDI device path")
		outDevice = flag.String("odev", "", "MIDI output device (default: same as input)")
		channel   = flag.Int("ch", 0, "Sysex channel number")
		slot      = flag.Int("slot", 0, "Waveform slot number to request")
		request   = flag.Bool("request", false, "Send a dump request instead of waiting for the device")
		retries   = flag.Int("retries", sds.DefaultRetryLimit, "Maximum NAKs per packet before cancelling")
		waits     = flag.Int("waits", 30, "Maximum consecutive polls without data")
		timeout   = flag.Duration("timeout", sds.DefaultTimeout, "Timeout per poll")
		logLevel  = flag.String("log", "info", "Log level (error, warn, info, debug, trace)")
		list      = flag.Bool("list", false, "List MIDI ports and exit")
	)
	flag.Parse()
	if err := cmdutil.SetupLogging(*logLevel); err != nil {
		cmdutil.Fatal("bad -log flag", "err", err)
	}
	if *list {
		if err := cmdutil.ListDevices(os.Stdout); err != nil {
			cmdutil.Fatal("can't list devices", "err", err)
		}
		return
	}
	if flag.NArg() != 1 {
		cmdutil.Fatal("need output file as argument")
	}
	if *channel < 0 || *channel > 127 {
		cmdutil.Fatal("sysex channel out of range 0-127", "ch", *channel)
	}
	if *slot < 0 || *slot > 16383 {
		cmdutil.Fatal("waveform slot out of range 0-16383", "slot", *slot)
	}
	filename := flag.Arg(0)

	midiConfig := cmdutil.Config{InDevice: *inDevice, OutDevice: *outDevice}
	conn, err := cmdutil.Open(&midiConfig)
	if err != nil {
		cmdutil.Fatal("can't open MIDI device", "err", err)
	}
	opts := sds.ReceiveOptions{
		Options: sds.Options{RetryLimit: *retries, WaitLimit: *waits, Timeout: *timeout},
		Channel: byte(*channel),
		Number:  uint16(*slot),
		Request: *request,
	}
	if !*request {
		slog.Info("waiting for dump from device")
	}
	msg, res := sds.Receive(conn, opts)
	conn.Close()
	if res.Status != sds.Completed {
		os.Exit(cmdutil.ExitCode(res.Status))
	}

	if err := save(filename, msg); err != nil {
		cmdutil.Fatal("can't write output", "file", filename, "err", err)
	}
	slog.Info("saved waveform", "file", filename, "samples", msg.Header.Length)
}

// save writes msg as WAV if the file name says so, otherwise in raw dump
// format.
func save(file string, msg *sds.Message) error {
	if strings.EqualFold(filepath.Ext(file), ".wav") {
		return cmdutil.WriteWAV(file, &cmdutil.Waveform{
			Samples:    msg.Samples(),
			BitDepth:   int(msg.Header.BitDepth),
			SampleRate: cmdutil.PeriodToSampleRate(msg.Header.Period),
		})
	}
	fd, err := os.Create(file)
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(fd); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}
