package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/fjl/midisds/internal/cmdutil"
	"github.com/fjl/midisds/sds"
)

func main() {
	// Argument processing.
	var (
		inDevice  = flag.String("dev", "", "MIDI input device, or raw MIDI device path")
		outDevice = flag.String("odev", "", "MIDI output device (default: same as input)")
		channel   = flag.Int("ch", 0, "Sysex channel number")
		slot      = flag.Int("slot", 0, "Waveform slot number")
		retries   = flag.Int("retries", sds.DefaultRetryLimit, "Maximum resends per message after NAK")
		waits     = flag.Int("waits", sds.DefaultWaitLimit, "Maximum consecutive WAIT or timeout polls")
		timeout   = flag.Duration("timeout", sds.DefaultTimeout, "Handshake timeout per poll")
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
		cmdutil.Fatal("need sample file as argument")
	}
	if *channel < 0 || *channel > 127 {
		cmdutil.Fatal("sysex channel out of range 0-127", "ch", *channel)
	}
	if *slot < 0 || *slot > 16383 {
		cmdutil.Fatal("waveform slot out of range 0-16383", "slot", *slot)
	}
	filename := flag.Arg(0)

	msg, err := loadMessage(filename, byte(*channel), uint16(*slot))
	if err != nil {
		cmdutil.Fatal("can't load sample", "file", filename, "err", err)
	}

	// Send the waveform data.
	midiConfig := cmdutil.Config{InDevice: *inDevice, OutDevice: *outDevice}
	conn, err := cmdutil.Open(&midiConfig)
	if err != nil {
		cmdutil.Fatal("can't open MIDI device", "err", err)
	}
	opts := sds.Options{RetryLimit: *retries, WaitLimit: *waits, Timeout: *timeout}
	res := doTransfer(msg, conn, opts)
	conn.Close()
	os.Exit(cmdutil.ExitCode(res.Status))
}

// loadMessage reads a sample file. Audio files are converted to SDS sample
// words, other files are read as raw SDS dumps.
func loadMessage(file string, channel byte, number uint16) (*sds.Message, error) {
	if !cmdutil.IsAudioFile(file) {
		fd, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer fd.Close()
		return sds.FromSource(fd, channel, number, slog.Default())
	}

	waveform, err := cmdutil.ReadWaveform(file)
	if err != nil {
		return nil, err
	}
	if waveform.SampleRate <= 0 {
		waveform.SampleRate = 44100
	}
	header := &sds.DumpHeader{
		Channel:  channel,
		Number:   number,
		BitDepth: byte(waveform.BitDepth),
		Period:   cmdutil.SampleRateToPeriod(waveform.SampleRate),
		LoopType: sds.LoopNone,
	}
	return sds.FromSamples(header, waveform.Samples)
}

// doTransfer sends the given waveform via SDS.
func doTransfer(msg *sds.Message, conn sds.Transport, opts sds.Options) sds.Result {
	slog.Info("requesting transfer", "packets", len(msg.Packets), "samples", msg.Header.Length)
	start := time.Now()
	res := sds.Send(msg, conn, opts)
	if res.Status == sds.Completed {
		slog.Info("transfer done", "elapsed", time.Since(start).Round(time.Millisecond), "bytes", res.BytesSent, "retries", res.Retries)
	}
	return res
}
