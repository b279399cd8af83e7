package cmdutil

import (
	"bytes"
	"testing"
	"time"
)

func TestConnRead(t *testing.T) {
	t.Parallel()

	c := &Conn{packetCh: make(chan []byte, 2)}
	msg := []byte{0xF0, 0x7E, 0x00, 0x7F, 0x01, 0xF7}
	c.packetCh <- msg

	var buf [4]byte
	n, err := c.Read(buf[:], time.Second)
	if err != nil || n != 4 || !bytes.Equal(buf[:n], msg[:4]) {
		t.Fatalf("first read = %x, %v", buf[:n], err)
	}
	n, _ = c.Read(buf[:], time.Second)
	if !bytes.Equal(buf[:n], msg[4:]) {
		t.Fatalf("second read = %x, want %x", buf[:n], msg[4:])
	}
	if n, _ := c.Read(buf[:], 5*time.Millisecond); n != 0 {
		t.Fatalf("read %d bytes from empty connection", n)
	}
}

func TestIsDevicePath(t *testing.T) {
	t.Parallel()

	if !isDevicePath("/dev/snd/midiC1D0") {
		t.Error("raw device path not recognized")
	}
	if isDevicePath("Elektron Digitakt") {
		t.Error("port name taken for device path")
	}
}
