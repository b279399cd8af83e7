package sds

import (
	"bytes"
	"errors"
	"testing"
)

// dumpReads returns the wire form of msg as a series of reads.
func dumpReads(msg *Message) [][]byte {
	reads := [][]byte{msg.Header.Encode(nil)}
	for i := range msg.Packets {
		reads = append(reads, msg.Packets[i].Encode(nil))
	}
	return reads
}

func receiveOptions() ReceiveOptions {
	return ReceiveOptions{Options: testOptions(new(bytes.Buffer)), Channel: 3}
}

func TestReceiveComplete(t *testing.T) {
	sent := testMessage(t, 3)
	ft := &fakeTransport{reads: dumpReads(sent)}
	msg, res := Receive(ft, receiveOptions())

	if res.Status != Completed {
		t.Fatalf("status = %v (%v), want completed", res.Status, res.Err)
	}
	if res.PacketsReceived != 3 {
		t.Fatalf("PacketsReceived = %d, want 3", res.PacketsReceived)
	}
	if msg.Header != sent.Header {
		t.Fatalf("header = %+v, want %+v", msg.Header, sent.Header)
	}
	if msg.ContentLen != sent.ContentLen {
		t.Fatalf("ContentLen = %d, want %d", msg.ContentLen, sent.ContentLen)
	}
	if !samplesEqual(msg.Samples(), sent.Samples()) {
		t.Fatal("received samples differ")
	}

	want := [][]byte{control(Ack, 3, 0), control(Ack, 3, 0), control(Ack, 3, 1), control(Ack, 3, 2)}
	if len(ft.writes) != len(want) {
		t.Fatalf("got %d handshakes, want %d", len(ft.writes), len(want))
	}
	for i := range want {
		if !bytes.Equal(ft.writes[i], want[i]) {
			t.Fatalf("handshake %d = %x, want %x", i, ft.writes[i], want[i])
		}
	}
}

func TestReceiveChecksumNak(t *testing.T) {
	sent := testMessage(t, 2)
	reads := dumpReads(sent)
	corrupt := append([]byte{}, reads[1]...)
	corrupt[10] ^= 0x01
	reads = append(reads[:1], append([][]byte{corrupt}, reads[1:]...)...)

	ft := &fakeTransport{reads: reads}
	msg, res := Receive(ft, receiveOptions())
	if res.Status != Completed {
		t.Fatalf("status = %v (%v), want completed", res.Status, res.Err)
	}
	if res.Retries != 1 {
		t.Fatalf("Retries = %d, want 1", res.Retries)
	}
	if !bytes.Equal(ft.writes[1], control(Nak, 3, 0)) {
		t.Fatalf("second handshake = %x, want NAK 0", ft.writes[1])
	}
	if !samplesEqual(msg.Samples(), sent.Samples()) {
		t.Fatal("received samples differ")
	}
}

func TestReceiveRetryLimit(t *testing.T) {
	sent := testMessage(t, 1)
	reads := dumpReads(sent)
	corrupt := append([]byte{}, reads[1]...)
	corrupt[20] ^= 0x02
	reads = [][]byte{reads[0], corrupt, corrupt, corrupt}

	ft := &fakeTransport{reads: reads}
	msg, res := Receive(ft, receiveOptions())
	if msg != nil || res.Status != Aborted || !errors.Is(res.Err, ErrRetryLimitExceeded) {
		t.Fatalf("status = %v (%v), want aborted with ErrRetryLimitExceeded", res.Status, res.Err)
	}
	if last := ft.writes[len(ft.writes)-1]; !bytes.Equal(last, control(Cancel, 3, 0)) {
		t.Fatalf("last handshake = %x, want CANCEL", last)
	}
}

func TestReceiveDuplicate(t *testing.T) {
	sent := testMessage(t, 2)
	reads := dumpReads(sent)
	reads = [][]byte{reads[0], reads[1], reads[1], reads[2]}

	ft := &fakeTransport{reads: reads}
	_, res := Receive(ft, receiveOptions())
	if res.Status != Completed || res.PacketsReceived != 2 || res.Retries != 0 {
		t.Fatalf("status = %v, packets = %d, retries = %d", res.Status, res.PacketsReceived, res.Retries)
	}
}

func TestReceiveRequest(t *testing.T) {
	sent := testMessage(t, 1)
	opts := receiveOptions()
	opts.Request = true
	opts.Number = 1
	ft := &fakeTransport{reads: dumpReads(sent)}
	_, res := Receive(ft, opts)
	if res.Status != Completed {
		t.Fatalf("status = %v (%v), want completed", res.Status, res.Err)
	}
	req := (&DumpRequest{Channel: 3, Number: 1}).Encode(nil)
	if !bytes.Equal(ft.writes[0], req) {
		t.Fatalf("first write = %x, want dump request %x", ft.writes[0], req)
	}
}

func TestReceiveCancel(t *testing.T) {
	sent := testMessage(t, 2)
	reads := dumpReads(sent)
	reads = [][]byte{reads[0], reads[1], control(Cancel, 3, 1)}
	_, res := Receive(&fakeTransport{reads: reads}, receiveOptions())
	if res.Status != Cancelled || res.PacketsReceived != 1 {
		t.Fatalf("status = %v, packets = %d, want cancelled/1", res.Status, res.PacketsReceived)
	}
}

func TestReceiveTimeout(t *testing.T) {
	_, res := Receive(new(fakeTransport), receiveOptions())
	if res.Status != TimedOut || !errors.Is(res.Err, ErrTimedOut) {
		t.Fatalf("status = %v (%v), want timed out", res.Status, res.Err)
	}
}

func TestReceiveMalformed(t *testing.T) {
	sent := testMessage(t, 1)
	reads := dumpReads(sent)
	short := append(append([]byte{}, reads[1][:50]...), sysexEnd)
	_, res := Receive(&fakeTransport{reads: [][]byte{reads[0], short}}, receiveOptions())
	if res.Status != Aborted || !errors.Is(res.Err, ErrMalformedPacket) {
		t.Fatalf("status = %v (%v), want aborted with ErrMalformedPacket", res.Status, res.Err)
	}

	badHeader := modify(reads[0], 6, 0x01)
	_, res = Receive(&fakeTransport{reads: [][]byte{badHeader}}, receiveOptions())
	if res.Status != Aborted || !errors.Is(res.Err, ErrMalformedHeader) {
		t.Fatalf("status = %v (%v), want aborted with ErrMalformedHeader", res.Status, res.Err)
	}
}

func TestSendReceive(t *testing.T) {
	// A sender's output fed to a receiver yields the same dump.
	sent := testMessage(t, 5)
	reads := dumpReads(sent)
	rt := &fakeTransport{reads: reads}
	msg, res := Receive(rt, receiveOptions())
	if res.Status != Completed {
		t.Fatalf("receive: %v (%v)", res.Status, res.Err)
	}
	st := &fakeTransport{reads: rt.writes}
	if sres := Send(msg, st, testOptions(new(bytes.Buffer))); sres.Status != Completed {
		t.Fatalf("send: %v (%v)", sres.Status, sres.Err)
	}
	for i, w := range st.writes {
		if !bytes.Equal(w, reads[i]) {
			t.Fatalf("resent message %d differs", i)
		}
	}
}

func TestReceiveCorruptPacketNumber(t *testing.T) {
	sent := testMessage(t, 2)
	reads := dumpReads(sent)
	// Packet 1 arrives with its number bit-flipped to look like packet 0.
	corrupt := append([]byte{}, reads[2]...)
	corrupt[4] ^= 0x01
	reads = [][]byte{reads[0], reads[1], corrupt, reads[2]}

	ft := &fakeTransport{reads: reads}
	msg, res := Receive(ft, receiveOptions())
	if res.Status != Completed {
		t.Fatalf("status = %v (%v), want completed", res.Status, res.Err)
	}
	if !bytes.Equal(ft.writes[2], control(Nak, 3, 1)) {
		t.Fatalf("reply to corrupt packet = %x, want NAK 1", ft.writes[2])
	}
	if res.Retries != 1 || res.PacketsReceived != 2 {
		t.Fatalf("retries = %d, packets = %d, want 1/2", res.Retries, res.PacketsReceived)
	}
	if !samplesEqual(msg.Samples(), sent.Samples()) {
		t.Fatal("received samples differ")
	}
}

func TestReceiveOtherChannelTraffic(t *testing.T) {
	sent := testMessage(t, 1)
	reads := dumpReads(sent)
	noise := [][]byte{reads[0]}
	for i := 0; i < 4; i++ {
		noise = append(noise, control(Ack, 9, 0))
	}
	noise = append(noise, reads[1])

	opts := receiveOptions() // WaitLimit 3
	_, res := Receive(&fakeTransport{reads: noise}, opts)
	if res.Status != TimedOut || !errors.Is(res.Err, ErrTimedOut) {
		t.Fatalf("status = %v (%v), want timed out", res.Status, res.Err)
	}

	// Fewer stray messages than the limit don't matter.
	quiet := append([][]byte{}, noise[:3]...)
	quiet = append(quiet, reads[1])
	if _, res := Receive(&fakeTransport{reads: quiet}, opts); res.Status != Completed {
		t.Fatalf("status = %v (%v), want completed", res.Status, res.Err)
	}
}
