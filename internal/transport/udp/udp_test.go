// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"tuner/internal/note"
	"tuner/internal/pitch"
	"tuner/internal/tuner"
)

func testReading(seq uint64) tuner.Reading {
	return tuner.Reading{
		Status: pitch.Pitched,
		Reading: note.Reading{
			Note:         "C#4",
			Number:       61,
			FrequencyHz:  277.5,
			CentsOffset:  -3.25,
			AmplitudeRMS: 0.125,
			Timestamp:    time.Unix(1700000000, 500),
		},
		Confidence: 0.875,
		Seq:        seq,
	}
}

func TestPacketLayout(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := EncodePacket(&buf, 7, testReading(1)); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if len(b) != headerSize+3 {
		t.Fatalf("packet is %d bytes, want %d", len(b), headerSize+3)
	}
	// Sequence number first, big endian.
	if !bytes.Equal(b[:4], []byte{0, 0, 0, 7}) {
		t.Errorf("sequence bytes = %v", b[:4])
	}
	if b[12] != byte(pitch.Pitched) {
		t.Errorf("status byte = %d", b[12])
	}
	if string(b[headerSize:]) != "C#4" {
		t.Errorf("name = %q", b[headerSize:])
	}

	p, err := DecodePacket(b)
	if err != nil {
		t.Fatal(err)
	}
	want := Packet{
		Sequence:    7,
		Timestamp:   time.Unix(1700000000, 500).UnixNano(),
		Status:      pitch.Pitched,
		Number:      61,
		FrequencyHz: 277.5,
		CentsOffset: -3.25,
		Amplitude:   0.125,
		Confidence:  0.875,
		Note:        "C#4",
	}
	if p != want {
		t.Errorf("DecodePacket = %+v, want %+v", p, want)
	}
}

func TestDecodePacketErrors(t *testing.T) {
	t.Parallel()
	if _, err := DecodePacket(make([]byte, headerSize-1)); err == nil {
		t.Error("expected error for short packet")
	}

	var buf bytes.Buffer
	if err := EncodePacket(&buf, 1, testReading(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodePacket(buf.Bytes()[:buf.Len()-1]); err == nil {
		t.Error("expected error for truncated name")
	}
}

type captureSender struct {
	mu       sync.Mutex
	readings []tuner.Reading
}

func (c *captureSender) SendReading(r tuner.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = append(c.readings, r)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.readings)
}

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	return conn
}

func readPacket(t *testing.T, conn *net.UDPConn) Packet {
	t.Helper()
	buf := make([]byte, 512)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	p, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPublisherSkipsUnchangedReadings(t *testing.T) {
	t.Parallel()
	display := &tuner.Display{}
	sender := &captureSender{}
	p, err := NewUDPPublisher(time.Millisecond, sender, display)
	if err != nil {
		t.Fatal(err)
	}

	// Nothing to send before the first reading.
	p.publishLatest()
	if sender.count() != 0 {
		t.Fatal("sent a packet without a reading")
	}

	display.Store(testReading(1))
	p.publishLatest()
	p.publishLatest()
	if sender.count() != 1 {
		t.Fatalf("sent %d packets for one reading, want 1", sender.count())
	}

	display.Store(testReading(2))
	p.publishLatest()
	if sender.count() != 2 {
		t.Fatalf("sent %d packets, want 2", sender.count())
	}
}

func TestPublisherLoopback(t *testing.T) {
	t.Parallel()
	conn := listenLoopback(t)

	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	display := &tuner.Display{}
	display.Store(testReading(42))

	p, err := NewUDPPublisher(5*time.Millisecond, sender, display)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	p.Start() // no-op
	defer p.Stop()

	got := readPacket(t, conn)
	if got.Sequence != 1 || got.Note != "C#4" || got.Status != pitch.Pitched {
		t.Errorf("received %+v", got)
	}

	if err := p.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSenderClosed(t *testing.T) {
	t.Parallel()
	sender, err := NewUDPSender("127.0.0.1:9")
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sender.SendReading(testReading(1)); err == nil {
		t.Error("Send after Close should fail")
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewUDPPublisherErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewUDPPublisher(time.Second, nil, &tuner.Display{}); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewUDPPublisher(time.Second, &captureSender{}, nil); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestSenderNumbersPackets(t *testing.T) {
	t.Parallel()
	conn := listenLoopback(t)

	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	for seq := uint64(1); seq <= 2; seq++ {
		if err := sender.SendReading(testReading(seq)); err != nil {
			t.Fatalf("SendReading: %v", err)
		}
	}

	// An unencodable reading is refused without using a number.
	bad := testReading(3)
	bad.Note = strings.Repeat("x", 300)
	if err := sender.SendReading(bad); err == nil {
		t.Fatal("expected error for an oversized note name")
	}
	if err := sender.SendReading(testReading(4)); err != nil {
		t.Fatalf("SendReading: %v", err)
	}

	for want := uint32(1); want <= 3; want++ {
		if got := readPacket(t, conn); got.Sequence != want {
			t.Errorf("packet sequence = %d, want %d", got.Sequence, want)
		}
	}
	if got := sender.Sequence(); got != 3 {
		t.Errorf("Sequence() = %d, want 3", got)
	}
}
