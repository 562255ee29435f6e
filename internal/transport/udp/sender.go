// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"

	applog "tuner/internal/log"
	"tuner/internal/tuner"
)

var errSenderClosed = errors.New("UDP sender is closed")

// UDPSender encodes readings as packets and writes them to one target.
// It numbers the packets itself, so a receiver can spot gaps.
type UDPSender struct {
	mu     sync.Mutex // Guards everything below.
	conn   *net.UDPConn
	closed bool
	seq    uint32       // Sequence number of the last packet written.
	buf    bytes.Buffer // Reused for every packet.
}

// NewUDPSender dials targetAddress ("host:port", e.g. "127.0.0.1:9090").
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	applog.Infof("UDP Sender: Connection established to %s", conn.RemoteAddr().String())
	return &UDPSender{conn: conn}, nil
}

// SendReading packs r under the next sequence number and writes it.
// A reading that cannot be encoded does not use up a number; a failed
// write does, since the receiver sees the same gap as a lost datagram.
func (s *UDPSender) SendReading(r tuner.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSenderClosed
	}
	if err := EncodePacket(&s.buf, s.seq+1, r); err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	s.seq++

	if _, err := s.conn.Write(s.buf.Bytes()); err != nil {
		applog.Debugf("UDP Sender: Error sending packet %d: %v", s.seq, err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Sequence returns the number given to the most recent packet.
func (s *UDPSender) Sequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close closes the underlying UDP connection.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	applog.Infof("UDP Sender: Closing connection to %s after %d packets", s.conn.RemoteAddr().String(), s.seq)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

var _ ReadingSender = (*UDPSender)(nil)
