// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"tuner/internal/pitch"
	"tuner/internal/tuner"
)

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field             | Data Type | Size (Bytes) | Description                     |
|-------------------|-----------|--------------|---------------------------------|
| Sequence Number   | uint32    | 4            | Monotonically increasing        |
| Timestamp         | int64     | 8            | Nanoseconds since epoch         |
| Status            | uint8     | 1            | 0 none, 1 pitched, 2 ambiguous, |
|                   |           |              | 3 out of range                  |
| Note Number       | int16     | 2            | MIDI note, 69 = A4              |
| Frequency         | float32   | 4            | Hz, 0 without a note            |
| Cents Offset      | float32   | 4            | -50..50, negative is flat       |
| Amplitude         | float32   | 4            | Input RMS                       |
| Confidence        | float32   | 4            | 0..1                            |
| Name Length       | uint8     | 1            | Bytes in Name (N)               |
| Name              | []byte    | N            | e.g. "C#4"                      |
+------------------------------------------------------------------------------+
*/

// headerSize is the packet length without the name.
const headerSize = 4 + 8 + 1 + 2 + 4*4 + 1

// Packet is the decoded form of one datagram.
type Packet struct {
	Sequence    uint32
	Timestamp   int64
	Status      pitch.Status
	Number      int16
	FrequencyHz float32
	CentsOffset float32
	Amplitude   float32
	Confidence  float32
	Note        string
}

type packetHeader struct {
	Sequence    uint32
	Timestamp   int64
	Status      uint8
	Number      int16
	FrequencyHz float32
	CentsOffset float32
	Amplitude   float32
	Confidence  float32
	NameLength  uint8
}

// EncodePacket writes r as a packet into buf, replacing its contents.
func EncodePacket(buf *bytes.Buffer, seq uint32, r tuner.Reading) error {
	name := r.Note
	if len(name) > math.MaxUint8 {
		return fmt.Errorf("note name too long: %d bytes", len(name))
	}

	buf.Reset()
	h := packetHeader{
		Sequence:    seq,
		Timestamp:   r.Timestamp.UnixNano(),
		Status:      uint8(r.Status),
		Number:      int16(r.Number),
		FrequencyHz: float32(r.FrequencyHz),
		CentsOffset: float32(r.CentsOffset),
		Amplitude:   float32(r.AmplitudeRMS),
		Confidence:  float32(r.Confidence),
		NameLength:  uint8(len(name)),
	}
	if err := binary.Write(buf, binary.BigEndian, &h); err != nil {
		return err
	}
	_, err := buf.WriteString(name)
	return err
}

// DecodePacket parses a datagram produced by EncodePacket.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < headerSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	var h packetHeader
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.BigEndian, &h); err != nil {
		return Packet{}, err
	}
	name := data[headerSize:]
	if len(name) != int(h.NameLength) {
		return Packet{}, errors.New("packet name length does not match payload")
	}
	return Packet{
		Sequence:    h.Sequence,
		Timestamp:   h.Timestamp,
		Status:      pitch.Status(h.Status),
		Number:      h.Number,
		FrequencyHz: h.FrequencyHz,
		CentsOffset: h.CentsOffset,
		Amplitude:   h.Amplitude,
		Confidence:  h.Confidence,
		Note:        string(name),
	}, nil
}
