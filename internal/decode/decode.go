// Package decode parses raw heart-rate sensor notification payloads into
// typed samples. All functions are stateless and never panic on arbitrary
// input; malformed frames are reported as typed errors and out-of-range
// values are dropped per-field, never per-frame.
package decode

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/synheart/synheart-collector/internal/models"
)

var (
	// ErrTooShort marks a frame with fewer bytes than its header requires.
	ErrTooShort = errors.New("decode: frame too short")

	// ErrTruncatedBPM marks a frame whose flags promise a 16-bit heart rate
	// that the payload does not contain.
	ErrTruncatedBPM = errors.New("decode: truncated 16-bit heart rate")
)

// Physiological validity bounds. Values outside are dropped silently.
const (
	MinBPM = 30
	MaxBPM = 250

	MinRRMillis = 200.0
	MaxRRMillis = 2000.0
)

const (
	flagBPM16Bit  = 0x01 // bit 0: heart rate encoded as uint16
	flagRRPresent = 0x10 // bit 4: one or more RR intervals follow
)

// rrTickMillis converts the 1/1024-second RR unit of the Heart Rate
// Measurement characteristic to milliseconds.
const rrTickMillis = 1000.0 / 1024.0

// HeartRateMeasurement is the decoded content of one Bluetooth Heart Rate
// Measurement notification. HasBPM is false when the encoded value fell
// outside the physiological range.
type HeartRateMeasurement struct {
	BPM         int
	HasBPM      bool
	RRIntervals []float64 // milliseconds
}

// HeartRate decodes a Heart Rate Measurement notification payload.
func HeartRate(data []byte) (HeartRateMeasurement, error) {
	var m HeartRateMeasurement

	if len(data) < 2 {
		return m, ErrTooShort
	}

	flags := data[0]
	offset := 2

	var bpm int
	if flags&flagBPM16Bit != 0 {
		if len(data) < 3 {
			return m, ErrTruncatedBPM
		}
		bpm = int(binary.LittleEndian.Uint16(data[1:3]))
		offset = 3
	} else {
		bpm = int(data[1])
	}

	if bpm >= MinBPM && bpm <= MaxBPM {
		m.BPM = bpm
		m.HasBPM = true
	}

	if flags&flagRRPresent != 0 {
		for offset+2 <= len(data) {
			raw := binary.LittleEndian.Uint16(data[offset : offset+2])
			offset += 2

			ms := float64(raw) * rrTickMillis
			if ms >= MinRRMillis && ms <= MaxRRMillis {
				m.RRIntervals = append(m.RRIntervals, ms)
			}
		}
	}

	return m, nil
}

// pmdHeaderLen is one type byte plus the 8-byte little-endian timestamp.
const pmdHeaderLen = 9

// PMDFrame is the header-stripped view of one PMD measurement frame.
type PMDFrame struct {
	Type      byte
	Timestamp uint64
	Payload   []byte
}

// PMD splits a raw PMD frame into its type, timestamp and payload.
func PMD(data []byte) (PMDFrame, error) {
	if len(data) < pmdHeaderLen {
		return PMDFrame{}, ErrTooShort
	}
	return PMDFrame{
		Type:      data[0],
		Timestamp: binary.LittleEndian.Uint64(data[1:9]),
		Payload:   data[pmdHeaderLen:],
	}, nil
}

// PPI decodes a PMD PPI payload: consecutive little-endian uint16 RR values
// already expressed in milliseconds. Out-of-range values are dropped.
func PPI(payload []byte) []float64 {
	var out []float64
	for i := 0; i+2 <= len(payload); i += 2 {
		ms := float64(binary.LittleEndian.Uint16(payload[i : i+2]))
		if ms >= MinRRMillis && ms <= MaxRRMillis {
			out = append(out, ms)
		}
	}
	return out
}

// PPG decodes a PMD PPG payload: consecutive little-endian signed 16-bit
// waveform samples. A trailing odd byte is ignored.
func PPG(payload []byte) []int16 {
	out := make([]int16, 0, len(payload)/2)
	for i := 0; i+2 <= len(payload); i += 2 {
		out = append(out, int16(binary.LittleEndian.Uint16(payload[i:i+2])))
	}
	return out
}

// ACC decodes a PMD accelerometer payload: three consecutive little-endian
// signed 16-bit values for x, y and z.
func ACC(payload []byte) (models.AccelSample, error) {
	if len(payload) < 6 {
		return models.AccelSample{}, ErrTooShort
	}

	x := int16(binary.LittleEndian.Uint16(payload[0:2]))
	y := int16(binary.LittleEndian.Uint16(payload[2:4]))
	z := int16(binary.LittleEndian.Uint16(payload[4:6]))

	return models.AccelSample{
		X: x,
		Y: y,
		Z: z,
		Magnitude: math.Sqrt(
			float64(x)*float64(x) + float64(y)*float64(y) + float64(z)*float64(z),
		),
	}, nil
}
