package models

import "time"

// FrameKind identifies the wire format of a raw notification payload.
type FrameKind string

const (
	// FrameHeartRate is a Bluetooth Heart Rate Measurement notification.
	FrameHeartRate FrameKind = "heart_rate"

	// FramePmdPpi is a PMD frame carrying peak-to-peak (RR) intervals.
	FramePmdPpi FrameKind = "pmd_ppi"

	// FramePmdPpg is a PMD frame carrying raw optical waveform samples.
	FramePmdPpg FrameKind = "pmd_ppg"

	// FramePmdAcc is a PMD frame carrying one accelerometer sample.
	FramePmdAcc FrameKind = "pmd_acc"
)

// Valid reports whether k names a known frame kind.
func (k FrameKind) Valid() bool {
	switch k {
	case FrameHeartRate, FramePmdPpi, FramePmdPpg, FramePmdAcc:
		return true
	}
	return false
}

// RawFrame is one received notification payload. The byte slice is consumed
// exactly once by the decoder and never mutated.
type RawFrame struct {
	DeviceID   string    `json:"device_id"`
	Kind       FrameKind `json:"kind"`
	Data       []byte    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// DeviceStatus describes the externally driven connection state of a device.
// The collector only reads it to gate processing.
type DeviceStatus string

const (
	StatusDisconnected DeviceStatus = "disconnected"
	StatusConnecting   DeviceStatus = "connecting"
	StatusConnected    DeviceStatus = "connected"
	StatusError        DeviceStatus = "error"
)

// AccelSample is one decoded accelerometer reading with its Euclidean
// magnitude precomputed.
type AccelSample struct {
	X         int16   `json:"x"`
	Y         int16   `json:"y"`
	Z         int16   `json:"z"`
	Magnitude float64 `json:"magnitude"`
}
