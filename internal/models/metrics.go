package models

import "time"

// BPMMetrics summarizes the heart-rate rolling buffer. Min and Max reflect
// only the current buffer content; SessionMin and SessionMax never shrink for
// the lifetime of the session.
type BPMMetrics struct {
	Current    int     `json:"current"`
	Mean       float64 `json:"mean"`
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	SessionMin int     `json:"session_min"`
	SessionMax int     `json:"session_max"`
}

// RRMetrics summarizes the beat-to-beat interval rolling buffer. RMSSD is
// recomputed over the full buffer content every time new intervals land.
type RRMetrics struct {
	LastRR float64 `json:"last_rr_ms"`
	MeanRR float64 `json:"mean_rr_ms"`
	RMSSD  float64 `json:"rmssd_ms"`
	Count  int     `json:"count"`
}

// BreathingQuality grades a breathing-rate estimate.
type BreathingQuality string

const (
	QualityExcellent        BreathingQuality = "excellent"
	QualityGood             BreathingQuality = "good"
	QualityFair             BreathingQuality = "fair"
	QualityPoor             BreathingQuality = "poor"
	QualityInsufficientData BreathingQuality = "insufficient_data"
	QualityOutOfRange       BreathingQuality = "out_of_range"
	QualityError            BreathingQuality = "error"
	QualityPPG              BreathingQuality = "ppg"
	QualityUnknown          BreathingQuality = "unknown"
)

// BreathingMetrics is the current respiration estimate. Frequency is in
// cycles per minute. Amplitude is the standard deviation of the smoothed RR
// series in milliseconds.
type BreathingMetrics struct {
	Frequency          float64          `json:"frequency_rpm"`
	Amplitude          float64          `json:"amplitude_ms"`
	VariabilityPercent float64          `json:"variability_percent"`
	Quality            BreathingQuality `json:"quality"`
}

// DeviceInfo holds the one-time device information read performed by the
// transport layer. The collector only formats and stores it.
type DeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Firmware     string `json:"firmware"`
	Hardware     string `json:"hardware"`
	Serial       string `json:"serial"`
}

// MetricsUpdate is the envelope emitted after every batch-processor cycle
// that produced new data.
type MetricsUpdate struct {
	SchemaVersion string           `json:"schema_version"`
	UpdateID      string           `json:"update_id"`
	DeviceID      string           `json:"device_id"`
	Timestamp     string           `json:"ts"`
	BPM           BPMMetrics       `json:"bpm"`
	RR            RRMetrics        `json:"rr"`
	Breathing     BreathingMetrics `json:"breathing"`
	Battery       *uint8           `json:"battery_percent,omitempty"`
	Sequence      int64            `json:"sequence"`
}

// SchemaVersionV1 tags every metrics update envelope.
const SchemaVersionV1 = "synheart.metrics.v1"

// NewMetricsUpdate assembles an update envelope with the current timestamp.
func NewMetricsUpdate(updateID, deviceID string, bpm BPMMetrics, rr RRMetrics, br BreathingMetrics, battery *uint8, seq int64) MetricsUpdate {
	return MetricsUpdate{
		SchemaVersion: SchemaVersionV1,
		UpdateID:      updateID,
		DeviceID:      deviceID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		BPM:           bpm,
		RR:            rr,
		Breathing:     br,
		Battery:       battery,
		Sequence:      seq,
	}
}
