package encoding

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/synheart/synheart-collector/internal/models"
)

func sampleUpdate() models.MetricsUpdate {
	battery := uint8(85)
	return models.MetricsUpdate{
		SchemaVersion: models.SchemaVersionV1,
		UpdateID:      "update-123",
		DeviceID:      "strap-01",
		Timestamp:     "2026-08-24T10:00:00Z",
		BPM:           models.BPMMetrics{Current: 72, Mean: 71.5, Min: 68, Max: 75, SessionMin: 60, SessionMax: 90},
		RR:            models.RRMetrics{LastRR: 820, MeanRR: 833.3, RMSSD: 42.1, Count: 48},
		Breathing:     models.BreathingMetrics{Frequency: 14.2, Amplitude: 31.0, VariabilityPercent: 18.5, Quality: models.QualityGood},
		Battery:       &battery,
		Sequence:      7,
	}
}

func TestProtobufEncoder_RoundTrip(t *testing.T) {
	enc := NewProtobufEncoder()

	data, err := enc.Encode(sampleUpdate())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	fields := pb.GetFields()
	if got := fields["schema_version"].GetStringValue(); got != models.SchemaVersionV1 {
		t.Errorf("schema_version = %q, want %q", got, models.SchemaVersionV1)
	}
	if got := fields["device_id"].GetStringValue(); got != "strap-01" {
		t.Errorf("device_id = %q, want strap-01", got)
	}

	bpm := fields["bpm"].GetStructValue().GetFields()
	if got := bpm["current"].GetNumberValue(); got != 72 {
		t.Errorf("bpm.current = %v, want 72", got)
	}
	if got := bpm["session_max"].GetNumberValue(); got != 90 {
		t.Errorf("bpm.session_max = %v, want 90", got)
	}

	breathing := fields["breathing"].GetStructValue().GetFields()
	if got := breathing["quality"].GetStringValue(); got != "good" {
		t.Errorf("breathing.quality = %q, want good", got)
	}

	if got := fields["battery_percent"].GetNumberValue(); got != 85 {
		t.Errorf("battery_percent = %v, want 85", got)
	}
}

func TestProtobufEncoder_OmitsMissingBattery(t *testing.T) {
	enc := NewProtobufEncoder()

	u := sampleUpdate()
	u.Battery = nil
	data, err := enc.Encode(u)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := pb.GetFields()["battery_percent"]; ok {
		t.Error("expected battery_percent to be omitted when unknown")
	}
}

func TestProtobufEncoder_ContentType(t *testing.T) {
	enc := NewProtobufEncoder()
	if ct := enc.ContentType(); ct != "application/x-protobuf" {
		t.Errorf("content type = %q, want application/x-protobuf", ct)
	}
}

func TestNewEncoder_Factory(t *testing.T) {
	jsonEnc := NewEncoder(FormatJSON)
	if jsonEnc.ContentType() != "application/json" {
		t.Errorf("json encoder content type = %q", jsonEnc.ContentType())
	}

	protoEnc := NewEncoder(FormatProtobuf)
	if protoEnc.ContentType() != "application/x-protobuf" {
		t.Errorf("protobuf encoder content type = %q", protoEnc.ContentType())
	}
}
