package record

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/synheart/synheart-collector/internal/models"
)

type sinkFrame struct {
	deviceID string
	kind     models.FrameKind
	data     []byte
}

type testSink struct {
	frames []sinkFrame
}

func (s *testSink) FeedRawFrame(deviceID string, kind models.FrameKind, data []byte) {
	s.frames = append(s.frames, sinkFrame{deviceID, kind, data})
}

func TestRecordAndReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ndjson")

	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}

	frames := []sinkFrame{
		{"strap-01", models.FrameHeartRate, []byte{0x10, 72, 0x00, 0x04}},
		{"strap-01", models.FrameHeartRate, []byte{0x00, 74}},
		{"optical-01", models.FramePmdPpi, []byte{0x03, 0, 0, 0, 0, 0, 0, 0, 0, 0x20, 0x03}},
	}
	for _, f := range frames {
		if err := rec.Record(f.deviceID, f.kind, f.data); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	replayer := NewReplayer(path, 100.0, false)

	count, err := replayer.CountFrames()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(frames) {
		t.Errorf("expected %d frames, got %d", len(frames), count)
	}

	first, err := replayer.GetFirstEntry()
	if err != nil {
		t.Fatalf("first entry: %v", err)
	}
	if first.DeviceID != "strap-01" || first.Kind != "heart_rate" {
		t.Errorf("unexpected first entry: %+v", first)
	}

	sink := &testSink{}
	if err := replayer.Replay(context.Background(), sink); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(sink.frames) != len(frames) {
		t.Fatalf("expected %d replayed frames, got %d", len(frames), len(sink.frames))
	}
	for i, want := range frames {
		got := sink.frames[i]
		if got.deviceID != want.deviceID || got.kind != want.kind {
			t.Errorf("frame %d routing: got %s/%s, want %s/%s",
				i, got.deviceID, got.kind, want.deviceID, want.kind)
		}
		if !bytes.Equal(got.data, want.data) {
			t.Errorf("frame %d bytes altered: got %v, want %v", i, got.data, want.data)
		}
	}
}

func TestReplayEmptyRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ndjson")

	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}
	rec.Close()

	replayer := NewReplayer(path, 1.0, false)
	if _, err := replayer.GetFirstEntry(); err == nil {
		t.Error("expected error for empty recording")
	}

	count, err := replayer.CountFrames()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 frames, got %d", count)
	}
}

func TestReplayCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.ndjson")

	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}
	rec.Record("strap-01", models.FrameHeartRate, []byte{0x00, 70})
	rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	replayer := NewReplayer(path, 1.0, true)
	if err := replayer.Replay(ctx, &testSink{}); err != context.Canceled {
		t.Errorf("expected context.Canceled from looping replay, got %v", err)
	}
}
