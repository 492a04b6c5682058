package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/models"
)

// recorder is a test observer that captures every callback.
type recorder struct {
	mu       sync.Mutex
	updates  []models.MetricsUpdate
	statuses []models.DeviceStatus
	infos    []models.DeviceInfo
}

func (r *recorder) OnMetrics(deviceID string, u models.MetricsUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) OnStatus(deviceID string, s models.DeviceStatus) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *recorder) OnDeviceInfo(deviceID string, i models.DeviceInfo) {
	r.mu.Lock()
	r.infos = append(r.infos, i)
	r.mu.Unlock()
}

func (r *recorder) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) lastUpdate() (models.MetricsUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return models.MetricsUpdate{}, false
	}
	return r.updates[len(r.updates)-1], true
}

type fakeBattery struct {
	level uint8
}

func (f *fakeBattery) ReadBattery(deviceID string) (uint8, error) {
	return f.level, nil
}

// hrFrame builds a Heart Rate Measurement notification with an 8-bit BPM and
// optional RR intervals given in raw 1/1024-second units.
func hrFrame(bpm byte, rrRaw ...uint16) []byte {
	flags := byte(0x00)
	if len(rrRaw) > 0 {
		flags |= 0x10
	}
	data := []byte{flags, bpm}
	for _, rr := range rrRaw {
		data = append(data, byte(rr), byte(rr>>8))
	}
	return data
}

// ppiFrame builds a PMD PPI frame with millisecond intervals.
func ppiFrame(intervals ...uint16) []byte {
	data := []byte{0x03, 0, 0, 0, 0, 0, 0, 0, 0}
	for _, ms := range intervals {
		data = append(data, byte(ms), byte(ms>>8))
	}
	return data
}

// directSession creates an unstarted session whose batches are driven by
// hand, bypassing the goroutine and ticker.
func directSession(t *testing.T, cfg SessionConfig, rec *recorder) *Session {
	t.Helper()
	c := New(zap.NewNop(), nil)
	if rec != nil {
		c.Register(rec)
	}
	s := newSession(cfg, &c.observers, nil, zap.NewNop())
	s.SetStatus(models.StatusConnected)
	return s
}

func TestBatchProducesMetricsUpdate(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "strap-01"}, rec)

	s.Feed(models.FrameHeartRate, hrFrame(72, 1024, 900))
	s.processBatch(time.Unix(1000, 0))

	u, ok := rec.lastUpdate()
	if !ok {
		t.Fatal("expected a metrics update")
	}
	if u.DeviceID != "strap-01" {
		t.Errorf("expected device strap-01, got %s", u.DeviceID)
	}
	if u.BPM.Current != 72 {
		t.Errorf("expected BPM 72, got %d", u.BPM.Current)
	}
	if u.RR.Count != 2 {
		t.Errorf("expected 2 RR intervals, got %d", u.RR.Count)
	}
	if u.SchemaVersion != models.SchemaVersionV1 {
		t.Errorf("unexpected schema version %s", u.SchemaVersion)
	}
	if u.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", u.Sequence)
	}
}

func TestEmptyBatchProducesNothing(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "strap-01"}, rec)

	s.processBatch(time.Unix(1000, 0))
	if rec.updateCount() != 0 {
		t.Errorf("expected no update for an empty batch, got %d", rec.updateCount())
	}
}

func TestLastBPMOfBatchWins(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "strap-01"}, rec)

	s.Feed(models.FrameHeartRate, hrFrame(70))
	s.Feed(models.FrameHeartRate, hrFrame(75))
	s.Feed(models.FrameHeartRate, hrFrame(80))
	s.processBatch(time.Unix(1000, 0))

	u, _ := rec.lastUpdate()
	if u.BPM.Current != 80 {
		t.Errorf("expected the batch's last BPM 80, got %d", u.BPM.Current)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "strap-01"}, rec)

	s.Feed(models.FrameHeartRate, nil)
	s.Feed(models.FrameHeartRate, []byte{0x01, 72}) // truncated 16-bit BPM
	s.Feed(models.FramePmdPpi, []byte{0x03, 0, 0})  // short PMD header
	s.Feed(models.FrameKind("bogus"), []byte{1, 2, 3})

	s.processBatch(time.Unix(1000, 0))
	if rec.updateCount() != 0 {
		t.Errorf("expected malformed frames to produce nothing, got %d updates", rec.updateCount())
	}
}

func TestFeedIgnoredWhenNotConnected(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "strap-01"}, rec)
	s.SetStatus(models.StatusDisconnected)

	s.Feed(models.FrameHeartRate, hrFrame(72))
	s.processBatch(time.Unix(1000, 0))
	if rec.updateCount() != 0 {
		t.Errorf("expected frames ignored while disconnected, got %d updates", rec.updateCount())
	}
}

func TestSyntheticRRForOpticalDevice(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "optical-01", Optical: true, Seed: 42}, rec)

	base := time.Unix(2000, 0)
	for i := 0; i < 6; i++ {
		s.Feed(models.FrameHeartRate, hrFrame(60))
		s.processBatch(base.Add(time.Duration(i) * time.Second))
	}

	u, ok := rec.lastUpdate()
	if !ok {
		t.Fatal("expected updates")
	}
	if u.RR.Count == 0 {
		t.Error("expected synthetic RR intervals for optical device with no native source")
	}
	if !s.SyntheticEnabled() {
		t.Error("synthetic generator should remain enabled without a real RR source")
	}
}

func TestRealRRPermanentlyDisablesSynthetic(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "optical-01", Optical: true, Seed: 42}, rec)

	base := time.Unix(2000, 0)
	s.Feed(models.FrameHeartRate, hrFrame(60))
	s.processBatch(base)

	// Native PPI intervals arrive: the fallback must retire.
	s.Feed(models.FramePmdPpi, ppiFrame(800, 820))
	s.processBatch(base.Add(1 * time.Second))
	if s.SyntheticEnabled() {
		t.Fatal("expected synthetic disabled after real RR")
	}

	// BPM-only batches afterwards must not re-enable it.
	for i := 2; i < 6; i++ {
		s.Feed(models.FrameHeartRate, hrFrame(60))
		s.processBatch(base.Add(time.Duration(i) * time.Second))
	}
	if s.SyntheticEnabled() {
		t.Error("synthetic generator must never be re-enabled within a session")
	}
}

func TestNonOpticalDeviceNeverSynthesizes(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "strap-01"}, rec)

	base := time.Unix(2000, 0)
	for i := 0; i < 4; i++ {
		s.Feed(models.FrameHeartRate, hrFrame(60))
		s.processBatch(base.Add(time.Duration(i) * time.Second))
	}

	u, _ := rec.lastUpdate()
	if u.RR.Count != 0 {
		t.Errorf("expected no RR for strap device without RR frames, got %d", u.RR.Count)
	}
}

func TestAccelFramesFillWindow(t *testing.T) {
	s := directSession(t, SessionConfig{DeviceID: "optical-01", Optical: true}, nil)

	// PMD ACC frame: header + x=3, y=4, z=0
	frame := append([]byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0}, 0x03, 0x00, 0x04, 0x00, 0x00, 0x00)
	s.Feed(models.FramePmdAcc, frame)
	s.processBatch(time.Unix(1000, 0))

	window := s.AccelWindow()
	if len(window) != 1 {
		t.Fatalf("expected 1 accel sample, got %d", len(window))
	}
	if window[0].Magnitude != 5 {
		t.Errorf("expected magnitude 5, got %f", window[0].Magnitude)
	}
}

func TestDeviceInfoNotifiedOnce(t *testing.T) {
	rec := &recorder{}
	s := directSession(t, SessionConfig{DeviceID: "strap-01"}, rec)

	info := models.DeviceInfo{Manufacturer: "Acme", Model: "HR-2", Firmware: "1.2"}
	s.SetDeviceInfo(info)
	s.SetDeviceInfo(models.DeviceInfo{Manufacturer: "Other"})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.infos) != 1 {
		t.Fatalf("expected exactly one device info callback, got %d", len(rec.infos))
	}
	if rec.infos[0].Manufacturer != "Acme" {
		t.Errorf("expected first info to win, got %+v", rec.infos[0])
	}

	if stored, ok := s.DeviceInfo(); !ok || stored.Model != "HR-2" {
		t.Errorf("expected stored info HR-2, got %+v (ok=%v)", stored, ok)
	}
}

func TestSessionLifecycle(t *testing.T) {
	rec := &recorder{}
	c := New(zap.NewNop(), &fakeBattery{level: 80})
	c.Register(rec)

	ctx := context.Background()
	cfg := SessionConfig{
		DeviceID:        "strap-01",
		BatchInterval:   20 * time.Millisecond,
		BatteryInterval: 50 * time.Millisecond,
	}
	if _, err := c.StartSession(ctx, cfg); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := c.StartSession(ctx, cfg); err == nil {
		t.Error("expected duplicate session to fail")
	}

	// Keep feeding until an update carries the polled battery level.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.FeedRawFrame("strap-01", models.FrameHeartRate, hrFrame(72, 1024))
		if u, ok := rec.lastUpdate(); ok && u.Battery != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rec.updateCount() == 0 {
		t.Fatal("expected metrics updates from the running session")
	}

	u, _ := rec.lastUpdate()
	if u.Battery == nil || *u.Battery != 80 {
		t.Errorf("expected battery level 80 on updates, got %v", u.Battery)
	}

	if err := c.StopSession("strap-01"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	rec.mu.Lock()
	last := rec.statuses[len(rec.statuses)-1]
	rec.mu.Unlock()
	if last != models.StatusDisconnected {
		t.Errorf("expected final status disconnected, got %s", last)
	}

	if err := c.StopSession("strap-01"); err == nil {
		t.Error("expected stopping a missing session to fail")
	}
}

func TestStopDiscardsPartialBatch(t *testing.T) {
	c := New(zap.NewNop(), nil)
	rec := &recorder{}
	c.Register(rec)

	// Long interval: the first tick never fires before stop.
	cfg := SessionConfig{DeviceID: "strap-01", BatchInterval: time.Hour}
	if _, err := c.StartSession(context.Background(), cfg); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	c.FeedRawFrame("strap-01", models.FrameHeartRate, hrFrame(72))
	if err := c.StopSession("strap-01"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if rec.updateCount() != 0 {
		t.Errorf("expected in-flight batch discarded on stop, got %d updates", rec.updateCount())
	}
}

func TestUnregisterStopsCallbacks(t *testing.T) {
	rec := &recorder{}
	c := New(zap.NewNop(), nil)
	c.Register(rec)
	s := newSession(SessionConfig{DeviceID: "strap-01"}, &c.observers, nil, zap.NewNop())
	s.SetStatus(models.StatusConnected)

	c.Unregister(rec)
	s.Feed(models.FrameHeartRate, hrFrame(72))
	s.processBatch(time.Unix(1000, 0))

	if rec.updateCount() != 0 {
		t.Errorf("expected no callbacks after unregister, got %d", rec.updateCount())
	}
	// The status change before unregister was delivered.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.statuses) != 1 {
		t.Errorf("expected exactly the pre-unregister status callback, got %d", len(rec.statuses))
	}
}

func TestFeedRawFrameUnknownDevice(t *testing.T) {
	c := New(zap.NewNop(), nil)
	// Must not panic or block.
	c.FeedRawFrame("ghost", models.FrameHeartRate, hrFrame(72))
}

func TestIndependentSessions(t *testing.T) {
	rec := &recorder{}
	c := New(zap.NewNop(), nil)
	c.Register(rec)
	ctx := context.Background()

	a, err := c.StartSession(ctx, SessionConfig{DeviceID: "a", BatchInterval: time.Hour})
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	if _, err := c.StartSession(ctx, SessionConfig{DeviceID: "b", BatchInterval: time.Hour}); err != nil {
		t.Fatalf("start b: %v", err)
	}

	if err := c.StopSession("a"); err != nil {
		t.Fatalf("stop a: %v", err)
	}
	if a.Status() != models.StatusDisconnected {
		t.Errorf("expected a disconnected, got %s", a.Status())
	}

	b, ok := c.Session("b")
	if !ok || b.Status() != models.StatusConnected {
		t.Error("expected session b unaffected by stopping a")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(c.DeviceIDs()) != 0 {
		t.Errorf("expected no sessions after close, got %v", c.DeviceIDs())
	}
}
