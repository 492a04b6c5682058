package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/breathing"
	"github.com/synheart/synheart-collector/internal/decode"
	"github.com/synheart/synheart-collector/internal/metrics"
	"github.com/synheart/synheart-collector/internal/models"
	"github.com/synheart/synheart-collector/internal/ppg"
	"github.com/synheart/synheart-collector/internal/ring"
	"github.com/synheart/synheart-collector/internal/synthetic"
)

// Default cadences of the periodic batch processor.
const (
	DefaultBatchInterval   = time.Second
	DefaultBatteryInterval = 30 * time.Second

	accelWindowCapacity = 50
	stopTimeout         = 2 * time.Second
)

// SessionConfig describes one connected device.
type SessionConfig struct {
	DeviceID string

	// Optical enables the PPG pipeline and the synthetic RR fallback; set
	// for devices that stream a raw waveform instead of native intervals.
	Optical bool

	// SampleRate is the optical waveform rate in Hz; ignored for
	// non-optical devices.
	SampleRate float64

	BPMWindow int
	RRWindow  int

	// Seed drives the synthetic RR generator; zero means time-derived.
	Seed int64

	BatchInterval   time.Duration
	BatteryInterval time.Duration
}

// Session owns all per-device state: the accumulation boundary, the metric
// components and exactly one batch-processor goroutine.
type Session struct {
	cfg       SessionConfig
	runID     string
	log       *zap.Logger
	observers *registry
	battery   BatteryReader

	acc accumulator

	// Processor-confined state.
	agg              *metrics.Aggregator
	rsa              *breathing.Estimator
	optical          *ppg.Pipeline
	syn              *synthetic.Generator
	syntheticEnabled bool
	accelWindow      *ring.Buffer[models.AccelSample]
	batteryLevel     *uint8
	lastBatteryPoll  time.Time
	seq              int64

	statusMu sync.Mutex
	status   models.DeviceStatus

	infoMu  sync.Mutex
	info    *models.DeviceInfo
	infoSet bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(cfg SessionConfig, observers *registry, battery BatteryReader, log *zap.Logger) *Session {
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}
	if cfg.BatteryInterval <= 0 {
		cfg.BatteryInterval = DefaultBatteryInterval
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	s := &Session{
		cfg:         cfg,
		runID:       uuid.New().String(),
		log:         log.With(zap.String("device_id", cfg.DeviceID)),
		observers:   observers,
		battery:     battery,
		agg:         metrics.NewAggregator(cfg.BPMWindow, cfg.RRWindow),
		rsa:         breathing.NewEstimator(),
		accelWindow: ring.New[models.AccelSample](accelWindowCapacity),
		status:      models.StatusConnecting,
		done:        make(chan struct{}),
	}
	if cfg.Optical {
		s.optical = ppg.NewPipeline(cfg.SampleRate)
		s.syn = synthetic.NewGenerator(cfg.Seed)
		s.syntheticEnabled = true
	}
	return s
}

// RunID identifies this session instance across reconnects of the same
// device.
func (s *Session) RunID() string {
	return s.runID
}

// Status returns the externally driven connection state.
func (s *Session) Status() models.DeviceStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// SetStatus records a transport-driven status transition and notifies
// observers.
func (s *Session) SetStatus(status models.DeviceStatus) {
	s.statusMu.Lock()
	changed := s.status != status
	s.status = status
	s.statusMu.Unlock()

	if changed {
		s.log.Info("device status changed", zap.String("status", string(status)))
		s.observers.notifyStatus(s.cfg.DeviceID, status)
	}
}

// SetDeviceInfo stores the one-time device information read and notifies
// observers exactly once.
func (s *Session) SetDeviceInfo(info models.DeviceInfo) {
	s.infoMu.Lock()
	if s.infoSet {
		s.infoMu.Unlock()
		return
	}
	s.info = &info
	s.infoSet = true
	s.infoMu.Unlock()

	s.log.Info("device info stored",
		zap.String("manufacturer", info.Manufacturer),
		zap.String("model", info.Model),
		zap.String("firmware", info.Firmware))
	s.observers.notifyDeviceInfo(s.cfg.DeviceID, info)
}

// DeviceInfo returns the stored device information, if any.
func (s *Session) DeviceInfo() (models.DeviceInfo, bool) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	if !s.infoSet {
		return models.DeviceInfo{}, false
	}
	return *s.info, true
}

// Feed decodes one raw notification payload into the accumulation buffers.
// It never blocks and never returns an error for malformed input; dropped
// frames are logged at debug level. Frames are ignored unless the session is
// connected.
func (s *Session) Feed(kind models.FrameKind, data []byte) {
	if s.Status() != models.StatusConnected {
		return
	}

	switch kind {
	case models.FrameHeartRate:
		m, err := decode.HeartRate(data)
		if err != nil {
			s.log.Debug("dropping malformed heart rate frame", zap.Error(err))
			return
		}
		if m.HasBPM {
			s.acc.addBPM(m.BPM)
		}
		s.acc.addRR(m.RRIntervals)

	case models.FramePmdPpi:
		f, err := decode.PMD(data)
		if err != nil {
			s.log.Debug("dropping malformed PPI frame", zap.Error(err))
			return
		}
		s.acc.addRR(decode.PPI(f.Payload))

	case models.FramePmdPpg:
		f, err := decode.PMD(data)
		if err != nil {
			s.log.Debug("dropping malformed PPG frame", zap.Error(err))
			return
		}
		s.acc.addPPG(decode.PPG(f.Payload))

	case models.FramePmdAcc:
		f, err := decode.PMD(data)
		if err != nil {
			s.log.Debug("dropping malformed ACC frame", zap.Error(err))
			return
		}
		sample, err := decode.ACC(f.Payload)
		if err != nil {
			s.log.Debug("dropping malformed ACC payload", zap.Error(err))
			return
		}
		s.acc.addAccel(sample)

	default:
		s.log.Debug("dropping frame of unknown kind", zap.String("kind", string(kind)))
	}
}

// start launches the batch-processor goroutine.
func (s *Session) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.SetStatus(models.StatusConnected)

	go s.run(ctx)
}

// run is the periodic batch processor: it wakes once per batch interval,
// drains the accumulation buffers, drives the metric components and emits an
// update when the cycle produced new data. On cancellation it exits within
// one cycle; in-flight partial batches are discarded, not flushed.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.BatchInterval)
	defer ticker.Stop()

	s.lastBatteryPoll = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processBatch(time.Now())
			s.maybePollBattery(ctx)
		}
	}
}

// processBatch runs one drain-and-compute cycle at the given wall-clock
// time.
func (s *Session) processBatch(wall time.Time) {
	b := s.acc.drain()
	now := float64(wall.UnixNano()) / float64(time.Second)

	if s.optical != nil {
		if len(b.ppg) > 0 {
			s.optical.AddSamples(b.ppg)
		}
		res := s.optical.Process(now)
		if len(res.RRIntervals) > 0 {
			b.rr = append(b.rr, res.RRIntervals...)
		}
		if res.HasBreathing {
			s.rsa.SetExternalEstimate(res.BreathingRPM, models.QualityPPG)
		}
	}

	// Any real interval, native or PPG-derived, permanently retires the
	// synthetic source for this session.
	if len(b.rr) > 0 && s.syntheticEnabled {
		s.syntheticEnabled = false
		s.log.Info("real RR source active, synthetic generator disabled")
	}

	for _, sample := range b.accel {
		s.accelWindow.Push(sample)
	}

	produced := false

	if len(b.bpm) > 0 {
		last := b.bpm[len(b.bpm)-1]
		if s.agg.RecordBPM(last) {
			produced = true
		}
		if s.syntheticEnabled {
			b.rr = append(b.rr, s.syn.Generate(last, now)...)
		}
	}

	if len(b.rr) > 0 {
		if s.agg.RecordRR(b.rr) > 0 {
			produced = true
		}
		s.rsa.AddRRIntervals(b.rr, now)
	}

	if !produced {
		return
	}

	bpmMetrics, rrMetrics := s.agg.Snapshot()
	s.seq++
	update := models.NewMetricsUpdate(
		uuid.New().String(),
		s.cfg.DeviceID,
		bpmMetrics,
		rrMetrics,
		s.rsa.Current(),
		s.batteryLevel,
		s.seq,
	)
	s.observers.notifyMetrics(s.cfg.DeviceID, update)
}

// maybePollBattery performs the low-frequency battery read when its cadence
// has elapsed. The read never happens after cancellation.
func (s *Session) maybePollBattery(ctx context.Context) {
	if s.battery == nil || time.Since(s.lastBatteryPoll) < s.cfg.BatteryInterval {
		return
	}
	select {
	case <-ctx.Done():
		return
	default:
	}

	s.lastBatteryPoll = time.Now()
	level, err := s.battery.ReadBattery(s.cfg.DeviceID)
	if err != nil {
		s.log.Warn("battery poll failed", zap.Error(err))
		return
	}
	s.batteryLevel = &level
	s.log.Debug("battery level", zap.Uint8("percent", level))
}

// stop cancels the batch processor, waits for it to exit within a bounded
// timeout and releases all buffers.
func (s *Session) stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-s.done:
	case <-time.After(stopTimeout):
		return fmt.Errorf("collector: session %s did not stop within %s", s.cfg.DeviceID, stopTimeout)
	}

	s.SetStatus(models.StatusDisconnected)

	s.acc.drain() // discard partial batch
	s.agg.Reset()
	s.rsa.Reset()
	if s.optical != nil {
		s.optical.Reset()
	}
	if s.syn != nil {
		s.syn.Reset()
	}
	s.accelWindow.Clear()
	return nil
}

// SyntheticEnabled reports whether the fallback RR generator is still the
// active interval source.
func (s *Session) SyntheticEnabled() bool {
	return s.syntheticEnabled
}

// AccelWindow returns a copy of the rolling accelerometer window.
func (s *Session) AccelWindow() []models.AccelSample {
	return s.accelWindow.Items()
}
