// Package simulate produces realistic raw frame streams for development and
// testing without hardware. Frames are byte-identical in layout to what the
// sensors send, so the full decode path is exercised.
package simulate

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/models"
)

// Profile selects the simulated device type.
type Profile string

const (
	// ProfileStrap simulates a chest strap: heart rate notifications with
	// native RR intervals once per second.
	ProfileStrap Profile = "strap"

	// ProfileOptical simulates an optical sensor: BPM-only heart rate
	// notifications plus a raw PPG waveform and accelerometer frames.
	ProfileOptical Profile = "optical"
)

// FrameSink receives the generated frames. The collector satisfies this.
type FrameSink interface {
	FeedRawFrame(deviceID string, kind models.FrameKind, data []byte)
}

// Config holds simulator configuration.
type Config struct {
	DeviceID   string
	Profile    Profile
	Seed       int64
	BaseBPM    float64 // resting heart rate, default 72
	SampleRate float64 // optical waveform rate in Hz, default 135
}

const (
	hrInterval   = time.Second
	ppgInterval  = 200 * time.Millisecond
	accInterval  = 5 * time.Second
	rsaPeriodSec = 4.0
)

// Simulator generates frames for one virtual device.
type Simulator struct {
	cfg   Config
	rng   *rand.Rand
	log   *zap.Logger
	start time.Time

	phase float64 // cardiac cycle phase [0,1)
}

func New(cfg Config, log *zap.Logger) *Simulator {
	if cfg.BaseBPM <= 0 {
		cfg.BaseBPM = 72
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 135
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: log,
	}
}

// Run feeds frames to the sink until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, sink FrameSink) error {
	s.start = time.Now()

	hrTicker := time.NewTicker(hrInterval)
	defer hrTicker.Stop()

	var ppgC, accC <-chan time.Time
	if s.cfg.Profile == ProfileOptical {
		ppgTicker := time.NewTicker(ppgInterval)
		defer ppgTicker.Stop()
		ppgC = ppgTicker.C

		accTicker := time.NewTicker(accInterval)
		defer accTicker.Stop()
		accC = accTicker.C
	}

	s.log.Info("simulator started",
		zap.String("device_id", s.cfg.DeviceID),
		zap.String("profile", string(s.cfg.Profile)),
		zap.Int64("seed", s.cfg.Seed))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hrTicker.C:
			sink.FeedRawFrame(s.cfg.DeviceID, models.FrameHeartRate, s.heartRateFrame(s.elapsed()))
		case <-ppgC:
			sink.FeedRawFrame(s.cfg.DeviceID, models.FramePmdPpg, s.ppgFrame(s.elapsed()))
		case <-accC:
			sink.FeedRawFrame(s.cfg.DeviceID, models.FramePmdAcc, s.accFrame(s.elapsed()))
		}
	}
}

func (s *Simulator) elapsed() float64 {
	return time.Since(s.start).Seconds()
}

// currentBPM models a slow wander around the baseline with beat noise.
func (s *Simulator) currentBPM(elapsed float64) float64 {
	value := s.cfg.BaseBPM +
		5.0*math.Sin(2*math.Pi*elapsed/60.0) +
		s.rng.NormFloat64()*2.0
	return clamp(value, 40, 200)
}

// heartRateFrame builds a Heart Rate Measurement notification. Strap
// profiles include native RR intervals; optical profiles send BPM only.
func (s *Simulator) heartRateFrame(elapsed float64) []byte {
	bpm := s.currentBPM(elapsed)

	if s.cfg.Profile != ProfileStrap {
		return []byte{0x00, byte(math.Round(bpm))}
	}

	frame := []byte{0x10, byte(math.Round(bpm))}

	// One RR interval per elapsed second of mean beat time, RSA-modulated.
	meanMs := 60000.0 / bpm
	rsa := 1.0 + 0.03*math.Sin(2*math.Pi*elapsed/rsaPeriodSec)
	ms := meanMs*rsa + s.rng.NormFloat64()*meanMs*0.02
	ms = clamp(ms, 300, 1500)

	raw := uint16(math.Round(ms * 1024.0 / 1000.0))
	frame = binary.LittleEndian.AppendUint16(frame, raw)
	return frame
}

// ppgFrame builds a PMD PPG frame holding one tick's worth of waveform
// samples: a pulse-shaped wave with a systolic peak and dicrotic bump.
func (s *Simulator) ppgFrame(elapsed float64) []byte {
	bpm := s.currentBPM(elapsed)
	cycleHz := bpm / 60.0

	n := int(s.cfg.SampleRate * ppgInterval.Seconds())
	payload := make([]byte, 0, pmdHeaderLen+2*n)
	payload = s.appendPMDHeader(payload, 0x01, elapsed)

	for i := 0; i < n; i++ {
		s.phase += cycleHz / s.cfg.SampleRate
		if s.phase >= 1.0 {
			s.phase -= 1.0
		}

		v := 1.0*gauss(s.phase, 0.25, 0.08) +
			0.35*gauss(s.phase, 0.55, 0.10) +
			0.02*s.rng.NormFloat64()

		sample := int16(v * 8000)
		payload = binary.LittleEndian.AppendUint16(payload, uint16(sample))
	}
	return payload
}

// accFrame builds a PMD accelerometer frame: gravity plus wrist noise.
func (s *Simulator) accFrame(elapsed float64) []byte {
	payload := make([]byte, 0, pmdHeaderLen+6)
	payload = s.appendPMDHeader(payload, 0x02, elapsed)

	for _, base := range []float64{0, 0, 1000} {
		v := int16(base + s.rng.NormFloat64()*30)
		payload = binary.LittleEndian.AppendUint16(payload, uint16(v))
	}
	return payload
}

const pmdHeaderLen = 9

func (s *Simulator) appendPMDHeader(buf []byte, frameType byte, elapsed float64) []byte {
	buf = append(buf, frameType)
	return binary.LittleEndian.AppendUint64(buf, uint64(elapsed*1e9))
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
