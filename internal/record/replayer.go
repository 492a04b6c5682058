package record

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/synheart/synheart-collector/internal/models"
)

// FrameSink receives replayed frames. The collector satisfies this.
type FrameSink interface {
	FeedRawFrame(deviceID string, kind models.FrameKind, data []byte)
}

// Replayer reads raw frames from an NDJSON recording and feeds them to a
// sink with the original inter-frame timing.
type Replayer struct {
	filename   string
	speed      float64
	loop       bool
	frameCount int
	firstEntry *Entry
	loaded     bool
}

// NewReplayer creates a new replayer
func NewReplayer(filename string, speed float64, loop bool) *Replayer {
	return &Replayer{
		filename: filename,
		speed:    speed,
		loop:     loop,
	}
}

// loadMetadata reads the file once to cache count and first entry
func (r *Replayer) loadMetadata() error {
	if r.loaded {
		return nil
	}

	file, err := os.Open(r.filename)
	if err != nil {
		return fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	r.frameCount = 0

	for scanner.Scan() {
		r.frameCount++
		if r.frameCount == 1 {
			var entry Entry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				return fmt.Errorf("failed to parse first entry: %w", err)
			}
			r.firstEntry = &entry
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	r.loaded = true
	return nil
}

// Replay feeds the recorded frames to the sink, preserving timing.
func (r *Replayer) Replay(ctx context.Context, sink FrameSink) error {
	for {
		if err := r.replayOnce(ctx, sink); err != nil {
			return err
		}

		if !r.loop {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Continue looping
		}
	}

	return nil
}

func (r *Replayer) replayOnce(ctx context.Context, sink FrameSink) error {
	file, err := os.Open(r.filename)
	if err != nil {
		return fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lastTimestamp time.Time
	lineNum := 0

	for scanner.Scan() {
		lineNum++

		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("failed to parse entry at line %d: %w", lineNum, err)
		}

		timestamp, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to parse timestamp at line %d: %w", lineNum, err)
		}

		// Calculate delay
		if lineNum == 1 {
			lastTimestamp = timestamp
		} else {
			delay := timestamp.Sub(lastTimestamp)
			if r.speed != 1.0 && r.speed > 0 {
				delay = time.Duration(float64(delay) / r.speed)
			}

			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			lastTimestamp = timestamp
		}

		data, err := base64.StdEncoding.DecodeString(entry.Data)
		if err != nil {
			return fmt.Errorf("failed to decode frame at line %d: %w", lineNum, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sink.FeedRawFrame(entry.DeviceID, models.FrameKind(entry.Kind), data)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	return nil
}

// CountFrames returns the number of frames in the recording
func (r *Replayer) CountFrames() (int, error) {
	if err := r.loadMetadata(); err != nil {
		return 0, err
	}
	return r.frameCount, nil
}

// GetFirstEntry returns the first entry in the recording
func (r *Replayer) GetFirstEntry() (*Entry, error) {
	if err := r.loadMetadata(); err != nil {
		return nil, err
	}
	if r.firstEntry == nil {
		return nil, fmt.Errorf("recording file is empty")
	}
	return r.firstEntry, nil
}
