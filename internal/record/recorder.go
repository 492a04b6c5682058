// Package record captures raw frame streams to NDJSON files and replays
// them into the collector with original timing.
package record

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/synheart/synheart-collector/internal/models"
)

// Entry is one recorded raw frame with its capture timestamp.
type Entry struct {
	Timestamp string `json:"ts"`
	DeviceID  string `json:"device_id"`
	Kind      string `json:"kind"`
	Data      string `json:"data"` // base64-encoded raw bytes
}

// Recorder writes raw frames to an NDJSON file
type Recorder struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewRecorder creates a new recorder
func NewRecorder(filename string) (*Recorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	return &Recorder{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Record writes one raw frame with the current timestamp.
func (r *Recorder) Record(deviceID string, kind models.FrameKind, data []byte) error {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		DeviceID:  deviceID,
		Kind:      string(kind),
		Data:      base64.StdEncoding.EncodeToString(data),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := r.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush flushes the buffer to disk
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Flush()
}

// Close flushes and closes the recorder
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}
