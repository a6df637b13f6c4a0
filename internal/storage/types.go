package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines journal at <path>.events.jsonl
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one journal entry. Keep it compact and schema-stable.
type Record struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	Type        string    `json:"type"`
	JobID       string    `json:"job_id,omitempty"`
	Index       int       `json:"index"`
	TimestampMS int64     `json:"timestamp_ms"`
	ElapsedMS   float64   `json:"elapsed_ms"`
	TookMS      int64     `json:"took_ms,omitempty"`
	Error       string    `json:"error,omitempty"`
}
