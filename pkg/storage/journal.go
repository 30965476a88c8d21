package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Submission outcomes recorded in the journal.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeUnknown   = "unknown" // timed out or lost after ordering; the ledger may or may not have applied it
	OutcomeFailed    = "failed"  // never reached the contract
)

// JournalEntry is one submitted ledger transaction.
type JournalEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Tx        string    `json:"tx"`
	Args      []string  `json:"args,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

type Journal interface {
	Append(e JournalEntry) error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal               { return &NopJournal{} }
func (NopJournal) Append(_ JournalEntry) error { return nil }

// FileJournal appends one JSON object per line.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(e JournalEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.f.Write(line)
	return err
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
