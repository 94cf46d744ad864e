// Package logs provides the per-run conversion record: an ordered list of
// human-readable messages plus a flat map of diagnostic data, written to disk
// as a single JSON document when the run ends.
package logs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"
)

// ErrAlreadySaved is returned by Save after the record has been written once.
var ErrAlreadySaved = errors.New("log record already saved")

// Entry is a single message of the record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// document is the on-disk layout of a saved record.
type document struct {
	Messages []Entry        `json:"messages"`
	Data     map[string]any `json:"data"`
}

// Record accumulates messages and data for one conversion run.
// A Record is safe for concurrent use.
type Record struct {
	mu      sync.Mutex
	entries []Entry
	data    map[string]any
	saved   bool

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Record.
type Option func(*Record)

// WithLogger mirrors every message to logger at info level.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Record) {
		r.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Record) {
		r.now = now
	}
}

// New creates an empty record.
func New(opts ...Option) *Record {
	r := &Record{
		data: make(map[string]any),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddMessage appends a message with its details. The details map is copied;
// non-finite floats are stored as strings so the record stays encodable.
func (r *Record) AddMessage(message string, details map[string]any) {
	entry := Entry{
		Message: message,
		Details: make(map[string]any, len(details)),
	}
	for k, v := range details {
		entry.Details[k] = encodable(v)
	}

	r.mu.Lock()
	entry.Time = r.now().UTC()
	r.entries = append(r.entries, entry)
	logger := r.logger
	r.mu.Unlock()

	if logger != nil {
		args := make([]any, 0, 2*len(details))
		for k, v := range details {
			args = append(args, k, v)
		}
		logger.Info(message, args...)
	}
}

// AddData merges key/value pairs into the accumulated data. Later writes win.
func (r *Record) AddData(data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range data {
		r.data[k] = encodable(v)
	}
}

// Entries returns a copy of the messages in insertion order.
func (r *Record) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Last returns the most recent message.
func (r *Record) Last() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Data returns a copy of the accumulated data.
func (r *Record) Data() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.data)
}

// Save writes the record as JSON to path. The file is written to a temporary
// sibling first and renamed into place, so readers never observe a partial
// document. Save succeeds at most once per record.
func (r *Record) Save(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saved {
		return ErrAlreadySaved
	}

	doc := document{Messages: r.entries, Data: r.data}
	if doc.Messages == nil {
		doc.Messages = []Entry{}
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode log record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".logs-*.json")
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("failed to write log file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // logs are meant to be shared
		return fmt.Errorf("failed to set log file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move log file into place: %w", err)
	}

	r.saved = true
	return nil
}

// encodable replaces NaN and infinities, which encoding/json rejects, with
// their string form. Other values are returned unchanged.
func encodable(v any) any {
	switch v := v.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
	case float32:
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 32)
		}
	case []float64:
		if slices.ContainsFunc(v, func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }) {
			out := make([]any, len(v))
			for i, f := range v {
				out[i] = encodable(f)
			}
			return out
		}
	case []float32:
		if slices.ContainsFunc(v, func(f float32) bool { return math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) }) {
			out := make([]any, len(v))
			for i, f := range v {
				out[i] = encodable(f)
			}
			return out
		}
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = encodable(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = encodable(e)
		}
		return out
	}
	return v
}
