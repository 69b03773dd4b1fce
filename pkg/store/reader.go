package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flock/pkg/log"
)

const (
	// DefaultMaxRetries bounds how many times Load re-reads a document
	// before giving up for the cycle.
	DefaultMaxRetries = 60

	// DefaultBackoff is the pause between retries.
	DefaultBackoff = time.Second

	// Retries past this count are logged; the first few are the common
	// producer-lag case and stay quiet.
	quietRetries = 3
)

// Reader loads JSON documents from a Store with bounded retry. It masks two
// transient failure modes: the file does not exist yet because the producer
// is lagging, and a reader observes a truncated view mid-rewrite. After the
// budget is exhausted it returns ErrUnreadable, which every caller treats as
// skip-this-cycle.
type Reader struct {
	store      Store
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
}

// NewReader returns a Reader over s. maxRetries <= 0 and backoff <= 0 fall
// back to the defaults.
func NewReader(s Store, maxRetries int, backoff time.Duration) *Reader {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Reader{
		store:      s,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     log.WithComponent("store"),
	}
}

// Load reads the JSON document at path into v, retrying on any failure up to
// the budget. It returns ErrUnreadable once the budget is spent.
func (r *Reader) Load(path string, v any) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		data, err := r.store.ReadFile(path)
		if err == nil {
			err = json.Unmarshal(data, v)
			if err == nil {
				return nil
			}
		}
		lastErr = err

		if attempt > quietRetries {
			r.logger.Debug().
				Str("path", path).
				Int("attempt", attempt).
				Err(err).
				Msg("Document not readable yet, retrying")
		}
		if attempt < r.maxRetries {
			time.Sleep(r.backoff)
		}
	}
	return errors.Join(ErrUnreadable, lastErr)
}

// Store returns the underlying store.
func (r *Reader) Store() Store {
	return r.store
}
