// Package queue implements the durable, ordered mutation queue: writes that
// failed to reach the origin wait here until a drain pass delivers them.
//
// Storage is a badger database. Pending entries live under zero-padded
// sequence keys, so iterating the prefix yields enqueue (FIFO) order.
// Every state transition is a single atomic transaction; the host may kill
// the process at any point and the queue still reflects a consistent
// snapshot.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	pendingPrefix    = "mutation:"
	deadLetterPrefix = "deadletter:"
	sequenceKey      = "mutation-seq"
)

// ErrDrainInFlight is returned when a drain trigger arrives while a pass is
// already running. Callers treat it as a no-op: the next scheduled trigger
// picks up anything the running pass missed.
var ErrDrainInFlight = errors.New("drain already in flight")

// SendFunc delivers one mutation to the origin. It returns the HTTP status
// on any response, or an error on transport failure.
type SendFunc func(ctx context.Context, m *Mutation) (int, error)

// Notifier receives terminal and dead-letter outcomes for client broadcast.
type Notifier interface {
	SyncSuccess(id, url string)
	SyncFailed(id string)
	SyncDeadLetter(id, url string)
}

// Queue is the durable mutation queue.
type Queue struct {
	db       *badger.DB
	seq      *badger.Sequence
	ceiling  int
	draining atomic.Bool
	logger   zerolog.Logger
}

// Open opens (or creates) the queue at dir.
// ceiling is the retry count above which entries are dead-lettered.
func Open(dir string, ceiling int, logger zerolog.Logger) (*Queue, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open queue sequence: %w", err)
	}

	q := &Queue{
		db:      db,
		seq:     seq,
		ceiling: ceiling,
		logger:  logger,
	}

	if n, err := q.Len(); err == nil {
		QueueDepth.Set(float64(n))
	}

	return q, nil
}

// Close releases the queue's resources.
func (q *Queue) Close() error {
	if err := q.seq.Release(); err != nil {
		q.logger.Warn().Err(err).Msg("Failed to release queue sequence")
	}
	return q.db.Close()
}

// pendingKey builds a FIFO-ordered key for a new entry.
func pendingKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", pendingPrefix, seq))
}

// Enqueue persists a mutation snapshot and returns its id.
// The caller answers the client immediately with an accepted response.
func (q *Queue) Enqueue(ctx context.Context, m *Mutation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now()
	}
	m.RetryCount = 0

	seq, err := q.seq.Next()
	if err != nil {
		return "", fmt.Errorf("next sequence: %w", err)
	}

	data, err := encodeMutation(m)
	if err != nil {
		return "", err
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(seq), data)
	})
	if err != nil {
		return "", fmt.Errorf("persist mutation %s: %w", m.ID, err)
	}

	Enqueued.Inc()
	QueueDepth.Inc()
	q.logger.Info().
		Str("mutation_id", m.ID).
		Str("method", m.Method).
		Str("url", m.URL).
		Msg("Queued mutation for later sync")

	return m.ID, nil
}

// pendingEntry pairs a mutation with its storage key for the drain pass.
type pendingEntry struct {
	key []byte
	m   *Mutation
}

// snapshotPending collects all pending entries in FIFO order.
func (q *Queue) snapshotPending() ([]pendingEntry, error) {
	var entries []pendingEntry

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(val []byte) error {
				m, err := decodeMutation(val)
				if err != nil {
					return err
				}
				entries = append(entries, pendingEntry{key: key, m: m})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot pending mutations: %w", err)
	}

	return entries, nil
}

// DrainAll gives every pending entry one delivery attempt, in enqueue order.
// Only one pass runs at a time; a concurrent trigger returns
// ErrDrainInFlight and does nothing. Entries enqueued while the pass runs
// are left for the next trigger.
func (q *Queue) DrainAll(ctx context.Context, send SendFunc, notify Notifier) error {
	if !q.draining.CompareAndSwap(false, true) {
		DrainCoalesced.Inc()
		q.logger.Debug().Msg("Drain trigger coalesced, pass already in flight")
		return ErrDrainInFlight
	}
	defer q.draining.Store(false)

	entries, err := q.snapshotPending()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		DrainPasses.Inc()
		return nil
	}

	q.logger.Info().Int("pending", len(entries)).Msg("Starting drain pass")

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.attempt(ctx, entry, send, notify)
	}

	DrainPasses.Inc()

	if n, err := q.Len(); err == nil {
		QueueDepth.Set(float64(n))
	}

	return nil
}

// attempt delivers one entry and applies its state transition. Each outcome
// is a single atomic put or delete; delivery errors only ever advance the
// retry count, never abort the pass.
func (q *Queue) attempt(ctx context.Context, entry pendingEntry, send SendFunc, notify Notifier) {
	m := entry.m

	status, err := send(ctx, m)

	switch {
	case err == nil && status >= 200 && status < 300:
		if delErr := q.delete(entry.key); delErr != nil {
			q.logger.Error().Err(delErr).Str("mutation_id", m.ID).Msg("Failed to delete delivered mutation")
			return
		}
		DrainOutcomes.WithLabelValues("delivered").Inc()
		q.logger.Info().
			Str("mutation_id", m.ID).
			Str("url", m.URL).
			Msg("Mutation delivered")
		if notify != nil {
			notify.SyncSuccess(m.ID, m.URL)
		}

	case err == nil && status >= 400 && status < 500:
		// Client error: retrying would repeat it indefinitely.
		if delErr := q.delete(entry.key); delErr != nil {
			q.logger.Error().Err(delErr).Str("mutation_id", m.ID).Msg("Failed to delete rejected mutation")
			return
		}
		DrainOutcomes.WithLabelValues("rejected").Inc()
		q.logger.Warn().
			Str("mutation_id", m.ID).
			Str("url", m.URL).
			Int("status", status).
			Msg("Mutation rejected by origin, dropping")
		if notify != nil {
			notify.SyncFailed(m.ID)
		}

	default:
		// Transport error or 5xx: transient, count the attempt.
		m.RetryCount++

		if m.RetryCount > q.ceiling {
			if dlErr := q.deadLetter(entry.key, m); dlErr != nil {
				q.logger.Error().Err(dlErr).Str("mutation_id", m.ID).Msg("Failed to dead-letter mutation")
				return
			}
			DrainOutcomes.WithLabelValues("dead_lettered").Inc()
			q.logger.Error().
				Str("mutation_id", m.ID).
				Str("url", m.URL).
				Int("retry_count", m.RetryCount).
				Msg("Mutation exceeded retry ceiling, dead-lettered")
			if notify != nil {
				notify.SyncDeadLetter(m.ID, m.URL)
			}
			return
		}

		if upErr := q.update(entry.key, m); upErr != nil {
			q.logger.Error().Err(upErr).Str("mutation_id", m.ID).Msg("Failed to persist retry count")
			return
		}
		DrainOutcomes.WithLabelValues("retried").Inc()
		q.logger.Warn().
			Str("mutation_id", m.ID).
			Int("retry_count", m.RetryCount).
			Int("status", status).
			Err(err).
			Msg("Mutation delivery failed, will retry next pass")
	}
}

func (q *Queue) delete(key []byte) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err == nil {
		QueueDepth.Dec()
	}
	return err
}

func (q *Queue) update(key []byte, m *Mutation) error {
	data, err := encodeMutation(m)
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// deadLetter moves an entry from the pending prefix to the dead-letter
// prefix in one transaction, preserving the record for diagnostics instead
// of dropping it silently.
func (q *Queue) deadLetter(key []byte, m *Mutation) error {
	data, err := encodeMutation(m)
	if err != nil {
		return err
	}

	dlKey := append([]byte(deadLetterPrefix), key[len(pendingPrefix):]...)

	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Set(dlKey, data)
	})
	if err == nil {
		QueueDepth.Dec()
	}
	return err
}

// Len returns the number of pending mutations.
func (q *Queue) Len() (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count pending mutations: %w", err)
	}
	return count, nil
}

// Pending returns all pending mutations in enqueue order.
func (q *Queue) Pending() ([]Mutation, error) {
	entries, err := q.snapshotPending()
	if err != nil {
		return nil, err
	}
	out := make([]Mutation, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e.m)
	}
	return out, nil
}

// DeadLetters returns every dead-lettered mutation, oldest first.
func (q *Queue) DeadLetters() ([]Mutation, error) {
	var out []Mutation

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deadLetterPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				m, err := decodeMutation(val)
				if err != nil {
					return err
				}
				out = append(out, *m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	return out, nil
}

// SnapshotFromRequest captures a request as a queueable mutation.
func SnapshotFromRequest(r *http.Request, body []byte) *Mutation {
	url := r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}
	return &Mutation{
		URL:        url,
		Method:     r.Method,
		Headers:    r.Header.Clone(),
		Body:       string(body),
		EnqueuedAt: time.Now(),
	}
}
