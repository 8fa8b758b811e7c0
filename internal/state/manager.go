package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dgraph-io/badger/v3"
	"github.com/evanofslack/ddns-sync/internal/metrics"
)

const entryPrefix = "record:"

// Journal keeps the latest sync outcome per record for observation. It is
// never consulted when deciding whether to push an update.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

type badgerJournal struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

// New opens an in-memory journal; nothing survives a restart.
func New(metrics *metrics.Metrics) (Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &badgerJournal{db: db, metrics: metrics}, nil
}

// Record stores entry, carrying over the last success time and counting
// consecutive failures from the previous entry for the same record.
func (j *badgerJournal) Record(ctx context.Context, entry Entry) error {
	key := []byte(entry.key())
	err := j.db.Update(func(txn *badger.Txn) error {
		var prev Entry
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &prev)
			}); err != nil {
				return err
			}
		}

		if entry.Error == "" {
			entry.LastSuccess = entry.LastAttempt
			entry.Failures = 0
		} else {
			entry.LastSuccess = prev.LastSuccess
			entry.Failures = prev.Failures + 1
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	j.metrics.IncJournalRequest("update", err == nil)
	return err
}

func (j *badgerJournal) List(ctx context.Context) ([]Entry, error) {
	entries := []Entry{}

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	j.metrics.IncJournalRequest("read", err == nil)
	return entries, err
}

func (j *badgerJournal) Close() error {
	return j.db.Close()
}

// Handler serves the journal as JSON.
func Handler(j Journal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := j.List(r.Context())
		if err != nil {
			slog.Error("Failed to list sync journal", "error", err)
			http.Error(w, "journal unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			slog.Warn("Failed to write status response", "error", err)
		}
	})
}
