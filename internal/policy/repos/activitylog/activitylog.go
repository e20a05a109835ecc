// Package activitylog is the append-only audit trail of policy mutations,
// persisted in bbolt. Entries are never updated or deleted.
package activitylog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/famfilter/internal/policy/common/clock"
	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/domain"
)

var (
	bucketEntries  = []byte("entries")
	bucketByRule   = []byte("by_rule")
	bucketByDevice = []byte("by_device")
)

// Recorder appends activity entries to a bbolt database.
type Recorder struct {
	db     *bbolt.DB
	clock  clock.Clock
	logger log.Logger
}

type Options struct {
	Clock  clock.Clock
	Logger log.Logger
}

// Open opens (or creates) the activity database at path and ensures buckets exist.
func Open(path string, opts Options) (*Recorder, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketByRule, bucketByDevice} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Recorder{db: db, clock: opts.Clock, logger: opts.Logger}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.logger == nil {
		r.logger = log.NewNoopLogger()
	}
	return r, nil
}

func (r *Recorder) Close() error { return r.db.Close() }

// Record validates rec and appends it. An action outside the enum fails with
// domain.ErrUnknownAction and nothing is written.
func (r *Recorder) Record(ctx context.Context, rec domain.ActivityRecord) (domain.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.LogEntry{}, err
	}
	action, err := domain.ParseActionType(string(rec.Action))
	if err != nil {
		return domain.LogEntry{}, err
	}
	if rec.RuleID == "" {
		return domain.LogEntry{}, fmt.Errorf("%w: activity needs a rule id", domain.ErrInvalidInput)
	}
	actor, err := domain.ParseActor(string(rec.PerformedBy))
	if err != nil {
		return domain.LogEntry{}, err
	}

	entry := domain.LogEntry{
		ID:          uuid.NewString(),
		RuleID:      rec.RuleID,
		DeviceID:    rec.DeviceID,
		Action:      action,
		Details:     rec.Details,
		PerformedBy: actor,
		IPAddress:   rec.IPAddress,
		CreatedAt:   r.clock.Now().UTC(),
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("encode activity: %w", err)
	}

	err = r.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		seq, err := entries.NextSequence()
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := entries.Put(key, val); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByRule).Put(indexKey(entry.RuleID, key), []byte{1}); err != nil {
			return err
		}
		if entry.DeviceID != "" {
			return tx.Bucket(bucketByDevice).Put(indexKey(entry.DeviceID, key), []byte{1})
		}
		return nil
	})
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("append activity: %w", err)
	}

	r.logger.Debug(map[string]any{
		"id":     entry.ID,
		"rule":   entry.RuleID,
		"action": string(entry.Action),
		"by":     string(entry.PerformedBy),
	}, "activity recorded")
	return entry, nil
}

// ListForRule returns up to limit entries for the rule, newest first. A limit
// of zero or less returns every entry.
func (r *Recorder) ListForRule(ruleID string, limit int) ([]domain.LogEntry, error) {
	return r.listIndexed(bucketByRule, ruleID, limit)
}

// ListForDevice returns up to limit entries for the device, newest first.
func (r *Recorder) ListForDevice(deviceID string, limit int) ([]domain.LogEntry, error) {
	return r.listIndexed(bucketByDevice, deviceID, limit)
}

// Recent returns the entries created within the last days days, newest first.
func (r *Recorder) Recent(days int) ([]domain.LogEntry, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", domain.ErrInvalidInput)
	}
	cutoff := r.clock.Now().AddDate(0, 0, -days)
	var out []domain.LogEntry
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e domain.LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode activity %x: %w", k, err)
			}
			if e.CreatedAt.Before(cutoff) {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Count returns the number of recorded entries.
func (r *Recorder) Count() int {
	var n int
	_ = r.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return n
}

func (r *Recorder) listIndexed(bucket []byte, owner string, limit int) ([]domain.LogEntry, error) {
	var out []domain.LogEntry
	prefix := append([]byte(owner), 0)
	err := r.db.View(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucket).Cursor()
		entries := tx.Bucket(bucketEntries)

		// collect matching sequence keys, then walk them backwards
		var keys [][]byte
		for k, _ := idx.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = idx.Next() {
			keys = append(keys, bytes.Clone(k[len(prefix):]))
		}
		for i := len(keys) - 1; i >= 0; i-- {
			if limit > 0 && len(out) >= limit {
				break
			}
			v := entries.Get(keys[i])
			if v == nil {
				continue
			}
			var e domain.LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode activity %x: %w", keys[i], err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// indexKey is owner, a zero byte, then the entry's sequence key.
func indexKey(owner string, seq []byte) []byte {
	k := make([]byte, 0, len(owner)+1+len(seq))
	k = append(k, owner...)
	k = append(k, 0)
	return append(k, seq...)
}
