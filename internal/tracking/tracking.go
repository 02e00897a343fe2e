// Package tracking persists, per source directory, the list of Label Studio
// export files that have already been routed.
//
// The record is a JSON array of file identifiers stored at
// tracking/processed_<source>.json. It only ever grows.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/annotation-router/internal/objstore"
)

// DefaultDir is the storage directory (bucket) holding tracking records.
const DefaultDir = "tracking"

// Record is the set of already-routed identifiers, kept in insertion order.
type Record struct {
	ids  []string
	seen map[string]struct{}
}

// NewRecord builds a record from ids, dropping duplicates.
func NewRecord(ids ...string) *Record {
	r := &Record{seen: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		r.Add(id)
	}
	return r
}

// Contains reports whether id has been routed.
func (r *Record) Contains(id string) bool {
	_, ok := r.seen[id]
	return ok
}

// Add appends id unless already present. It reports whether id was new.
func (r *Record) Add(id string) bool {
	if r.Contains(id) {
		return false
	}
	r.seen[id] = struct{}{}
	r.ids = append(r.ids, id)
	return true
}

// Len returns the number of tracked identifiers.
func (r *Record) Len() int { return len(r.ids) }

// IDs returns a copy of the identifiers in insertion order.
func (r *Record) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// MarshalJSON encodes the record as a plain JSON array.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.ids)
}

// Path returns the tracking record path for source under dir.
func Path(dir, source string) string {
	return objstore.Join(dir, fmt.Sprintf("processed_%s.json", source))
}

// Load reads the tracking record for source. A missing, unreadable or
// corrupt record yields an empty one; Load never fails a pass.
func Load(ctx context.Context, store objstore.Store, dir, source string) *Record {
	p := Path(dir, source)

	data, err := store.Read(ctx, p)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			log.Debug().Str("path", p).Msg("No tracking record yet, starting empty")
		} else {
			log.Warn().Err(err).Str("path", p).Msg("Tracking record unreadable, starting empty")
		}
		return NewRecord()
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		log.Warn().Err(err).Str("path", p).Int("bytes", len(data)).Msg("Tracking record corrupt, starting empty")
		return NewRecord()
	}

	r := NewRecord(ids...)
	log.Debug().Str("path", p).Int("tracked", r.Len()).Msg("Tracking record loaded")
	return r
}

// Save writes the full record for source in a single replace.
func Save(ctx context.Context, store objstore.Store, dir, source string, r *Record) error {
	p := Path(dir, source)

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal tracking record: %w", err)
	}
	if err := store.MakeDir(ctx, dir); err != nil {
		return fmt.Errorf("prepare tracking dir %s: %w", dir, err)
	}
	if err := store.Write(ctx, p, data); err != nil {
		return fmt.Errorf("persist tracking record %s: %w", p, err)
	}
	log.Debug().Str("path", p).Int("tracked", r.Len()).Msg("Tracking record saved")
	return nil
}
