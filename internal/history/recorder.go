// Package history keeps the per-identity scan log.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/BikramMondal5/MediVerify/internal/storage"
)

// Recorder owns read and append access to the history stored under each
// identity token. New entries are prepended so listings are newest first.
type Recorder struct {
	store storage.Port
	mu    sync.Mutex
}

func NewRecorder(store storage.Port) *Recorder {
	return &Recorder{store: store}
}

// Summary partitions a history by verdict.
type Summary struct {
	Total       int `json:"total" yaml:"total"`
	Authentic   int `json:"authentic" yaml:"authentic"`
	Counterfeit int `json:"counterfeit" yaml:"counterfeit"`
}

// Append inserts entry at the head of the token's history. An unreadable
// existing value is replaced rather than failing the append.
func (r *Recorder) Append(ctx context.Context, token identity.Token, entry models.HistoryEntry) error {
	if err := identity.ValidateToken(string(token)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load(ctx, token)
	if err != nil {
		return err
	}

	updated := make([]models.HistoryEntry, 0, len(entries)+1)
	updated = append(updated, entry)
	updated = append(updated, entries...)

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := r.store.Set(ctx, string(token), string(data)); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	slog.Debug("History entry appended", "token", token, "result", entry.Result, "entries", len(updated))
	return nil
}

// List returns the token's entries, newest first. It never mutates storage.
func (r *Recorder) List(ctx context.Context, token identity.Token) ([]models.HistoryEntry, error) {
	if err := identity.ValidateToken(string(token)); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, token)
}

func (r *Recorder) load(ctx context.Context, token identity.Token) ([]models.HistoryEntry, error) {
	raw, found, err := r.store.Get(ctx, string(token))
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if !found || raw == "" {
		return []models.HistoryEntry{}, nil
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		slog.Warn("Discarding unreadable history", "token", token, "err", err)
		return []models.HistoryEntry{}, nil
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

// Aggregate counts authentic and counterfeit entries. Counterfeit is derived
// from the total.
func Aggregate(entries []models.HistoryEntry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		if e.IsAuthentic() {
			s.Authentic++
		}
	}
	s.Counterfeit = s.Total - s.Authentic
	return s
}
