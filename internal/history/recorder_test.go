package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/BikramMondal5/MediVerify/internal/storage"
)

func entry(label string, n int) models.HistoryEntry {
	return models.HistoryEntry{
		Image:     fmt.Sprintf("data:image/png;base64,%d", n),
		Result:    label,
		Timestamp: fmt.Sprintf("2026-01-01T00:00:%02d.000Z", n),
	}
}

func TestAppendIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(storage.NewMemoryStore())
	token := identity.Token("guest_42")

	for i := 0; i < 7; i++ {
		label := models.CounterfeitLabel
		if i%3 == 0 {
			label = models.AuthenticLabel
		}
		if err := r.Append(ctx, token, entry(label, i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		list, err := r.List(ctx, token)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != i+1 {
			t.Errorf("Expected %d entries, got %d", i+1, len(list))
		}

		sum := Aggregate(list)
		if sum.Authentic+sum.Counterfeit != len(list) {
			t.Errorf("Expected counts to sum to %d, got %d+%d", len(list), sum.Authentic, sum.Counterfeit)
		}
	}
}

func TestAppendPrependsNewest(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(storage.NewMemoryStore())
	token := identity.Token("guest_1")

	_ = r.Append(ctx, token, entry(models.AuthenticLabel, 1))
	_ = r.Append(ctx, token, entry(models.CounterfeitLabel, 2))

	list, _ := r.List(ctx, token)
	if list[0].Timestamp != "2026-01-01T00:00:02.000Z" {
		t.Errorf("Expected newest entry first, got %+v", list[0])
	}
	if list[1].Result != models.AuthenticLabel {
		t.Errorf("Expected oldest entry last, got %+v", list[1])
	}
}

func TestReservedKeysAreNotHistories(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Set(ctx, identity.StorageKey, "guest_1"); err != nil {
		t.Fatal(err)
	}
	r := NewRecorder(store)

	if err := r.Append(ctx, identity.StorageKey, entry(models.AuthenticLabel, 1)); !errors.Is(err, identity.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken from Append, got %v", err)
	}
	if _, err := r.List(ctx, "darkMode"); !errors.Is(err, identity.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken from List, got %v", err)
	}
	if got, _, _ := store.Get(ctx, identity.StorageKey); got != "guest_1" {
		t.Errorf("Expected identity token to survive, got %q", got)
	}
}

func TestListFreshStorage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := NewRecorder(store)

	list, err := r.List(ctx, "guest_unknown")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(list))
	}
	if len(store.Keys()) != 0 {
		t.Errorf("Expected List to leave storage untouched, got keys %v", store.Keys())
	}
}

func TestAppendRecoversFromCorruptValue(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Set(ctx, "guest_1", "not-json")
	r := NewRecorder(store)

	list, err := r.List(ctx, "guest_1")
	if err != nil || len(list) != 0 {
		t.Fatalf("Expected corrupt value to list as empty, got %v, %v", list, err)
	}

	if err := r.Append(ctx, "guest_1", entry(models.AuthenticLabel, 1)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	list, err = r.List(ctx, "guest_1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(list))
	}
	raw, _, _ := store.Get(ctx, "guest_1")
	if raw[0] != '[' {
		t.Errorf("Expected a JSON array in storage, got %q", raw)
	}
}

func TestListReadsWebClientFormat(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	// entries written by the older client variant carry no timestamp
	_ = store.Set(ctx, "guest", `[{"image":"data:image/jpeg;base64,AA==","result":"✅ Authentic"},{"image":"x","result":"⚠️ Counterfeit"}]`)

	list, err := NewRecorder(store).List(ctx, "guest")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sum := Aggregate(list)
	if sum.Authentic != 1 || sum.Counterfeit != 1 || sum.Total != 2 {
		t.Errorf("Unexpected summary %+v", sum)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		entries  []models.HistoryEntry
		expected Summary
	}{
		{
			name:     "empty",
			entries:  nil,
			expected: Summary{},
		},
		{
			name: "mixed",
			entries: []models.HistoryEntry{
				{Result: models.AuthenticLabel},
				{Result: models.CounterfeitLabel},
				{Result: models.AuthenticLabel},
			},
			expected: Summary{Total: 3, Authentic: 2, Counterfeit: 1},
		},
		{
			name: "unknown labels count as counterfeit",
			entries: []models.HistoryEntry{
				{Result: "pending"},
			},
			expected: Summary{Total: 1, Counterfeit: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.entries); got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}
