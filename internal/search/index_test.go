package search

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

func memIndex(t *testing.T) *Index {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	idx, err := OpenMem(log)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func doc(t *testing.T, userID uuid.UUID, title, body string, tags []string) *domain.Entry {
	t.Helper()
	e := &domain.Entry{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
		Body:   body,
		Kind:   domain.EntryKindText,
	}
	if err := e.SetTags(tags); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	return e
}

func TestSearchFindsByBodyText(t *testing.T) {
	idx := memIndex(t)
	owner := uuid.New()

	match := doc(t, owner, "debugging notes", "the ECONNRESET error came from the proxy", nil)
	other := doc(t, owner, "recipe", "slow-cook the onions", nil)
	for _, e := range []*domain.Entry{match, other} {
		if err := idx.IndexEntry(e); err != nil {
			t.Fatalf("IndexEntry: %v", err)
		}
	}

	hits, err := idx.Search(context.Background(), owner, "ECONNRESET", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].EntryID != match.ID {
		t.Fatalf("hits = %d, want the debugging note", len(hits))
	}
}

func TestSearchScopedToUser(t *testing.T) {
	idx := memIndex(t)
	owner := uuid.New()
	stranger := uuid.New()

	mine := doc(t, owner, "kubernetes", "pod eviction thresholds", nil)
	theirs := doc(t, stranger, "kubernetes", "pod eviction thresholds", nil)
	if err := idx.IndexEntries([]domain.Entry{*mine, *theirs}); err != nil {
		t.Fatalf("IndexEntries: %v", err)
	}

	hits, err := idx.Search(context.Background(), owner, "eviction", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].EntryID != mine.ID {
		t.Fatalf("hits = %d, want only the owner's entry", len(hits))
	}
}

func TestDeleteEntryRemovesFromResults(t *testing.T) {
	idx := memIndex(t)
	owner := uuid.New()

	e := doc(t, owner, "temp", "transient content", nil)
	if err := idx.IndexEntry(e); err != nil {
		t.Fatalf("IndexEntry: %v", err)
	}
	if err := idx.DeleteEntry(e.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}

	hits, err := idx.Search(context.Background(), owner, "transient", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0 after delete", len(hits))
	}
}
