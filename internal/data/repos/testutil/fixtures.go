package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
)

func SeedUser(t *testing.T, tx *gorm.DB) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:        uuid.NewString() + "@example.test",
		PasswordHash: "x",
		DisplayName:  "Test User",
	}
	if err := tx.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedEntry(t *testing.T, tx *gorm.DB, userID uuid.UUID, mutate ...func(*domain.Entry)) *domain.Entry {
	t.Helper()
	e := &domain.Entry{
		UserID: userID,
		Title:  "note " + uuid.NewString()[:8],
		Body:   "body text",
		Kind:   domain.EntryKindText,
	}
	if err := e.SetTags([]string{"test"}); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	if err := e.SetLinkEdges(nil); err != nil {
		t.Fatalf("set links: %v", err)
	}
	for _, m := range mutate {
		m(e)
	}
	if err := tx.Create(e).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return e
}

func SeedEmbeddedEntry(t *testing.T, tx *gorm.DB, userID uuid.UUID, vec []float32) *domain.Entry {
	t.Helper()
	return SeedEntry(t, tx, userID, func(e *domain.Entry) {
		if err := e.SetEmbedding(vec); err != nil {
			t.Fatalf("set embedding: %v", err)
		}
	})
}

// SeedLinkedEntry creates an entry already pointing at target.
func SeedLinkedEntry(t *testing.T, tx *gorm.DB, userID, target uuid.UUID) *domain.Entry {
	t.Helper()
	return SeedEntry(t, tx, userID, func(e *domain.Entry) {
		score := 0.8
		err := e.SetLinkEdges([]domain.LinkEdge{{
			TargetID:  target,
			Reason:    "seeded link",
			Score:     &score,
			CreatedAt: time.Now().UTC(),
		}})
		if err != nil {
			t.Fatalf("set link edges: %v", err)
		}
	})
}
