// Package linker implements automatic relationship discovery between a
// user's entries: vector recall proposes candidates cheaply, a language
// model judges each one qualitatively, and the survivors become
// bidirectional edges in the per-entry links lists. Contradiction detection
// and the orphan sweep build on the same pieces.
package linker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
)

// ErrNoEmbedding is the one hard precondition failure: linking an entry
// that was never embedded cannot proceed, interactively or in the sweep.
var ErrNoEmbedding = errors.New("entry has no embedding")

// EntryStore is the slice of the entries repo the linker needs.
type EntryStore interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Entry, error)
	ListRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int, exclude uuid.UUID) ([]domain.Entry, error)
	ListEmbeddedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]domain.Entry, error)
	ListUnembeddedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]domain.Entry, error)
	ListLinkingTo(ctx context.Context, tx *gorm.DB, userID, targetID uuid.UUID) ([]domain.Entry, error)
	UpdateLinks(ctx context.Context, tx *gorm.DB, id uuid.UUID, links datatypes.JSON, loadedVersion int) error
	UpdateEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, embedding datatypes.JSON) error
}

type UserStore interface {
	ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error)
}

// Embedder and JudgeModel are the two model capabilities the pipeline
// consumes; the OpenAI client satisfies both.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type JudgeModel interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type Config struct {
	// InteractiveThreshold gates vector candidates when linking a single
	// entry; SweepThreshold is the looser gate the batch sweep uses.
	InteractiveThreshold   float64
	SweepThreshold         float64
	NearDuplicateThreshold float64

	// MaxLinks caps how many similarity edges one linking pass may add.
	MaxLinks int

	// CandidateLimit bounds vector recall; FallbackRecent bounds the
	// recent-entries fallback when no vector index is available.
	CandidateLimit int
	FallbackRecent int

	// JudgeBodyBudget truncates entry bodies before they reach the model.
	JudgeBodyBudget int

	// ContradictionWindow is how many recent entries are screened for
	// conflicting claims.
	ContradictionWindow int

	// MaxLinkRetries bounds reload-and-retry on link version conflicts.
	MaxLinkRetries int
}

func DefaultConfig() Config {
	return Config{
		InteractiveThreshold:   0.7,
		SweepThreshold:         0.6,
		NearDuplicateThreshold: 0.9,
		MaxLinks:               5,
		CandidateLimit:         20,
		FallbackRecent:         5,
		JudgeBodyBudget:        300,
		ContradictionWindow:    10,
		MaxLinkRetries:         3,
	}
}

// Candidate is one proposed neighbor with its recall score.
type Candidate struct {
	Entry *domain.Entry
	Score float64
}

// AcceptedLink is a candidate the judge let through.
type AcceptedLink struct {
	Target *domain.Entry
	Reason string
	Score  float64
}

// Contradiction pairs the conflicting entry with the model's explanation.
type Contradiction struct {
	Target *domain.Entry
	Reason string
}

// Result summarizes one linking pass over a single entry.
type Result struct {
	EntryID        uuid.UUID       `json:"entry_id"`
	Links          []AcceptedLink  `json:"-"`
	LinksCreated   int             `json:"links_created"`
	Contradictions []Contradiction `json:"-"`
	Degraded       bool            `json:"degraded"`
}
