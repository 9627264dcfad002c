package linker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mnemos-app/mnemos-backend/internal/data/repos/entries"
	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex"
)

type fakeStore struct {
	mu      sync.Mutex
	users   []uuid.UUID
	entries map[uuid.UUID]*domain.Entry

	// conflicts injects n spurious version bumps before an UpdateLinks on
	// the entry succeeds, simulating a concurrent writer.
	conflicts map[uuid.UUID]int

	recentErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:   make(map[uuid.UUID]*domain.Entry),
		conflicts: make(map[uuid.UUID]int),
	}
}

func (f *fakeStore) add(e *domain.Entry) *domain.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.entries[e.ID] = &cp
	return e
}

func (f *fakeStore) get(id uuid.UUID) *domain.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.entries[id]
	return &cp
}

func (f *fakeStore) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, entries.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) ListRecentByUser(_ context.Context, _ *gorm.DB, userID uuid.UUID, limit int, exclude uuid.UUID) ([]domain.Entry, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Entry
	for _, e := range f.entries {
		if e.UserID == userID && e.ID != exclude {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListEmbeddedByUser(_ context.Context, _ *gorm.DB, userID uuid.UUID) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Entry
	for _, e := range f.entries {
		if e.UserID == userID && e.EmbeddingVector() != nil {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) ListUnembeddedByUser(_ context.Context, _ *gorm.DB, userID uuid.UUID) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Entry
	for _, e := range f.entries {
		if e.UserID == userID && e.EmbeddingVector() == nil {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) ListLinkingTo(_ context.Context, _ *gorm.DB, userID, targetID uuid.UUID) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Entry
	for _, e := range f.entries {
		if e.UserID == userID && e.HasEdgeTo(targetID) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateLinks(_ context.Context, _ *gorm.DB, id uuid.UUID, links datatypes.JSON, loadedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return entries.ErrNotFound
	}
	if f.conflicts[id] > 0 {
		f.conflicts[id]--
		e.LinkVersion++
		return entries.ErrVersionConflict
	}
	if e.LinkVersion != loadedVersion {
		return entries.ErrVersionConflict
	}
	e.Links = links
	e.LinkVersion++
	return nil
}

func (f *fakeStore) UpdateEmbedding(_ context.Context, _ *gorm.DB, id uuid.UUID, embedding datatypes.JSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return entries.ErrNotFound
	}
	e.Embedding = embedding
	return nil
}

func (f *fakeStore) ListIDs(_ context.Context, _ *gorm.DB) ([]uuid.UUID, error) {
	return f.users, nil
}

type fakeIndex struct {
	mu       sync.Mutex
	matches  []vectorindex.Match
	queryErr error
	upserts  []vectorindex.Vector
	deleted  []string
}

func (f *fakeIndex) Upsert(_ context.Context, vectors []vectorindex.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, vectors...)
	return nil
}

func (f *fakeIndex) Query(_ context.Context, _ string, _ []float32, _ int) ([]vectorindex.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeIndex) Delete(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeJudgeModel struct {
	mu      sync.Mutex
	respond func(system, user, schemaName string) (map[string]any, error)
	calls   int
}

func (f *fakeJudgeModel) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.respond == nil {
		return map[string]any{"related": true, "reason": "shared topic"}, nil
	}
	return f.respond(system, user, schemaName)
}

type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(i+1) / float32(j+2)
		}
		out[i] = vec
	}
	return out, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

var entrySeq int

func mkEntry(t *testing.T, store *fakeStore, userID uuid.UUID, title, body string, tags []string, vec []float32) *domain.Entry {
	t.Helper()
	entrySeq++
	e := &domain.Entry{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Kind:      domain.EntryKindText,
		CreatedAt: time.Now().Add(time.Duration(entrySeq) * time.Second),
	}
	if err := e.SetTags(tags); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	if err := e.SetLinkEdges(nil); err != nil {
		t.Fatalf("SetLinkEdges: %v", err)
	}
	if vec != nil {
		if err := e.SetEmbedding(vec); err != nil {
			t.Fatalf("SetEmbedding: %v", err)
		}
	}
	store.add(e)
	return e
}

func matchFor(e *domain.Entry, score float64) vectorindex.Match {
	return vectorindex.Match{ID: e.ID.String(), Score: score}
}

func fmtEdges(edges []domain.LinkEdge) string {
	s := ""
	for _, e := range edges {
		s += fmt.Sprintf("%s(contra=%v) ", e.TargetID, e.IsContradiction)
	}
	return s
}
