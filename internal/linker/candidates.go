package linker

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex"
)

// CandidateSearch is the cheap recall stage. It queries the vector index
// scoped to the entry's owner and falls back to recent entries when no
// index is configured or the query fails.
type CandidateSearch struct {
	store EntryStore
	index vectorindex.Index
	log   *logger.Logger
	cfg   Config
}

// FallbackScore is attached to fallback candidates so downstream stages see
// a neutral confidence rather than a fabricated similarity.
const FallbackScore = 0.5

func NewCandidateSearch(store EntryStore, index vectorindex.Index, log *logger.Logger, cfg Config) *CandidateSearch {
	return &CandidateSearch{
		store: store,
		index: index,
		log:   log.With("service", "CandidateSearch"),
		cfg:   cfg,
	}
}

// FindSimilar returns candidates scoring strictly above threshold, most
// similar first, at most limit of them (cfg.MaxLinks when limit <= 0). The
// second return reports whether the degraded fallback path produced the
// result.
func (s *CandidateSearch) FindSimilar(ctx context.Context, entry *domain.Entry, limit int, threshold float64) ([]Candidate, bool, error) {
	if limit <= 0 {
		limit = s.cfg.MaxLinks
	}
	vec := entry.EmbeddingVector()
	if vec == nil {
		return nil, false, ErrNoEmbedding
	}

	if s.index == nil {
		cands, err := s.fallbackRecent(ctx, entry, limit)
		return cands, true, err
	}

	matches, err := s.index.Query(ctx, entry.UserID.String(), vec, s.cfg.CandidateLimit)
	if err != nil {
		s.log.Warn("Vector query failed, using recent-entries fallback",
			"entry_id", entry.ID.String(),
			"error", err.Error(),
		)
		cands, fbErr := s.fallbackRecent(ctx, entry, limit)
		return cands, true, fbErr
	}

	type scored struct {
		id    uuid.UUID
		score float64
	}
	var keep []scored
	for _, m := range matches {
		id, parseErr := uuid.Parse(m.ID)
		if parseErr != nil || id == entry.ID {
			continue
		}
		if m.Score <= threshold {
			continue
		}
		keep = append(keep, scored{id: id, score: m.Score})
	}
	sort.SliceStable(keep, func(i, j int) bool { return keep[i].score > keep[j].score })
	if len(keep) > limit {
		keep = keep[:limit]
	}

	out := make([]Candidate, 0, len(keep))
	for _, k := range keep {
		target, getErr := s.store.GetByID(ctx, nil, k.id)
		if getErr != nil {
			// Index entries can outlive their rows briefly after deletes.
			s.log.Warn("Candidate row missing, skipping", "candidate_id", k.id.String())
			continue
		}
		if target.UserID != entry.UserID {
			continue
		}
		out = append(out, Candidate{Entry: target, Score: k.score})
	}
	return out, false, nil
}

func (s *CandidateSearch) fallbackRecent(ctx context.Context, entry *domain.Entry, limit int) ([]Candidate, error) {
	n := s.cfg.FallbackRecent
	if limit < n {
		n = limit
	}
	recent, err := s.store.ListRecentByUser(ctx, nil, entry.UserID, n, entry.ID)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(recent))
	for i := range recent {
		out = append(out, Candidate{Entry: &recent[i], Score: FallbackScore})
	}
	return out, nil
}
