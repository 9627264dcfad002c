package linker

import (
	"context"

	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

// AutoLinker runs the full pipeline for one entry: recall candidates, judge
// each, write the surviving edges, then screen for contradictions.
type AutoLinker struct {
	store      EntryStore
	candidates *CandidateSearch
	judge      *RelevanceJudge
	graph      *GraphMaintainer
	detector   *ContradictionDetector
	log        *logger.Logger
	cfg        Config
}

func NewAutoLinker(
	store EntryStore,
	candidates *CandidateSearch,
	judge *RelevanceJudge,
	graph *GraphMaintainer,
	detector *ContradictionDetector,
	log *logger.Logger,
	cfg Config,
) *AutoLinker {
	return &AutoLinker{
		store:      store,
		candidates: candidates,
		judge:      judge,
		graph:      graph,
		detector:   detector,
		log:        log.With("service", "AutoLinker"),
		cfg:        cfg,
	}
}

// Link processes the entry at the given threshold. ErrNoEmbedding is the
// only precondition failure; candidate or judge degradation is reflected in
// the result, not returned as an error.
func (a *AutoLinker) Link(ctx context.Context, entryID uuid.UUID, threshold float64) (*Result, error) {
	entry, err := a.store.GetByID(ctx, nil, entryID)
	if err != nil {
		return nil, err
	}
	return a.LinkEntry(ctx, entry, threshold)
}

func (a *AutoLinker) LinkEntry(ctx context.Context, entry *domain.Entry, threshold float64) (*Result, error) {
	return a.linkEntry(ctx, entry, threshold, a.cfg.MaxLinks)
}

// LinkEntryCapped bounds the number of new links for this run only.
// maxLinks <= 0 falls back to the configured default.
func (a *AutoLinker) LinkEntryCapped(ctx context.Context, entry *domain.Entry, threshold float64, maxLinks int) (*Result, error) {
	if maxLinks <= 0 {
		maxLinks = a.cfg.MaxLinks
	}
	return a.linkEntry(ctx, entry, threshold, maxLinks)
}

func (a *AutoLinker) linkEntry(ctx context.Context, entry *domain.Entry, threshold float64, maxLinks int) (*Result, error) {
	if entry.EmbeddingVector() == nil {
		return nil, ErrNoEmbedding
	}

	cands, degraded, err := a.candidates.FindSimilar(ctx, entry, maxLinks, threshold)
	if err != nil {
		return nil, err
	}

	var accepted []AcceptedLink
	for _, c := range cands {
		if entry.HasEdgeTo(c.Entry.ID) {
			continue
		}
		reason, ok := a.judge.Judge(ctx, entry, c.Entry, c.Score)
		if !ok {
			continue
		}
		accepted = append(accepted, AcceptedLink{Target: c.Entry, Reason: reason, Score: c.Score})
		if len(accepted) >= maxLinks {
			break
		}
	}

	created, err := a.graph.ApplyLinks(ctx, entry, accepted)
	if err != nil {
		return nil, err
	}

	result := &Result{
		EntryID:      entry.ID,
		Links:        accepted,
		LinksCreated: created,
		Degraded:     degraded,
	}

	contradictions, cErr := a.ScreenContradictions(ctx, entry)
	if cErr != nil {
		a.log.Warn("Contradiction detection failed",
			"entry_id", entry.ID.String(),
			"error", cErr.Error(),
		)
		return result, nil
	}
	result.Contradictions = contradictions
	return result, nil
}

// ScreenContradictions runs the detector for the entry against its owner's
// recent window and records the flagged edges. It returns the
// contradictions whose edges were written.
func (a *AutoLinker) ScreenContradictions(ctx context.Context, entry *domain.Entry) ([]Contradiction, error) {
	found, err := a.detector.Detect(ctx, entry)
	if err != nil {
		return nil, err
	}
	var recorded []Contradiction
	for _, c := range found {
		if appendErr := a.graph.AppendContradiction(ctx, entry, c.Target, c.Reason); appendErr != nil {
			a.log.Warn("Failed to record contradiction edge",
				"entry_id", entry.ID.String(),
				"target_id", c.Target.ID.String(),
				"error", appendErr.Error(),
			)
			continue
		}
		recorded = append(recorded, c)
	}
	return recorded, nil
}
