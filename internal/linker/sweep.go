package linker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex"
)

// Summary reports one sweep run. Errors holds per-entry and per-user
// failures that were isolated rather than aborting the run.
type Summary struct {
	ProcessedUsers         int      `json:"processed_users"`
	OrphanEntriesProcessed int      `json:"orphan_entries_processed"`
	SuggestionsGenerated   int      `json:"suggestions_generated"`
	ContradictionsFound    int      `json:"contradictions_found"`
	Errors                 []string `json:"errors,omitempty"`
}

// Sweep is the batch job that revisits orphan entries, those with at most
// one link. It first backfills missing embeddings, then reruns the linking
// pipeline at the looser sweep threshold.
type Sweep struct {
	users    UserStore
	entries  EntryStore
	embedder Embedder
	index    vectorindex.Index
	links    *AutoLinker
	log      *logger.Logger
	cfg      Config
}

func NewSweep(
	users UserStore,
	entriesStore EntryStore,
	embedder Embedder,
	index vectorindex.Index,
	links *AutoLinker,
	log *logger.Logger,
	cfg Config,
) *Sweep {
	return &Sweep{
		users:    users,
		entries:  entriesStore,
		embedder: embedder,
		index:    index,
		links:    links,
		log:      log.With("service", "OrphanSweep"),
		cfg:      cfg,
	}
}

func (s *Sweep) Run(ctx context.Context) *Summary {
	summary := &Summary{}

	userIDs, err := s.users.ListIDs(ctx, nil)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("list users: %v", err))
		return summary
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("aborted: %v", ctx.Err()))
			return summary
		}
		if uErr := s.sweepUser(ctx, userID, summary); uErr != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("user %s: %v", userID, uErr))
			continue
		}
		summary.ProcessedUsers++
	}

	s.log.Info("Sweep finished",
		"processed_users", summary.ProcessedUsers,
		"orphans_processed", summary.OrphanEntriesProcessed,
		"suggestions", summary.SuggestionsGenerated,
		"contradictions", summary.ContradictionsFound,
		"errors", len(summary.Errors),
	)
	return summary
}

func (s *Sweep) sweepUser(ctx context.Context, userID uuid.UUID, summary *Summary) error {
	s.backfillEmbeddings(ctx, userID, summary)

	embedded, err := s.entries.ListEmbeddedByUser(ctx, nil, userID)
	if err != nil {
		return err
	}

	var newest *domain.Entry
	for i := range embedded {
		entry := &embedded[i]
		if newest == nil || entry.CreatedAt.After(newest.CreatedAt) {
			newest = entry
		}
		if entry.LinkCount() > 1 {
			continue
		}

		result, linkErr := s.links.LinkEntry(ctx, entry, s.cfg.SweepThreshold)
		if linkErr != nil {
			if errors.Is(linkErr, ErrNoEmbedding) {
				continue
			}
			summary.Errors = append(summary.Errors, fmt.Sprintf("entry %s: %v", entry.ID, linkErr))
			continue
		}
		summary.OrphanEntriesProcessed++
		summary.SuggestionsGenerated += result.LinksCreated
		summary.ContradictionsFound += len(result.Contradictions)
	}

	// The orphan passes above already screen their entries for
	// contradictions. An owner whose recent entries are all well linked
	// still gets one pass over the window.
	if newest != nil && newest.LinkCount() > 1 {
		recorded, cErr := s.links.ScreenContradictions(ctx, newest)
		if cErr != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("contradiction screen for %s: %v", userID, cErr))
		} else {
			summary.ContradictionsFound += len(recorded)
		}
	}
	return nil
}

// backfillEmbeddings embeds entries that were created while the embedding
// provider was down. Failures here never block the sweep itself.
func (s *Sweep) backfillEmbeddings(ctx context.Context, userID uuid.UUID, summary *Summary) {
	if s.embedder == nil {
		return
	}

	missing, err := s.entries.ListUnembeddedByUser(ctx, nil, userID)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("list unembedded for %s: %v", userID, err))
		return
	}
	if len(missing) == 0 {
		return
	}

	inputs := make([]string, len(missing))
	for i := range missing {
		inputs[i] = missing[i].JudgeText(0)
	}

	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("embed backfill for %s: %v", userID, err))
		return
	}

	for i := range missing {
		entry := &missing[i]
		if err := entry.SetEmbedding(vectors[i]); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("entry %s: %v", entry.ID, err))
			continue
		}
		if err := s.entries.UpdateEmbedding(ctx, nil, entry.ID, entry.Embedding); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("entry %s: %v", entry.ID, err))
			continue
		}
		if s.index != nil {
			vec := vectorindex.Vector{
				ID:        entry.ID.String(),
				Namespace: userID.String(),
				Values:    vectors[i],
				Metadata:  map[string]any{"kind": string(entry.Kind)},
			}
			if err := s.index.Upsert(ctx, []vectorindex.Vector{vec}); err != nil {
				s.log.Warn("Index upsert failed during backfill",
					"entry_id", entry.ID.String(),
					"error", err.Error(),
				)
			}
		}
	}
}
