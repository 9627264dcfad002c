package linker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mnemos-app/mnemos-backend/internal/data/repos/entries"
	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

// GraphMaintainer owns all writes to the per-entry links lists. Every write
// goes through an optimistic reload-and-retry loop keyed on link_version, so
// concurrent linking passes merge instead of clobbering each other.
type GraphMaintainer struct {
	store EntryStore
	log   *logger.Logger
	cfg   Config
}

func NewGraphMaintainer(store EntryStore, log *logger.Logger, cfg Config) *GraphMaintainer {
	return &GraphMaintainer{
		store: store,
		log:   log.With("service", "GraphMaintainer"),
		cfg:   cfg,
	}
}

// ApplyLinks records the accepted links on the source entry and mirrors
// each edge onto its target. A failed mirror write is logged and skipped;
// the source-side edge stays.
func (g *GraphMaintainer) ApplyLinks(ctx context.Context, source *domain.Entry, accepted []AcceptedLink) (int, error) {
	now := time.Now().UTC()

	seen := map[uuid.UUID]bool{source.ID: true}
	var forward []domain.LinkEdge
	var targets []AcceptedLink
	for _, a := range accepted {
		if a.Target == nil || seen[a.Target.ID] {
			continue
		}
		seen[a.Target.ID] = true
		score := a.Score
		forward = append(forward, domain.LinkEdge{
			TargetID:  a.Target.ID,
			Reason:    a.Reason,
			Score:     &score,
			CreatedAt: now,
		})
		targets = append(targets, a)
	}
	if len(forward) == 0 {
		return 0, nil
	}

	applied, err := g.appendEdges(ctx, source.ID, forward)
	if err != nil {
		return 0, err
	}

	appliedSet := make(map[uuid.UUID]bool, len(applied))
	for _, e := range applied {
		appliedSet[e.TargetID] = true
	}

	for _, a := range targets {
		if !appliedSet[a.Target.ID] {
			continue
		}
		score := a.Score
		mirror := domain.LinkEdge{
			TargetID:  source.ID,
			Reason:    a.Reason,
			Score:     &score,
			CreatedAt: now,
		}
		if _, mErr := g.appendEdges(ctx, a.Target.ID, []domain.LinkEdge{mirror}); mErr != nil {
			g.log.Warn("Mirror edge write failed",
				"source_id", source.ID.String(),
				"target_id", a.Target.ID.String(),
				"error", mErr.Error(),
			)
		}
	}

	return len(applied), nil
}

// AppendContradiction records a one-directional contradiction edge on the
// newer entry pointing at the older one.
func (g *GraphMaintainer) AppendContradiction(ctx context.Context, newer *domain.Entry, older *domain.Entry, reason string) error {
	edge := domain.LinkEdge{
		TargetID:        older.ID,
		Reason:          reason,
		IsContradiction: true,
		CreatedAt:       time.Now().UTC(),
	}
	_, err := g.appendEdges(ctx, newer.ID, []domain.LinkEdge{edge})
	return err
}

// RemoveReferences strips every edge pointing at deletedID from the owner's
// remaining entries. Used when an entry is deleted.
func (g *GraphMaintainer) RemoveReferences(ctx context.Context, userID, deletedID uuid.UUID) error {
	referrers, err := g.store.ListLinkingTo(ctx, nil, userID, deletedID)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range referrers {
		if rErr := g.removeEdgesTo(ctx, referrers[i].ID, deletedID); rErr != nil {
			g.log.Warn("Failed to strip dangling edge",
				"entry_id", referrers[i].ID.String(),
				"deleted_id", deletedID.String(),
				"error", rErr.Error(),
			)
			if firstErr == nil {
				firstErr = rErr
			}
		}
	}
	return firstErr
}

// appendEdges adds edges to an entry's links list, dropping any that would
// duplicate an existing edge or point the entry at itself. Returns the
// edges actually written.
func (g *GraphMaintainer) appendEdges(ctx context.Context, entryID uuid.UUID, edges []domain.LinkEdge) ([]domain.LinkEdge, error) {
	for attempt := 0; attempt <= g.cfg.MaxLinkRetries; attempt++ {
		entry, err := g.store.GetByID(ctx, nil, entryID)
		if err != nil {
			return nil, err
		}

		current := entry.LinkEdges()
		existing := make(map[uuid.UUID]bool, len(current))
		for _, e := range current {
			if !e.IsContradiction {
				existing[e.TargetID] = true
			}
		}
		existingContra := make(map[uuid.UUID]bool)
		for _, e := range current {
			if e.IsContradiction {
				existingContra[e.TargetID] = true
			}
		}

		var added []domain.LinkEdge
		for _, e := range edges {
			if e.TargetID == entryID {
				continue
			}
			if e.IsContradiction {
				if existingContra[e.TargetID] {
					continue
				}
			} else if existing[e.TargetID] {
				continue
			}
			added = append(added, e)
		}
		if len(added) == 0 {
			return nil, nil
		}

		next := append(current, added...)
		raw, err := marshalEdges(next)
		if err != nil {
			return nil, err
		}

		err = g.store.UpdateLinks(ctx, nil, entryID, raw, entry.LinkVersion)
		if err == nil {
			return added, nil
		}
		if !errors.Is(err, entries.ErrVersionConflict) {
			return nil, err
		}
		// Someone else rewrote the list; reload and merge again.
	}
	return nil, fmt.Errorf("link write for %s kept conflicting after %d retries", entryID, g.cfg.MaxLinkRetries)
}

func (g *GraphMaintainer) removeEdgesTo(ctx context.Context, entryID, targetID uuid.UUID) error {
	for attempt := 0; attempt <= g.cfg.MaxLinkRetries; attempt++ {
		entry, err := g.store.GetByID(ctx, nil, entryID)
		if err != nil {
			return err
		}

		current := entry.LinkEdges()
		kept := make([]domain.LinkEdge, 0, len(current))
		for _, e := range current {
			if e.TargetID != targetID {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(current) {
			return nil
		}

		raw, err := marshalEdges(kept)
		if err != nil {
			return err
		}
		err = g.store.UpdateLinks(ctx, nil, entryID, raw, entry.LinkVersion)
		if err == nil {
			return nil
		}
		if !errors.Is(err, entries.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("edge removal for %s kept conflicting after %d retries", entryID, g.cfg.MaxLinkRetries)
}

func marshalEdges(edges []domain.LinkEdge) (datatypes.JSON, error) {
	var e domain.Entry
	if err := e.SetLinkEdges(edges); err != nil {
		return nil, err
	}
	return e.Links, nil
}
