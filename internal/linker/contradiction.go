package linker

import (
	"context"
	"strings"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

const contradictionSystemPrompt = "You check whether two personal knowledge entries make conflicting factual claims. " +
	"A contradiction means both cannot be true at the same time. " +
	"Differing opinions, updates marked as such, or unrelated topics are not contradictions. " +
	"Respond with contradicts=false when unsure."

// ContradictionDetector screens a new entry against the owner's most recent
// entries for conflicting claims. A failed pairwise check skips that pair
// only.
type ContradictionDetector struct {
	store EntryStore
	model JudgeModel
	log   *logger.Logger
	cfg   Config
}

func NewContradictionDetector(store EntryStore, model JudgeModel, log *logger.Logger, cfg Config) *ContradictionDetector {
	return &ContradictionDetector{
		store: store,
		model: model,
		log:   log.With("service", "ContradictionDetector"),
		cfg:   cfg,
	}
}

// Detect returns the entries within the recent window whose claims the
// model judges incompatible with the source entry.
func (d *ContradictionDetector) Detect(ctx context.Context, source *domain.Entry) ([]Contradiction, error) {
	if d.model == nil {
		// No judge configured; contradiction screening is off.
		return nil, nil
	}

	window, err := d.store.ListRecentByUser(ctx, nil, source.UserID, d.cfg.ContradictionWindow, source.ID)
	if err != nil {
		return nil, err
	}

	sourceTags := toTagSet(source.TagList())

	var found []Contradiction
	for i := range window {
		other := &window[i]
		if !tagsOverlap(sourceTags, other.TagList()) {
			continue
		}

		contradicts, reason, pairErr := d.checkPair(ctx, source, other)
		if pairErr != nil {
			d.log.Warn("Contradiction check failed for pair, skipping",
				"source_id", source.ID.String(),
				"other_id", other.ID.String(),
				"error", pairErr.Error(),
			)
			continue
		}
		if contradicts {
			found = append(found, Contradiction{Target: other, Reason: reason})
		}
	}
	return found, nil
}

func (d *ContradictionDetector) checkPair(ctx context.Context, source, other *domain.Entry) (bool, string, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"contradicts": map[string]any{"type": "boolean"},
			"reason":      map[string]any{"type": "string"},
		},
		"required":             []string{"contradicts", "reason"},
		"additionalProperties": false,
	}

	user := strings.Join([]string{
		"Newer entry:",
		entryCard(source, d.cfg.JudgeBodyBudget),
		"",
		"Earlier entry:",
		entryCard(other, d.cfg.JudgeBodyBudget),
		"",
		"Do these entries make claims that cannot both be true? If so, state the conflict in one short sentence.",
	}, "\n")

	obj, err := d.model.GenerateJSON(ctx, contradictionSystemPrompt, user, "contradiction_check", schema)
	if err != nil {
		return false, "", err
	}

	contradicts, _ := obj["contradicts"].(bool)
	reason, _ := obj["reason"].(string)
	reason = strings.TrimSpace(reason)
	if !contradicts || reason == "" {
		return false, "", nil
	}
	return true, reason, nil
}

func toTagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return set
}

// Entries with no tags at all are still screened; the prefilter only prunes
// pairs whose tags exist but share nothing.
func tagsOverlap(sourceSet map[string]bool, otherTags []string) bool {
	if len(sourceSet) == 0 || len(otherTags) == 0 {
		return true
	}
	for _, t := range otherTags {
		if sourceSet[strings.ToLower(strings.TrimSpace(t))] {
			return true
		}
	}
	return false
}
