package linker

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

// NeutralReason is attached when the judge model is unreachable; the vector
// score already cleared the threshold, so the link survives with a
// non-committal explanation instead of being dropped.
const NeutralReason = "Potentially related content"

const duplicateReason = "Near-duplicate of an existing entry"

const judgeSystemPrompt = "You decide whether two personal knowledge entries are meaningfully related. " +
	"Connections worth keeping are shared topics, one entry elaborating on the other, or the same event from different angles. " +
	"Superficial word overlap is not a relation. " +
	"Respond with related=false when unsure."

// RelevanceJudge is the expensive qualitative stage. Scores above the
// near-duplicate threshold skip the model entirely.
type RelevanceJudge struct {
	model JudgeModel
	log   *logger.Logger
	cfg   Config
}

func NewRelevanceJudge(model JudgeModel, log *logger.Logger, cfg Config) *RelevanceJudge {
	return &RelevanceJudge{
		model: model,
		log:   log.With("service", "RelevanceJudge"),
		cfg:   cfg,
	}
}

// Judge returns the link reason and whether the candidate should be linked.
func (j *RelevanceJudge) Judge(ctx context.Context, source, candidate *domain.Entry, score float64) (string, bool) {
	if score > j.cfg.NearDuplicateThreshold {
		if sameContent(source, candidate) {
			return duplicateReason, true
		}
		return fmt.Sprintf("Strongly similar content (%d%% match)", int(math.Round(score*100))), true
	}

	if j.model == nil {
		// No judge configured. The score already cleared the threshold.
		return NeutralReason, true
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"related": map[string]any{"type": "boolean"},
			"reason":  map[string]any{"type": "string"},
		},
		"required":             []string{"related", "reason"},
		"additionalProperties": false,
	}

	user := strings.Join([]string{
		"Entry A:",
		entryCard(source, j.cfg.JudgeBodyBudget),
		"",
		"Entry B:",
		entryCard(candidate, j.cfg.JudgeBodyBudget),
		"",
		fmt.Sprintf("Vector similarity score: %.2f", score),
		"",
		"Are these two entries meaningfully related? If so, explain the relation in one short sentence.",
	}, "\n")

	obj, err := j.model.GenerateJSON(ctx, judgeSystemPrompt, user, "relevance_judgment", schema)
	if err != nil {
		j.log.Warn("Judge model unavailable, keeping candidate with neutral reason",
			"source_id", source.ID.String(),
			"candidate_id", candidate.ID.String(),
			"error", err.Error(),
		)
		return NeutralReason, true
	}

	related, _ := obj["related"].(bool)
	reason, _ := obj["reason"].(string)
	reason = strings.TrimSpace(reason)

	if !related {
		return "", false
	}
	if reason == "" {
		// A relation the model cannot articulate is not worth an edge.
		return "", false
	}
	return reason, true
}

func sameContent(a, b *domain.Entry) bool {
	return strings.EqualFold(strings.TrimSpace(a.Title), strings.TrimSpace(b.Title)) &&
		strings.TrimSpace(a.Body) == strings.TrimSpace(b.Body)
}

// entryCard renders one entry for a judge prompt: title, creation date,
// tags, and the budget-truncated body.
func entryCard(e *domain.Entry, bodyBudget int) string {
	lines := []string{
		"Title: " + e.Title,
		"Created: " + e.CreatedAt.Format("2006-01-02"),
	}
	if tags := e.TagList(); len(tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(tags, ", "))
	}
	if body := e.BodyExcerpt(bodyBudget); body != "" {
		lines = append(lines, "Body: "+body)
	}
	return strings.Join(lines, "\n")
}
