// Package search maintains a bleve full-text index over entries so lookup
// works on words the vector index would blur away (names, error strings,
// exact phrases).
package search

import (
	"context"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

type Hit struct {
	EntryID   uuid.UUID           `json:"entry_id"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

type Index struct {
	idx bleve.Index
	log *logger.Logger
}

type entryDoc struct {
	UserID string   `json:"user_id"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Tags   []string `json:"tags"`
	Kind   string   `json:"kind"`
}

func buildMapping() mapping.IndexMapping {
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("user_id", keywordField)
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("body", textField)
	doc.AddFieldMappingsAt("tags", keywordField)
	doc.AddFieldMappingsAt("kind", keywordField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Open loads the index at path, creating it when absent.
func Open(path string, log *logger.Logger) (*Index, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, err
		}
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, err
		}
	}
	return &Index{idx: idx, log: log.With("service", "SearchIndex")}, nil
}

// OpenMem builds an in-memory index, used by tests and single-run tools.
func OpenMem(log *logger.Logger) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx, log: log.With("service", "SearchIndex")}, nil
}

func (s *Index) Close() error {
	return s.idx.Close()
}

func (s *Index) IndexEntry(e *domain.Entry) error {
	doc := entryDoc{
		UserID: e.UserID.String(),
		Title:  e.Title,
		Body:   e.Body,
		Tags:   e.TagList(),
		Kind:   string(e.Kind),
	}
	return s.idx.Index(e.ID.String(), doc)
}

func (s *Index) IndexEntries(entries []domain.Entry) error {
	batch := s.idx.NewBatch()
	for i := range entries {
		e := &entries[i]
		doc := entryDoc{
			UserID: e.UserID.String(),
			Title:  e.Title,
			Body:   e.Body,
			Tags:   e.TagList(),
			Kind:   string(e.Kind),
		}
		if err := batch.Index(e.ID.String(), doc); err != nil {
			return err
		}
	}
	return s.idx.Batch(batch)
}

func (s *Index) DeleteEntry(id uuid.UUID) error {
	return s.idx.Delete(id.String())
}

// Search runs a query-string search scoped to one user.
func (s *Index) Search(ctx context.Context, userID uuid.UUID, q string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}

	ownerQuery := bleve.NewTermQuery(userID.String())
	ownerQuery.SetField("user_id")

	textQuery := bleve.NewQueryStringQuery(q)

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(ownerQuery, textQuery), limit, 0, false)
	req.Highlight = bleve.NewHighlight()
	req.Fields = []string{"title"}

	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, parseErr := uuid.Parse(h.ID)
		if parseErr != nil {
			continue
		}
		hits = append(hits, Hit{
			EntryID:   id,
			Score:     h.Score,
			Fragments: h.Fragments,
		})
	}
	return hits, nil
}
