package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	entryrepo "github.com/mnemos-app/mnemos-backend/internal/data/repos/entries"
	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/linker"
	"github.com/mnemos-app/mnemos-backend/internal/platform/apierr"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex"
	"github.com/mnemos-app/mnemos-backend/internal/realtime"
	"github.com/mnemos-app/mnemos-backend/internal/search"
)

// EntryService owns the entry lifecycle. Persisting the row is the only
// hard requirement on writes; embedding, indexing, and auto-linking are
// best-effort and the sweep later repairs whatever they missed.
type EntryService struct {
	entries  entryrepo.Repo
	embedder linker.Embedder
	vectors  vectorindex.Index
	searcher *search.Index
	links    *linker.AutoLinker
	graph    *linker.GraphMaintainer
	bus      realtime.Bus
	log      *logger.Logger
	cfg      linker.Config
}

func NewEntryService(
	entries entryrepo.Repo,
	embedder linker.Embedder,
	vectors vectorindex.Index,
	searcher *search.Index,
	links *linker.AutoLinker,
	graph *linker.GraphMaintainer,
	bus realtime.Bus,
	log *logger.Logger,
	cfg linker.Config,
) *EntryService {
	return &EntryService{
		entries:  entries,
		embedder: embedder,
		vectors:  vectors,
		searcher: searcher,
		links:    links,
		graph:    graph,
		bus:      bus,
		log:      log.With("service", "EntryService"),
		cfg:      cfg,
	}
}

type EntryInput struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Kind  string   `json:"kind,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type EntryView struct {
	Entry  *domain.Entry  `json:"entry"`
	Result *linker.Result `json:"linking,omitempty"`
	Linked []domain.Entry `json:"linked_entries,omitempty"`
}

func (s *EntryService) Create(ctx context.Context, userID uuid.UUID, input EntryInput) (*EntryView, error) {
	e, err := s.buildEntry(userID, input)
	if err != nil {
		return nil, err
	}
	if err := s.entries.Create(ctx, nil, e); err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.Event{Type: realtime.EventEntryCreated, UserID: userID, Payload: e})

	view := &EntryView{Entry: e}
	if !s.embedEntry(ctx, e) {
		return view, nil
	}

	result, linkErr := s.links.LinkEntry(ctx, e, s.cfg.InteractiveThreshold)
	if linkErr != nil {
		s.log.Warn("Auto-linking failed on create",
			"entry_id", e.ID.String(),
			"error", linkErr.Error(),
		)
		return view, nil
	}
	view.Result = result

	if result.LinksCreated > 0 {
		s.publish(ctx, realtime.Event{Type: realtime.EventEntryLinked, UserID: userID, Payload: result})
	}
	for _, c := range result.Contradictions {
		s.publish(ctx, realtime.Event{
			Type:   realtime.EventContradictionFound,
			UserID: userID,
			Payload: map[string]any{
				"entry_id":  e.ID,
				"target_id": c.Target.ID,
				"reason":    c.Reason,
			},
		})
	}

	if fresh, getErr := s.entries.GetByID(ctx, nil, e.ID); getErr == nil {
		view.Entry = fresh
	}
	return view, nil
}

func (s *EntryService) Get(ctx context.Context, userID, id uuid.UUID) (*EntryView, error) {
	e, err := s.ownedEntry(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	view := &EntryView{Entry: e}
	edges := e.LinkEdges()
	if len(edges) > 0 {
		ids := make([]uuid.UUID, 0, len(edges))
		for _, edge := range edges {
			ids = append(ids, edge.TargetID)
		}
		linked, listErr := s.entries.GetByIDs(ctx, nil, ids)
		if listErr != nil {
			return nil, listErr
		}
		view.Linked = linked
	}
	return view, nil
}

func (s *EntryService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Entry, error) {
	return s.entries.ListByUser(ctx, nil, userID, limit, offset)
}

func (s *EntryService) Update(ctx context.Context, userID, id uuid.UUID, input EntryInput) (*domain.Entry, error) {
	e, err := s.ownedEntry(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.buildEntry(userID, input)
	if err != nil {
		return nil, err
	}
	e.Title = updated.Title
	e.Body = updated.Body
	e.Kind = updated.Kind
	e.Tags = updated.Tags

	if err := s.entries.UpdateContent(ctx, nil, e); err != nil {
		return nil, err
	}

	// Content changed, so the old embedding no longer describes it and the
	// existing links may no longer hold.
	if s.embedEntry(ctx, e) {
		if result, linkErr := s.links.LinkEntry(ctx, e, s.cfg.InteractiveThreshold); linkErr != nil {
			s.log.Warn("Auto-linking failed on update",
				"entry_id", e.ID.String(),
				"error", linkErr.Error(),
			)
		} else if result.LinksCreated > 0 {
			s.publish(ctx, realtime.Event{Type: realtime.EventEntryLinked, UserID: userID, Payload: result})
		}
	}

	fresh, err := s.entries.GetByID(ctx, nil, e.ID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *EntryService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	e, err := s.ownedEntry(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.entries.Delete(ctx, nil, e.ID); err != nil {
		return err
	}

	if cascadeErr := s.graph.RemoveReferences(ctx, userID, e.ID); cascadeErr != nil {
		s.log.Warn("Cascade edge cleanup incomplete",
			"entry_id", e.ID.String(),
			"error", cascadeErr.Error(),
		)
	}
	if s.vectors != nil {
		if delErr := s.vectors.Delete(ctx, userID.String(), []string{e.ID.String()}); delErr != nil {
			s.log.Warn("Vector delete failed", "entry_id", e.ID.String(), "error", delErr.Error())
		}
	}
	if s.searcher != nil {
		if delErr := s.searcher.DeleteEntry(e.ID); delErr != nil {
			s.log.Warn("Search delete failed", "entry_id", e.ID.String(), "error", delErr.Error())
		}
	}
	return nil
}

// RelinkOptions are the per-request overrides for an on-demand relink.
type RelinkOptions struct {
	Threshold *float64 `json:"threshold,omitempty"`
	MaxLinks  *int     `json:"max_links,omitempty"`
}

// Relink reruns the linking pipeline on demand, optionally at a custom
// threshold or link cap. Unlike create, a missing embedding is a hard
// error here.
func (s *EntryService) Relink(ctx context.Context, userID, id uuid.UUID, opts RelinkOptions) (*linker.Result, error) {
	e, err := s.ownedEntry(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if e.EmbeddingVector() == nil {
		if !s.embedEntry(ctx, e) {
			return nil, apierr.New(http.StatusConflict, "no_embedding", linker.ErrNoEmbedding)
		}
	}

	th := s.cfg.InteractiveThreshold
	if opts.Threshold != nil {
		if *opts.Threshold < 0 || *opts.Threshold > 1 {
			return nil, apierr.New(http.StatusBadRequest, "invalid_threshold", errors.New("threshold must be within [0,1]"))
		}
		th = *opts.Threshold
	}
	maxLinks := 0
	if opts.MaxLinks != nil {
		if *opts.MaxLinks < 1 {
			return nil, apierr.New(http.StatusBadRequest, "invalid_max_links", errors.New("max_links must be at least 1"))
		}
		maxLinks = *opts.MaxLinks
	}

	result, err := s.links.LinkEntryCapped(ctx, e, th, maxLinks)
	if err != nil {
		return nil, err
	}
	if result.LinksCreated > 0 {
		s.publish(ctx, realtime.Event{Type: realtime.EventEntryLinked, UserID: userID, Payload: result})
	}
	return result, nil
}

type SearchResult struct {
	Hit   search.Hit   `json:"hit"`
	Entry domain.Entry `json:"entry"`
}

func (s *EntryService) Search(ctx context.Context, userID uuid.UUID, q string, limit int) ([]SearchResult, error) {
	if s.searcher == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "search_disabled", errors.New("search index not configured"))
	}
	hits, err := s.searcher.Search(ctx, userID, q, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.EntryID)
	}
	rows, err := s.entries.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Entry, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		row, ok := byID[h.EntryID]
		if !ok {
			// Index lags deletes briefly.
			continue
		}
		out = append(out, SearchResult{Hit: h, Entry: row})
	}
	return out, nil
}

type GraphNode struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Kind  string    `json:"kind"`
}

type GraphEdge struct {
	Source          uuid.UUID `json:"source"`
	Target          uuid.UUID `json:"target"`
	Reason          string    `json:"reason"`
	Score           *float64  `json:"score,omitempty"`
	IsContradiction bool      `json:"is_contradiction,omitempty"`
}

type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Graph renders the user's entries and links as a node/edge list.
func (s *EntryService) Graph(ctx context.Context, userID uuid.UUID) (*GraphView, error) {
	rows, err := s.entries.ListByUser(ctx, nil, userID, 1000, 0)
	if err != nil {
		return nil, err
	}

	view := &GraphView{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	known := make(map[uuid.UUID]bool, len(rows))
	for i := range rows {
		known[rows[i].ID] = true
		view.Nodes = append(view.Nodes, GraphNode{
			ID:    rows[i].ID,
			Title: rows[i].Title,
			Kind:  string(rows[i].Kind),
		})
	}

	seen := make(map[[2]uuid.UUID]bool)
	for i := range rows {
		for _, edge := range rows[i].LinkEdges() {
			if !known[edge.TargetID] {
				continue
			}
			key := [2]uuid.UUID{rows[i].ID, edge.TargetID}
			if edge.TargetID.String() < rows[i].ID.String() && !edge.IsContradiction {
				// Mirrored similarity edges collapse to one graph edge.
				key = [2]uuid.UUID{edge.TargetID, rows[i].ID}
			}
			if seen[key] && !edge.IsContradiction {
				continue
			}
			seen[key] = true
			view.Edges = append(view.Edges, GraphEdge{
				Source:          rows[i].ID,
				Target:          edge.TargetID,
				Reason:          edge.Reason,
				Score:           edge.Score,
				IsContradiction: edge.IsContradiction,
			})
		}
	}
	return view, nil
}

func (s *EntryService) buildEntry(userID uuid.UUID, input EntryInput) (*domain.Entry, error) {
	if input.Title == "" && input.Body == "" {
		return nil, apierr.New(http.StatusBadRequest, "empty_entry", errors.New("title or body is required"))
	}

	kind := domain.EntryKind(input.Kind)
	if input.Kind == "" {
		kind = domain.EntryKindText
	}
	if !kind.Valid() {
		return nil, apierr.New(http.StatusBadRequest, "invalid_kind", errors.New("kind must be text, code, or image"))
	}

	e := &domain.Entry{
		UserID: userID,
		Title:  input.Title,
		Body:   input.Body,
		Kind:   kind,
	}
	if err := e.SetTags(input.Tags); err != nil {
		return nil, err
	}
	if err := e.SetLinkEdges(nil); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EntryService) ownedEntry(ctx context.Context, userID, id uuid.UUID) (*domain.Entry, error) {
	e, err := s.entries.GetByID(ctx, nil, id)
	if errors.Is(err, entryrepo.ErrNotFound) {
		return nil, apierr.New(http.StatusNotFound, "entry_not_found", err)
	}
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		// Hide other users' entries entirely.
		return nil, apierr.New(http.StatusNotFound, "entry_not_found", entryrepo.ErrNotFound)
	}
	return e, nil
}

// embedEntry computes and stores the embedding and pushes the entry into
// both indexes. Returns false when the entry could not be embedded.
func (s *EntryService) embedEntry(ctx context.Context, e *domain.Entry) bool {
	if s.searcher != nil {
		if idxErr := s.searcher.IndexEntry(e); idxErr != nil {
			s.log.Warn("Search indexing failed", "entry_id", e.ID.String(), "error", idxErr.Error())
		}
	}

	if s.embedder == nil {
		return e.EmbeddingVector() != nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{e.JudgeText(0)})
	if err != nil || len(vectors) != 1 {
		s.log.Warn("Embedding failed; entry stays unlinked until the sweep",
			"entry_id", e.ID.String(),
		)
		return false
	}
	if err := e.SetEmbedding(vectors[0]); err != nil {
		return false
	}
	if err := s.entries.UpdateEmbedding(ctx, nil, e.ID, e.Embedding); err != nil {
		s.log.Warn("Failed to persist embedding", "entry_id", e.ID.String(), "error", err.Error())
		return false
	}

	if s.vectors != nil {
		vec := vectorindex.Vector{
			ID:        e.ID.String(),
			Namespace: e.UserID.String(),
			Values:    vectors[0],
			Metadata:  map[string]any{"kind": string(e.Kind)},
		}
		if upErr := s.vectors.Upsert(ctx, []vectorindex.Vector{vec}); upErr != nil {
			s.log.Warn("Vector upsert failed", "entry_id", e.ID.String(), "error", upErr.Error())
		}
	}
	return true
}

func (s *EntryService) publish(ctx context.Context, event realtime.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.Warn("Event publish failed", "type", event.Type, "error", err.Error())
	}
}
