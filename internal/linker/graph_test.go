package linker

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestApplyLinksCreatesBidirectionalEdges(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	source := mkEntry(t, store, owner, "source", "x", nil, []float32{1, 0})
	target := mkEntry(t, store, owner, "target", "y", nil, []float32{1, 0})

	g := NewGraphMaintainer(store, testLogger(t), DefaultConfig())
	created, err := g.ApplyLinks(context.Background(), source, []AcceptedLink{
		{Target: target, Reason: "same topic", Score: 0.8},
	})
	if err != nil {
		t.Fatalf("ApplyLinks: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	src := store.get(source.ID)
	tgt := store.get(target.ID)
	if !src.HasEdgeTo(target.ID) {
		t.Errorf("source missing forward edge: %s", fmtEdges(src.LinkEdges()))
	}
	if !tgt.HasEdgeTo(source.ID) {
		t.Errorf("target missing mirror edge: %s", fmtEdges(tgt.LinkEdges()))
	}

	srcEdge := src.LinkEdges()[0]
	tgtEdge := tgt.LinkEdges()[0]
	if srcEdge.Reason != "same topic" || tgtEdge.Reason != "same topic" {
		t.Error("reason not carried to both sides")
	}
	if srcEdge.Score == nil || *srcEdge.Score != 0.8 || tgtEdge.Score == nil || *tgtEdge.Score != 0.8 {
		t.Error("score not carried to both sides")
	}
}

func TestApplyLinksNeverSelfLinks(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	source := mkEntry(t, store, owner, "source", "x", nil, nil)

	g := NewGraphMaintainer(store, testLogger(t), DefaultConfig())
	created, err := g.ApplyLinks(context.Background(), source, []AcceptedLink{
		{Target: source, Reason: "itself", Score: 1.0},
	})
	if err != nil {
		t.Fatalf("ApplyLinks: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if len(store.get(source.ID).LinkEdges()) != 0 {
		t.Error("self edge written")
	}
}

func TestApplyLinksDeduplicates(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	source := mkEntry(t, store, owner, "source", "x", nil, nil)
	target := mkEntry(t, store, owner, "target", "y", nil, nil)

	g := NewGraphMaintainer(store, testLogger(t), DefaultConfig())
	links := []AcceptedLink{
		{Target: target, Reason: "first", Score: 0.8},
		{Target: target, Reason: "second copy in same batch", Score: 0.8},
	}
	if _, err := g.ApplyLinks(context.Background(), source, links); err != nil {
		t.Fatalf("ApplyLinks: %v", err)
	}
	// A later pass proposing the same target again must be a no-op.
	reloaded := store.get(source.ID)
	created, err := g.ApplyLinks(context.Background(), reloaded, []AcceptedLink{
		{Target: target, Reason: "third", Score: 0.9},
	})
	if err != nil {
		t.Fatalf("ApplyLinks repeat: %v", err)
	}
	if created != 0 {
		t.Errorf("repeat created = %d, want 0", created)
	}

	if got := len(store.get(source.ID).LinkEdges()); got != 1 {
		t.Errorf("source edges = %d, want 1", got)
	}
	if got := len(store.get(target.ID).LinkEdges()); got != 1 {
		t.Errorf("target edges = %d, want 1", got)
	}
}

func TestApplyLinksRetriesOnVersionConflict(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	source := mkEntry(t, store, owner, "source", "x", nil, nil)
	target := mkEntry(t, store, owner, "target", "y", nil, nil)
	store.conflicts[source.ID] = 2

	g := NewGraphMaintainer(store, testLogger(t), DefaultConfig())
	created, err := g.ApplyLinks(context.Background(), source, []AcceptedLink{
		{Target: target, Reason: "same topic", Score: 0.8},
	})
	if err != nil {
		t.Fatalf("ApplyLinks: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if !store.get(source.ID).HasEdgeTo(target.ID) {
		t.Error("edge missing after conflict retries")
	}
}

func TestApplyLinksGivesUpAfterMaxRetries(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	source := mkEntry(t, store, owner, "source", "x", nil, nil)
	target := mkEntry(t, store, owner, "target", "y", nil, nil)

	cfg := DefaultConfig()
	cfg.MaxLinkRetries = 2
	store.conflicts[source.ID] = 10

	g := NewGraphMaintainer(store, testLogger(t), cfg)
	_, err := g.ApplyLinks(context.Background(), source, []AcceptedLink{
		{Target: target, Reason: "same topic", Score: 0.8},
	})
	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
}

func TestAppendContradictionIsOneDirectional(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	older := mkEntry(t, store, owner, "older claim", "x", nil, nil)
	newer := mkEntry(t, store, owner, "newer claim", "y", nil, nil)

	g := NewGraphMaintainer(store, testLogger(t), DefaultConfig())
	if err := g.AppendContradiction(context.Background(), newer, older, "the dates conflict"); err != nil {
		t.Fatalf("AppendContradiction: %v", err)
	}

	newerEdges := store.get(newer.ID).LinkEdges()
	if len(newerEdges) != 1 || !newerEdges[0].IsContradiction || newerEdges[0].TargetID != older.ID {
		t.Fatalf("newer edges = %s", fmtEdges(newerEdges))
	}
	if newerEdges[0].Score != nil {
		t.Error("contradiction edge has a score")
	}
	if len(store.get(older.ID).LinkEdges()) != 0 {
		t.Error("contradiction edge was mirrored onto the older entry")
	}
}

func TestContradictionDoesNotBlockSimilarityEdge(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	a := mkEntry(t, store, owner, "a", "x", nil, nil)
	b := mkEntry(t, store, owner, "b", "y", nil, nil)

	g := NewGraphMaintainer(store, testLogger(t), DefaultConfig())
	if err := g.AppendContradiction(context.Background(), a, b, "conflict"); err != nil {
		t.Fatalf("AppendContradiction: %v", err)
	}
	created, err := g.ApplyLinks(context.Background(), store.get(a.ID), []AcceptedLink{
		{Target: b, Reason: "still related", Score: 0.75},
	})
	if err != nil {
		t.Fatalf("ApplyLinks: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want similarity edge alongside contradiction", created)
	}
	if got := len(store.get(a.ID).LinkEdges()); got != 2 {
		t.Errorf("edges = %d, want 2", got)
	}
}

func TestRemoveReferencesStripsDanglingEdges(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	doomed := mkEntry(t, store, owner, "doomed", "x", nil, nil)
	referrer := mkEntry(t, store, owner, "referrer", "y", nil, nil)
	bystander := mkEntry(t, store, owner, "bystander", "z", nil, nil)

	g := NewGraphMaintainer(store, testLogger(t), DefaultConfig())
	if _, err := g.ApplyLinks(context.Background(), referrer, []AcceptedLink{
		{Target: doomed, Reason: "link to doomed", Score: 0.8},
		{Target: bystander, Reason: "link to bystander", Score: 0.8},
	}); err != nil {
		t.Fatalf("ApplyLinks: %v", err)
	}

	if err := g.RemoveReferences(context.Background(), owner, doomed.ID); err != nil {
		t.Fatalf("RemoveReferences: %v", err)
	}

	edges := store.get(referrer.ID).LinkEdges()
	if len(edges) != 1 || edges[0].TargetID != bystander.ID {
		t.Errorf("referrer edges after cascade = %s", fmtEdges(edges))
	}
}
