package domain

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

func TestLinkEdgesRoundTrip(t *testing.T) {
	e := &Entry{}
	score := 0.87
	edges := []LinkEdge{
		{TargetID: uuid.New(), Reason: "both discuss raft leader election", Score: &score, CreatedAt: time.Now().UTC()},
		{TargetID: uuid.New(), Reason: "this contradicts an earlier claim", IsContradiction: true, CreatedAt: time.Now().UTC()},
	}
	if err := e.SetLinkEdges(edges); err != nil {
		t.Fatalf("SetLinkEdges: %v", err)
	}

	got := e.LinkEdges()
	if len(got) != 2 {
		t.Fatalf("want 2 edges, got %d", len(got))
	}
	if got[0].TargetID != edges[0].TargetID {
		t.Errorf("target = %s, want %s", got[0].TargetID, edges[0].TargetID)
	}
	if got[0].Score == nil || *got[0].Score != 0.87 {
		t.Errorf("score = %v, want 0.87", got[0].Score)
	}
	if got[1].Score != nil {
		t.Errorf("contradiction edge score = %v, want nil", got[1].Score)
	}
	if !got[1].IsContradiction {
		t.Error("want contradiction edge")
	}
}

func TestLinkCountExcludesContradictions(t *testing.T) {
	e := &Entry{}
	target := uuid.New()
	edges := []LinkEdge{
		{TargetID: target, Reason: "related"},
		{TargetID: uuid.New(), Reason: "related too"},
		{TargetID: uuid.New(), Reason: "conflicting claim", IsContradiction: true},
	}
	if err := e.SetLinkEdges(edges); err != nil {
		t.Fatalf("SetLinkEdges: %v", err)
	}
	if got := e.LinkCount(); got != 2 {
		t.Errorf("LinkCount = %d, want 2", got)
	}
	if !e.HasEdgeTo(target) {
		t.Error("HasEdgeTo returned false for existing edge")
	}
	if e.HasEdgeTo(uuid.New()) {
		t.Error("HasEdgeTo returned true for absent edge")
	}
}

func TestEmbeddingVectorNilStates(t *testing.T) {
	e := &Entry{}
	if e.EmbeddingVector() != nil {
		t.Error("want nil embedding on fresh entry")
	}
	if err := e.SetEmbedding([]float32{0.1, 0.2}); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	vec := e.EmbeddingVector()
	if len(vec) != 2 || vec[0] != 0.1 {
		t.Errorf("vec = %v, want [0.1 0.2]", vec)
	}
	if err := e.SetEmbedding(nil); err != nil {
		t.Fatalf("SetEmbedding(nil): %v", err)
	}
	if e.EmbeddingVector() != nil {
		t.Error("want nil after clearing embedding")
	}
}

func TestJudgeTextTruncatesBody(t *testing.T) {
	e := &Entry{Title: "note", Body: "0123456789"}
	got := e.JudgeText(4)
	if got != "note\n0123" {
		t.Errorf("JudgeText = %q, want %q", got, "note\n0123")
	}
	if got := e.JudgeText(0); got != "note\n0123456789" {
		t.Errorf("JudgeText(0) = %q", got)
	}
}

func TestBodyExcerptKeepsRuneBoundaries(t *testing.T) {
	// Each é is two bytes; an odd budget lands mid-rune.
	e := &Entry{Body: strings.Repeat("é", 200)}
	got := e.BodyExcerpt(301)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt split a rune: %q", got[len(got)-3:])
	}
	if len(got) != 300 {
		t.Errorf("len = %d, want 300", len(got))
	}

	e.Title = "note"
	if jt := e.JudgeText(301); !utf8.ValidString(jt) {
		t.Error("JudgeText split a rune")
	}
}

func TestEntryKindValid(t *testing.T) {
	for _, k := range []EntryKind{EntryKindText, EntryKindCode, EntryKindImage} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if EntryKind("video").Valid() {
		t.Error("unknown kind should be invalid")
	}
}
