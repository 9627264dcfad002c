package linker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDetectFindsConflictingClaims(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	older := mkEntry(t, store, owner, "deadline", "launch is March 1", []string{"launch"}, nil)
	source := mkEntry(t, store, owner, "deadline update", "launch is April 15", []string{"launch"}, nil)

	model := &fakeJudgeModel{respond: func(_, user, schemaName string) (map[string]any, error) {
		if schemaName != "contradiction_check" {
			t.Errorf("schemaName = %q", schemaName)
		}
		if !strings.Contains(user, "March 1") {
			t.Error("older entry text missing from prompt")
		}
		if !strings.Contains(user, "Tags: launch") {
			t.Error("tags missing from prompt")
		}
		if !strings.Contains(user, older.CreatedAt.Format("2006-01-02")) {
			t.Error("creation date missing from prompt")
		}
		return map[string]any{"contradicts": true, "reason": "launch dates disagree"}, nil
	}}

	d := NewContradictionDetector(store, model, testLogger(t), DefaultConfig())
	found, err := d.Detect(context.Background(), source)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(found) != 1 || found[0].Target.ID != older.ID {
		t.Fatalf("found = %d contradictions", len(found))
	}
	if found[0].Reason != "launch dates disagree" {
		t.Errorf("reason = %q", found[0].Reason)
	}
}

func TestDetectPrefiltersByTagOverlap(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	mkEntry(t, store, owner, "recipe", "bake at 200C", []string{"cooking"}, nil)
	source := mkEntry(t, store, owner, "deadline", "launch is March 1", []string{"launch"}, nil)

	model := &fakeJudgeModel{respond: func(_, _, _ string) (map[string]any, error) {
		return map[string]any{"contradicts": false, "reason": ""}, nil
	}}

	d := NewContradictionDetector(store, model, testLogger(t), DefaultConfig())
	if _, err := d.Detect(context.Background(), source); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if model.calls != 0 {
		t.Errorf("model calls = %d, want 0 for disjoint tags", model.calls)
	}
}

func TestDetectScreensUntaggedEntries(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	mkEntry(t, store, owner, "untagged", "launch is March 1", nil, nil)
	source := mkEntry(t, store, owner, "deadline", "launch is April 15", []string{"launch"}, nil)

	model := &fakeJudgeModel{respond: func(_, _, _ string) (map[string]any, error) {
		return map[string]any{"contradicts": false, "reason": ""}, nil
	}}

	d := NewContradictionDetector(store, model, testLogger(t), DefaultConfig())
	if _, err := d.Detect(context.Background(), source); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1; missing tags must not skip screening", model.calls)
	}
}

func TestDetectSkipsFailedPairs(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	first := mkEntry(t, store, owner, "first", "claim one", []string{"x"}, nil)
	second := mkEntry(t, store, owner, "second", "claim two", []string{"x"}, nil)
	source := mkEntry(t, store, owner, "source", "claim three", []string{"x"}, nil)

	failed := first.ID
	_ = second
	model := &fakeJudgeModel{respond: func(_, user, _ string) (map[string]any, error) {
		if strings.Contains(user, "claim one") {
			return nil, errors.New("timeout")
		}
		return map[string]any{"contradicts": true, "reason": "claims disagree"}, nil
	}}

	d := NewContradictionDetector(store, model, testLogger(t), DefaultConfig())
	found, err := d.Detect(context.Background(), source)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found = %d, want 1; one failed pair must not abort the rest", len(found))
	}
	if found[0].Target.ID == failed {
		t.Error("failed pair reported as contradiction")
	}
}

func TestDetectWithoutModelSkipsScreening(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	mkEntry(t, store, owner, "older", "claim one", []string{"x"}, nil)
	source := mkEntry(t, store, owner, "source", "claim two", []string{"x"}, nil)

	d := NewContradictionDetector(store, nil, testLogger(t), DefaultConfig())
	found, err := d.Detect(context.Background(), source)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("found = %d contradictions without a model", len(found))
	}
}

func TestDetectRespectsWindowSize(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	for i := 0; i < 6; i++ {
		mkEntry(t, store, owner, "old", "claim", []string{"x"}, nil)
	}
	source := mkEntry(t, store, owner, "source", "claim", []string{"x"}, nil)

	cfg := DefaultConfig()
	cfg.ContradictionWindow = 3
	model := &fakeJudgeModel{respond: func(_, _, _ string) (map[string]any, error) {
		return map[string]any{"contradicts": false, "reason": ""}, nil
	}}

	d := NewContradictionDetector(store, model, testLogger(t), cfg)
	if _, err := d.Detect(context.Background(), source); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if model.calls != 3 {
		t.Errorf("model calls = %d, want window size 3", model.calls)
	}
}
