package execution

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)

	action := NewAction(NewActionID(), "migration", "mainnet")
	action.Steps = append(action.Steps, ActionStep{
		StepID:   "approve-router-1",
		Stage:    "approve-router",
		Type:     StepTypeApproval,
		Status:   StepStatusPending,
		Contract: "weth",
		Method:   "approve",
		Target:   "0x0000000000000000000000000000000000000001",
		Data:     "0x",
	})
	if err := store.Save(action); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ActionID != action.ActionID {
		t.Fatalf("unexpected action id: %s", got.ActionID)
	}
	if got.Kind != "migration" || got.Mode != "mainnet" {
		t.Fatalf("unexpected kind/mode: %s/%s", got.Kind, got.Mode)
	}
	if len(got.Steps) != 1 || got.Steps[0].Stage != "approve-router" {
		t.Fatalf("unexpected steps: %+v", got.Steps)
	}

	got.Status = ActionStatusCompleted
	got.Steps[0].Status = StepStatusConfirmed
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	completed, err := store.List(ListFilter{Status: string(ActionStatusCompleted), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected one completed action, got %d", len(completed))
	}
	if run := completed[0]; run.ActionID != action.ActionID || run.StepsTotal != 1 || run.StepsConfirmed != 1 || run.Mode != "mainnet" {
		t.Fatalf("unexpected summary: %+v", run)
	}
	running, err := store.List(ListFilter{Status: string(ActionStatusRunning)})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("expected no running actions, got %d", len(running))
	}
}

func TestStoreListFiltersByModeAndKind(t *testing.T) {
	store := openTestStore(t)
	for _, a := range []Action{
		NewAction("run_a", "migration", "mainnet"),
		NewAction("run_b", "migration", "ganache"),
		NewAction("run_c", "rehearsal", "mainnet"),
	} {
		if err := store.Save(a); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	runs, err := store.List(ListFilter{Mode: "mainnet", Kind: "migration"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ActionID != "run_a" {
		t.Fatalf("unexpected filtered runs: %+v", runs)
	}

	all, err := store.List(ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(all))
	}
}

func TestStoreGetMissingAction(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get("missing"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("expected missing action error, got %v", err)
	}
}

func TestStoreRejectsEmptyActionID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(Action{}); err == nil {
		t.Fatal("expected error for empty action id")
	}
}
