package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestJournalRecordsConcurrentSteps(t *testing.T) {
	store := openTestStore(t)
	action := NewAction("run_test", "migration", "ganache")
	journal := NewJournal(&action, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			call := Call{Stage: "oracle-update", Type: StepTypeOracleUpdate, Contract: "oracle", Method: "update", Target: common.BigToAddress(common.Big1)}
			idx := journal.Begin(call)
			var err error
			if i == 4 {
				err = errors.New("boom")
			}
			journal.Finish(idx, Receipt{TxHash: common.BytesToHash([]byte{byte(i + 1)}), BlockNumber: 7}, err)
		}(i)
	}
	wg.Wait()
	journal.Complete(errors.New("boom"))

	snap := journal.Snapshot()
	if len(snap.Steps) != 9 {
		t.Fatalf("expected 9 steps, got %d", len(snap.Steps))
	}
	failed := 0
	for _, step := range snap.Steps {
		if step.TxHash == "" || step.FinishedAt == "" {
			t.Fatalf("step not finished: %+v", step)
		}
		if step.Status == StepStatusFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected one failed step, got %d", failed)
	}
	if snap.Status != ActionStatusFailed || snap.Error != "boom" {
		t.Fatalf("unexpected action state: %s %q", snap.Status, snap.Error)
	}

	persisted, err := store.Get("run_test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(persisted.Steps) != 9 || persisted.Status != ActionStatusFailed {
		t.Fatalf("unexpected persisted action: %+v", persisted)
	}
}

// heldReceipts withholds receipts until release is closed.
type heldReceipts struct {
	*fakeChain
	release chan struct{}
}

func (h heldReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	select {
	case <-h.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return h.fakeChain.TransactionReceipt(ctx, hash)
}

func TestJournalStoresSubmittedStepWhileReceiptPending(t *testing.T) {
	store := openTestStore(t)
	action := NewAction("run_submitted", "migration", "mainnet")
	journal := NewJournal(&action, store, nil)

	chain := heldReceipts{fakeChain: &fakeChain{}, release: make(chan struct{})}
	opts := testOptions()
	opts.StepTimeout = 5 * time.Second
	tr, err := NewSignerTransactor(context.Background(), chain, staticSigner{}, opts)
	if err != nil {
		t.Fatalf("NewSignerTransactor failed: %v", err)
	}

	call := testCall()
	idx := journal.Begin(call)
	submitted := make(chan common.Hash, 1)
	call.Submitted = func(hash common.Hash) {
		journal.Submit(idx, hash)
		submitted <- hash
	}
	done := make(chan error, 1)
	go func() {
		receipt, err := tr.Transact(context.Background(), call)
		journal.Finish(idx, receipt, err)
		done <- err
	}()

	var hash common.Hash
	select {
	case hash = <-submitted:
	case <-time.After(5 * time.Second):
		t.Fatal("transaction was never reported as submitted")
	}
	inFlight, err := store.Get("run_submitted")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if step := inFlight.Steps[0]; step.Status != StepStatusSubmitted || step.TxHash != hash.Hex() || step.FinishedAt != "" {
		t.Fatalf("expected submitted step with hash %s, got %+v", hash.Hex(), step)
	}

	close(chain.release)
	if err := <-done; err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	mined, err := store.Get("run_submitted")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if step := mined.Steps[0]; step.Status != StepStatusConfirmed || step.TxHash != hash.Hex() {
		t.Fatalf("expected confirmed step with hash %s, got %+v", hash.Hex(), step)
	}
}

func TestJournalSubmitIgnoresFinishedStep(t *testing.T) {
	action := NewAction("run_late", "migration", "mainnet")
	journal := NewJournal(&action, nil, nil)
	idx := journal.Begin(testCall())
	journal.Finish(idx, Receipt{TxHash: common.HexToHash("0x01")}, nil)
	journal.Submit(idx, common.HexToHash("0x02"))
	journal.Submit(99, common.HexToHash("0x03"))

	step := journal.Snapshot().Steps[0]
	if step.Status != StepStatusConfirmed || step.TxHash != common.HexToHash("0x01").Hex() {
		t.Fatalf("finished step was rewritten: %+v", step)
	}
}
