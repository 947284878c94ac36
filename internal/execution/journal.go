package execution

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Journal records calls of a run into its Action. Safe for concurrent use by
// the members of a batch.
type Journal struct {
	mu     sync.Mutex
	action *Action
	store  *Store
	logger *slog.Logger
}

func NewJournal(action *Action, store *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{action: action, store: store, logger: logger}
}

// Begin appends a pending step for call and returns its index.
func (j *Journal) Begin(call Call) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	idx := len(j.action.Steps)
	j.action.Steps = append(j.action.Steps, ActionStep{
		StepID:      fmt.Sprintf("%s-%d", call.Stage, idx+1),
		Stage:       call.Stage,
		Type:        call.Type,
		Status:      StepStatusPending,
		Contract:    call.Contract,
		Method:      call.Method,
		Description: call.Description,
		Target:      call.Target.Hex(),
		Data:        hexutil.Encode(call.Data),
		StartedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if j.action.Status == ActionStatusPlanned {
		j.action.Status = ActionStatusRunning
	}
	j.saveLocked()
	return idx
}

// Submit marks a pending step as broadcast under hash.
func (j *Journal) Submit(idx int, hash common.Hash) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if idx < 0 || idx >= len(j.action.Steps) {
		return
	}
	step := &j.action.Steps[idx]
	if step.Status != StepStatusPending {
		return
	}
	step.Status = StepStatusSubmitted
	step.TxHash = hash.Hex()
	j.saveLocked()
}

func (j *Journal) Finish(idx int, receipt Receipt, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if idx < 0 || idx >= len(j.action.Steps) {
		return
	}
	step := &j.action.Steps[idx]
	step.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
	if receipt.TxHash != (common.Hash{}) {
		step.TxHash = receipt.TxHash.Hex()
		step.BlockNumber = receipt.BlockNumber
		step.GasUsed = receipt.GasUsed
	}
	if err != nil {
		step.Status = StepStatusFailed
		step.Error = err.Error()
	} else {
		step.Status = StepStatusConfirmed
	}
	j.saveLocked()
}

// Complete closes the action as completed or failed.
func (j *Journal) Complete(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.action.Status = ActionStatusFailed
		j.action.Error = err.Error()
	} else {
		j.action.Status = ActionStatusCompleted
	}
	j.saveLocked()
}

func (j *Journal) Snapshot() Action {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := *j.action
	out.Steps = append([]ActionStep(nil), j.action.Steps...)
	return out
}

func (j *Journal) saveLocked() {
	j.action.Touch()
	if j.store == nil {
		return
	}
	if err := j.store.Save(*j.action); err != nil {
		j.logger.Warn("persist action failed", "action_id", j.action.ActionID, "error", err)
	}
}
