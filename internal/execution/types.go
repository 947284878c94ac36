package execution

import "time"

type ActionStatus string

type StepStatus string

type StepType string

const (
	ActionStatusPlanned   ActionStatus = "planned"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeApproval     StepType = "approval"
	StepTypeSwap         StepType = "swap_to_price"
	StepTypeOraclePeriod StepType = "oracle_period"
	StepTypeOracleUpdate StepType = "oracle_update"
)

type ActionStep struct {
	StepID      string     `json:"step_id"`
	Stage       string     `json:"stage"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	Contract    string     `json:"contract"`
	Method      string     `json:"method"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target"`
	Data        string     `json:"data"`
	TxHash      string     `json:"tx_hash,omitempty"`
	BlockNumber uint64     `json:"block_number,omitempty"`
	GasUsed     uint64     `json:"gas_used,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   string     `json:"started_at,omitempty"`
	FinishedAt  string     `json:"finished_at,omitempty"`
}

// Action is the persisted record of one migration run.
type Action struct {
	ActionID    string         `json:"action_id"`
	Kind        string         `json:"kind"`
	Status      ActionStatus   `json:"status"`
	Mode        string         `json:"mode"`
	ChainID     string         `json:"chain_id,omitempty"`
	FromAddress string         `json:"from_address,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Steps       []ActionStep   `json:"steps"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewAction(actionID, kind, mode string) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:  actionID,
		Kind:      kind,
		Status:    ActionStatusPlanned,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     []ActionStep{},
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
