package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Mode      string    `json:"mode,omitempty"`
	ActionID  string    `json:"action_id,omitempty"`
}

// StagePlan is the dry-run view of one migration stage.
type StagePlan struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Announce string     `json:"announce,omitempty"`
	Warning  string     `json:"warning,omitempty"`
	Calls    []CallPlan `json:"calls"`
}

type CallPlan struct {
	Contract    string            `json:"contract"`
	Method      string            `json:"method"`
	Target      string            `json:"target"`
	Description string            `json:"description,omitempty"`
	Args        map[string]string `json:"args,omitempty"`
	Data        string            `json:"data"`
}

type MigrationPlan struct {
	Mode     string      `json:"mode"`
	Operator string      `json:"operator"`
	Calls    int         `json:"calls"`
	Stages   []StagePlan `json:"stages"`
}

type MigrationResult struct {
	ActionID string `json:"action_id"`
	Mode     string `json:"mode"`
	Report   any    `json:"report"`
}
