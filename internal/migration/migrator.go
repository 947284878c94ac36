package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/frax-migrate/internal/contracts"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/execution"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Plan Plan
	// CodeReader, when set, checks that every resolved address holds code
	// before any call is sent.
	CodeReader contracts.CodeReader
	Journal    *execution.Journal
	Metrics    *Metrics
	Logger     *slog.Logger
}

type Migrator struct {
	resolver   contracts.Resolver
	transactor execution.Transactor
	opts       Options
	log        *slog.Logger
}

func New(resolver contracts.Resolver, transactor execution.Transactor, opts Options) *Migrator {
	if opts.Plan.Deadline == nil {
		opts.Plan = DefaultPlan()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{resolver: resolver, transactor: transactor, opts: opts, log: logger}
}

type Report struct {
	Operator  common.Address `json:"operator"`
	Contracts contracts.Set  `json:"contracts"`
	Stages    []StageReport  `json:"stages"`
	Calls     int            `json:"calls"`
}

type StageReport struct {
	Name       string        `json:"name"`
	Kind       Kind          `json:"kind"`
	Calls      []CallReport  `json:"calls"`
	DurationMS int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
	duration   time.Duration
}

type CallReport struct {
	Contract    string `json:"contract"`
	Method      string `json:"method"`
	Description string `json:"description,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Prepare resolves the contracts and encodes every stage without sending.
func (m *Migrator) Prepare(ctx context.Context) (contracts.Set, []Stage, error) {
	set, err := m.resolver.Resolve(ctx)
	if err != nil {
		return contracts.Set{}, nil, err
	}
	m.log.Info("contracts resolved", "count", set.Len())
	if m.opts.CodeReader != nil {
		if err := contracts.VerifyCode(ctx, m.opts.CodeReader, set); err != nil {
			return contracts.Set{}, nil, err
		}
	}
	stages, err := BuildStages(set, m.transactor.From(), m.opts.Plan)
	if err != nil {
		return contracts.Set{}, nil, err
	}
	return set, stages, nil
}

// Run executes the stages in order. The first failing stage ends the run;
// calls already sent by a failing batch are not cancelled.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	report := Report{Operator: m.transactor.From()}
	set, stages, err := m.Prepare(ctx)
	if err != nil {
		m.complete(err)
		return report, err
	}
	report.Contracts = set

	for _, stage := range stages {
		if stage.Warning != "" {
			m.log.Warn(stage.Warning, "stage", stage.Name)
		}
		if stage.Announce != "" {
			m.log.Info(stage.Announce, "stage", stage.Name)
		}
		sr, err := m.runStage(ctx, stage)
		m.opts.Metrics.observeStage(stage.Name, sr.duration)
		report.Stages = append(report.Stages, sr)
		for _, c := range sr.Calls {
			if c.TxHash != "" {
				report.Calls++
			}
		}
		if err != nil {
			m.complete(err)
			return report, err
		}
	}
	m.complete(nil)
	m.log.Info("migration complete", "calls", report.Calls)
	return report, nil
}

func (m *Migrator) runStage(ctx context.Context, stage Stage) (StageReport, error) {
	start := time.Now()
	sr := StageReport{Name: stage.Name, Kind: stage.Kind, Calls: make([]CallReport, len(stage.Calls))}
	var err error
	switch stage.Kind {
	case KindBatch:
		var g errgroup.Group
		for i, call := range stage.Calls {
			i, call := i, call
			g.Go(func() error {
				cr, err := m.send(ctx, call)
				sr.Calls[i] = cr
				return err
			})
		}
		err = g.Wait()
	default:
		for i, call := range stage.Calls {
			var cr CallReport
			cr, err = m.send(ctx, call)
			sr.Calls[i] = cr
			if err != nil {
				sr.Calls = sr.Calls[:i+1]
				break
			}
			if call.Type == execution.StepTypeSwap {
				m.log.Info(fmt.Sprintf("%s swapped", call.Description), "stage", stage.Name, "tx_hash", cr.TxHash)
			}
		}
	}
	sr.duration = time.Since(start)
	sr.DurationMS = sr.duration.Milliseconds()
	if err != nil {
		sr.Error = err.Error()
		return sr, wrapStageError(stage.Name, err)
	}
	return sr, nil
}

func (m *Migrator) send(ctx context.Context, call execution.Call) (CallReport, error) {
	cr := CallReport{Contract: call.Contract, Method: call.Method, Description: call.Description}
	step := -1
	if m.opts.Journal != nil {
		step = m.opts.Journal.Begin(call)
		journal := m.opts.Journal
		call.Submitted = func(hash common.Hash) { journal.Submit(step, hash) }
	}
	m.log.Debug("sending call", "stage", call.Stage, "contract", call.Contract, "method", call.Method, "target", call.Target.Hex())

	receipt, err := m.transactor.Transact(ctx, call)
	if receipt.TxHash != (common.Hash{}) {
		cr.TxHash = receipt.TxHash.Hex()
		cr.BlockNumber = receipt.BlockNumber
	}
	if m.opts.Journal != nil {
		m.opts.Journal.Finish(step, receipt, err)
	}
	m.opts.Metrics.observeCall(call.Stage, call.Method, err)
	if err != nil {
		cr.Error = err.Error()
		m.log.Error("call failed", "stage", call.Stage, "contract", call.Contract, "method", call.Method, "error", err)
		return cr, err
	}
	m.log.Info("call confirmed", "stage", call.Stage, "contract", call.Contract, "method", call.Method, "tx_hash", cr.TxHash, "block", cr.BlockNumber)
	return cr, nil
}

func (m *Migrator) complete(err error) {
	if m.opts.Journal != nil {
		m.opts.Journal.Complete(err)
	}
}

// wrapStageError keeps the code of a typed error and names the stage.
func wrapStageError(stage string, err error) error {
	if typed, ok := clierr.As(err); ok {
		return clierr.Wrap(typed.Code, fmt.Sprintf("stage %s failed", stage), err)
	}
	return clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("stage %s failed", stage), err)
}
