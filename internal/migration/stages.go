package migration

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/frax-migrate/internal/contracts"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/execution"
	"github.com/ggonzalez94/frax-migrate/internal/registry"
)

type Kind string

const (
	// KindBatch starts every call before waiting on any of them.
	KindBatch      Kind = "batch"
	KindSequential Kind = "sequential"
)

const (
	StageApproveRouter       = "approve-router"
	StageApproveSwapHelper   = "approve-swap-helper"
	StageSwapToPrice         = "swap-to-price"
	StageOraclePeriodShrink  = "oracle-period-shrink"
	StageOracleUpdate        = "oracle-update"
	StageOraclePeriodRestore = "oracle-period-restore"
)

type Stage struct {
	Name     string           `json:"name"`
	Kind     Kind             `json:"kind"`
	Announce string           `json:"announce,omitempty"`
	Warning  string           `json:"warning,omitempty"`
	Calls    []execution.Call `json:"-"`
}

// BuildStages encodes the plan against the resolved contracts. Every call is
// validated here so a malformed plan fails before anything is sent.
func BuildStages(set contracts.Set, operator common.Address, plan Plan) ([]Stage, error) {
	if operator == (common.Address{}) {
		return nil, clierr.New(clierr.CodeSigner, "missing operator address")
	}
	b := &builder{set: set}

	approvals := make([]Stage, 0, len(plan.Spenders))
	for _, spender := range plan.Spenders {
		stage := Stage{Kind: KindBatch}
		switch spender {
		case registry.Router:
			stage.Name, stage.Announce = StageApproveRouter, "FIRST SWAPS"
		case registry.SwapHelper:
			stage.Name, stage.Announce = StageApproveSwapHelper, "Doing swapToPrice allowances..."
		default:
			stage.Name = "approve-" + string(spender)
		}
		spenderAddr := b.address(spender)
		for _, a := range plan.Allowances {
			stage.Calls = append(stage.Calls, b.call(stage.Name, execution.StepTypeApproval, a.Token, registry.ERC20, "approve",
				fmt.Sprintf("%s allowance for %s", symbol(a.Token), spender), spenderAddr, a.Amount))
		}
		approvals = append(approvals, stage)
	}

	swaps := Stage{Name: StageSwapToPrice, Kind: KindSequential}
	for _, s := range plan.Swaps {
		swaps.Calls = append(swaps.Calls, b.call(swaps.Name, execution.StepTypeSwap, registry.SwapHelper, registry.SwapToPrice, "swapToPrice",
			fmt.Sprintf("%s / %s", symbol(s.TokenA), symbol(s.TokenB)),
			b.address(s.TokenA), b.address(s.TokenB), s.PriceA, s.PriceB, plan.MaxSpend, plan.MaxSpend, operator, plan.Deadline))
	}

	shrink := Stage{
		Name:     StageOraclePeriodShrink,
		Kind:     KindBatch,
		Announce: "TEMPORARILY SET THE PERIOD TO 1 SECOND",
		Warning:  "normally at least 24 hours must pass here; temporarily resetting the oracle period to 1 second",
	}
	update := Stage{Name: StageOracleUpdate, Kind: KindBatch, Announce: "UPDATE THE PRICES"}
	restore := Stage{Name: StageOraclePeriodRestore, Kind: KindBatch, Announce: "SET THE PERIOD BACK TO 1 HOUR"}
	for _, oracle := range registry.Oracles() {
		shrink.Calls = append(shrink.Calls, b.call(shrink.Name, execution.StepTypeOraclePeriod, oracle, registry.PairOracle, "setPeriod",
			fmt.Sprintf("period %s", plan.RefreshPeriod), plan.RefreshPeriod))
		update.Calls = append(update.Calls, b.call(update.Name, execution.StepTypeOracleUpdate, oracle, registry.PairOracle, "update", "update"))
		restore.Calls = append(restore.Calls, b.call(restore.Name, execution.StepTypeOraclePeriod, oracle, registry.PairOracle, "setPeriod",
			fmt.Sprintf("period %s", plan.RestorePeriod), plan.RestorePeriod))
	}
	if b.err != nil {
		return nil, b.err
	}

	stages := append(approvals, swaps, shrink, update, restore)
	for _, stage := range stages {
		for _, call := range stage.Calls {
			if err := execution.ValidateCall(call); err != nil {
				return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("invalid %s call on %s", stage.Name, call.Contract), err)
			}
		}
	}
	return stages, nil
}

// builder keeps the first resolution or encoding error so stage assembly reads
// straight through.
type builder struct {
	set contracts.Set
	err error
}

func (b *builder) address(name registry.Name) common.Address {
	addr, err := b.set.Address(name)
	if err != nil && b.err == nil {
		b.err = clierr.Wrap(clierr.CodeDeployment, "build stages", err)
	}
	return addr
}

func (b *builder) call(stage string, typ execution.StepType, contract registry.Name, contractABI abi.ABI, method, description string, args ...any) execution.Call {
	target := b.address(contract)
	data, err := contractABI.Pack(method, args...)
	if err != nil && b.err == nil {
		b.err = clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("encode %s.%s", contract, method), err)
	}
	return execution.Call{
		Stage:       stage,
		Type:        typ,
		Contract:    string(contract),
		Method:      method,
		Target:      target,
		Data:        data,
		Description: description,
	}
}

func symbol(name registry.Name) string {
	if spec, ok := registry.Lookup(name); ok && spec.Symbol != "" {
		return spec.Symbol
	}
	return string(name)
}

// CallCount is the number of transactions the stages send.
func CallCount(stages []Stage) int {
	n := 0
	for _, s := range stages {
		n += len(s.Calls)
	}
	return n
}
