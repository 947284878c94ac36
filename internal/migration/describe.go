package migration

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ggonzalez94/frax-migrate/internal/execution"
	"github.com/ggonzalez94/frax-migrate/internal/model"
	"github.com/ggonzalez94/frax-migrate/internal/registry"
)

// Describe renders encoded stages for a dry run.
func Describe(mode string, operator common.Address, stages []Stage) model.MigrationPlan {
	out := model.MigrationPlan{
		Mode:     mode,
		Operator: operator.Hex(),
		Stages:   make([]model.StagePlan, 0, len(stages)),
	}
	for _, stage := range stages {
		sp := model.StagePlan{
			Name:     stage.Name,
			Kind:     string(stage.Kind),
			Announce: stage.Announce,
			Warning:  stage.Warning,
			Calls:    make([]model.CallPlan, 0, len(stage.Calls)),
		}
		for _, call := range stage.Calls {
			sp.Calls = append(sp.Calls, describeCall(call))
		}
		out.Calls += len(sp.Calls)
		out.Stages = append(out.Stages, sp)
	}
	return out
}

func describeCall(call execution.Call) model.CallPlan {
	cp := model.CallPlan{
		Contract:    call.Contract,
		Method:      call.Method,
		Target:      call.Target.Hex(),
		Description: call.Description,
		Data:        hexutil.Encode(call.Data),
	}
	method, ok := methodFor(call.Data)
	if !ok {
		return cp
	}
	values, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil || len(values) != len(method.Inputs) {
		return cp
	}
	if len(values) > 0 {
		cp.Args = make(map[string]string, len(values))
	}
	for i, input := range method.Inputs {
		cp.Args[input.Name] = formatArg(values[i])
	}
	return cp
}

func methodFor(data []byte) (*abi.Method, bool) {
	if len(data) < 4 {
		return nil, false
	}
	for _, parsed := range []abi.ABI{registry.ERC20, registry.SwapToPrice, registry.PairOracle} {
		if method, err := parsed.MethodById(data[:4]); err == nil {
			return method, true
		}
	}
	return nil, false
}

func formatArg(v any) string {
	switch value := v.(type) {
	case common.Address:
		return value.Hex()
	case *big.Int:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}
