package execution

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/registry"
)

var (
	approveMethod     = registry.ERC20.Methods["approve"]
	swapToPriceMethod = registry.SwapToPrice.Methods["swapToPrice"]
	setPeriodMethod   = registry.PairOracle.Methods["setPeriod"]
	updateMethod      = registry.PairOracle.Methods["update"]
)

// ValidateCall checks that the calldata of call matches its declared step type
// before anything is signed.
func ValidateCall(call Call) error {
	if call.Target == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("%s.%s has no target address", call.Contract, call.Method))
	}
	switch call.Type {
	case StepTypeApproval:
		return validateApproval(call)
	case StepTypeSwap:
		return validateSwap(call)
	case StepTypeOraclePeriod:
		args, err := unpackFor(setPeriodMethod, call.Data)
		if err != nil {
			return err
		}
		period, ok := toBigInt(args[0])
		if !ok || period.Sign() <= 0 {
			return clierr.New(clierr.CodeUsage, "setPeriod requires a positive period")
		}
		return nil
	case StepTypeOracleUpdate:
		if !bytes.Equal(call.Data, updateMethod.ID) {
			return clierr.New(clierr.CodeUsage, "oracle update step must call update()")
		}
		return nil
	default:
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported step type %q", call.Type))
	}
}

func validateApproval(call Call) error {
	args, err := unpackFor(approveMethod, call.Data)
	if err != nil {
		return err
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, "approval step has invalid spender")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "approval step has invalid approval amount")
	}
	return nil
}

func validateSwap(call Call) error {
	args, err := unpackFor(swapToPriceMethod, call.Data)
	if err != nil {
		return err
	}
	tokenA, okA := toAddress(args[0])
	tokenB, okB := toAddress(args[1])
	if !okA || !okB || tokenA == (common.Address{}) || tokenB == (common.Address{}) || tokenA == tokenB {
		return clierr.New(clierr.CodeUsage, "swap step needs two distinct tokens")
	}
	for i := 2; i <= 5; i++ {
		v, ok := toBigInt(args[i])
		if !ok || v.Sign() <= 0 {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("swap step argument %s must be positive", swapToPriceMethod.Inputs[i].Name))
		}
	}
	to, ok := toAddress(args[6])
	if !ok || to == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, "swap step has invalid recipient")
	}
	return nil
}

func unpackFor(method abi.Method, data []byte) ([]any, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("step must call %s", method.Sig))
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != len(method.Inputs) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s calldata is invalid", method.Name))
	}
	return args, nil
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}
