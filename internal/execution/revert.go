package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
)

func decodeRevertData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	if len(data) >= 4 {
		return fmt.Sprintf("custom error %s", hexutil.Encode(data[:4]))
	}
	return ""
}

func decodeRevertFromError(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		if !strings.HasPrefix(v, "0x") {
			return ""
		}
		return decodeRevertData(common.FromHex(v))
	case []byte:
		return decodeRevertData(v)
	default:
		return ""
	}
}

// wrapEVMExecutionError attaches a decoded revert reason when the node returned one.
func wrapEVMExecutionError(code clierr.Code, message string, err error) *clierr.Error {
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: revert %s", message, reason), err)
	}
	return clierr.Wrap(code, message, err)
}
