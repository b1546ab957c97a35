package chain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/quantumauth-io/dao-agent/internal/contracts"
)

// revertData extracts the raw revert payload carried by an RPC error.
func revertData(err error) ([]byte, bool) {
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		de, ok := e.(rpc.DataError)
		if !ok {
			continue
		}
		switch v := de.ErrorData().(type) {
		case string:
			b, decErr := hexutil.Decode(v)
			if decErr == nil {
				return b, true
			}
		case []byte:
			return v, true
		}
	}
	return nil, false
}

// nodeRejected reports whether err is a JSON-RPC error answered by the node,
// as opposed to a transport failure that never got a response.
func nodeRejected(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

// isRevert reports whether err is an execution revert, with or without data.
func isRevert(err error) bool {
	if _, ok := revertData(err); ok {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// DecodeRevert renders revert data for humans. Custom errors of the given
// ABIs (all known ABIs when none are given) are tried first, then the
// standard Error(string) and Panic(uint256), then the payload as UTF-8 text.
func DecodeRevert(data []byte, abis ...*abi.ABI) string {
	if len(data) == 0 {
		return "execution reverted without reason"
	}
	if len(abis) == 0 {
		abis = contracts.All()
	}

	if len(data) >= 4 {
		for _, a := range abis {
			for name, e := range a.Errors {
				if !matchesSelector(e.ID.Bytes(), data) {
					continue
				}
				args, err := e.Inputs.Unpack(data[4:])
				if err != nil {
					continue
				}
				return formatCustomError(name, e.Inputs, args)
			}
		}

		if reason, err := abi.UnpackRevert(data); err == nil {
			return reason
		}

		if text, ok := printable(data[4:]); ok {
			return text
		}
	}

	return "unknown error data: " + hexutil.Encode(data)
}

// preferring lists contract ahead of every known ABI.
func preferring(contract *abi.ABI) []*abi.ABI {
	all := contracts.All()
	if contract == nil {
		return all
	}
	return append([]*abi.ABI{contract}, all...)
}

func matchesSelector(id, data []byte) bool {
	return len(data) >= 4 && id[0] == data[0] && id[1] == data[1] && id[2] == data[2] && id[3] == data[3]
}

func formatCustomError(name string, inputs abi.Arguments, args []interface{}) string {
	if len(args) == 0 {
		return name + "()"
	}
	parts := make([]string, len(args))
	for i, a := range args {
		label := inputs[i].Name
		if label == "" {
			parts[i] = fmt.Sprint(a)
		} else {
			parts[i] = fmt.Sprintf("%s=%v", label, a)
		}
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// printable returns the payload as text when it is valid UTF-8 with at least
// one visible character after trimming padding.
func printable(b []byte) (string, bool) {
	s := strings.Trim(string(b), "\x00")
	if s == "" || !utf8.ValidString(s) {
		return "", false
	}
	visible := 0
	for _, r := range s {
		if unicode.IsPrint(r) {
			visible++
		} else if !unicode.IsSpace(r) {
			return "", false
		}
	}
	return strings.TrimSpace(s), visible > 0
}
