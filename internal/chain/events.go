package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
)

// FindEvent returns the first log in receipt whose topic0 is the signature of
// the named event. When emitter is non-nil the log must also come from that
// contract.
func FindEvent(receipt *types.Receipt, contract *abi.ABI, name string, emitter *common.Address) (*types.Log, error) {
	ev, ok := contract.Events[name]
	if !ok {
		return nil, apperr.Newf(apperr.KindInfrastructure, apperr.CodeInternal, "event %s is not in the abi", name)
	}
	if receipt != nil {
		for _, lg := range receipt.Logs {
			if lg == nil || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
				continue
			}
			if emitter != nil && lg.Address != *emitter {
				continue
			}
			return lg, nil
		}
	}
	return nil, expectedEventMissing(receipt, name)
}

// DecodeEvent decodes indexed and non-indexed arguments of lg into a map
// keyed by argument name.
func DecodeEvent(contract *abi.ABI, name string, lg *types.Log) (map[string]interface{}, error) {
	ev, ok := contract.Events[name]
	if !ok {
		return nil, apperr.Newf(apperr.KindInfrastructure, apperr.CodeInternal, "event %s is not in the abi", name)
	}

	out := make(map[string]interface{}, len(ev.Inputs))
	if len(lg.Data) > 0 {
		if err := contract.UnpackIntoMap(out, name, lg.Data); err != nil {
			return nil, apperr.Wrap(err, apperr.KindChainExecution, apperr.CodeExpectedEventMissing, "decode "+name+" data")
		}
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(lg.Topics) < len(indexed)+1 {
		return nil, apperr.Newf(apperr.KindChainExecution, apperr.CodeExpectedEventMissing,
			"%s log has %d topics, expected %d", name, len(lg.Topics), len(indexed)+1)
	}
	if err := abi.ParseTopicsIntoMap(out, indexed, lg.Topics[1:]); err != nil {
		return nil, apperr.Wrap(err, apperr.KindChainExecution, apperr.CodeExpectedEventMissing, "decode "+name+" topics")
	}
	return out, nil
}

// EventAddress finds the named event in receipt and returns its address-typed
// argument field. Indexed addresses are read straight from their topic.
func EventAddress(receipt *types.Receipt, contract *abi.ABI, name, field string, emitter *common.Address) (common.Address, error) {
	lg, err := FindEvent(receipt, contract, name, emitter)
	if err != nil {
		return common.Address{}, err
	}

	topic := 1
	for _, in := range contract.Events[name].Inputs {
		if !in.Indexed {
			continue
		}
		if in.Name == field && in.Type.T == abi.AddressTy {
			if len(lg.Topics) <= topic {
				break
			}
			addr, err := addressFromTopic(lg.Topics[topic].Hex())
			if err != nil || addr == (common.Address{}) {
				return common.Address{}, expectedEventMissing(receipt, name+"."+field)
			}
			return addr, nil
		}
		topic++
	}

	args, err := DecodeEvent(contract, name, lg)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := args[field].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, expectedEventMissing(receipt, name+"."+field)
	}
	return addr, nil
}

// FirstEmitterExcept returns the address of the first log not emitted by
// any of the excluded contracts.
func FirstEmitterExcept(receipt *types.Receipt, exclude ...common.Address) (common.Address, error) {
	if receipt != nil {
	logs:
		for _, lg := range receipt.Logs {
			if lg == nil {
				continue
			}
			for _, ex := range exclude {
				if lg.Address == ex {
					continue logs
				}
			}
			return lg.Address, nil
		}
	}
	return common.Address{}, expectedEventMissing(receipt, "contract creation log")
}

// addressFromTopic converts a 32-byte topic holding a right-aligned address
// into its checksummed form. The 12 padding bytes must be zero.
func addressFromTopic(topic string) (common.Address, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(topic), "0x"), "0X")
	if len(h) != common.HashLength*2 {
		return common.Address{}, apperr.Input(apperr.CodeInvalidAddress, "topic %q is not 32 bytes", topic)
	}
	pad, low := h[:len(h)-common.AddressLength*2], h[len(h)-common.AddressLength*2:]
	if strings.Trim(pad, "0") != "" || !common.IsHexAddress(low) {
		return common.Address{}, apperr.Input(apperr.CodeInvalidAddress, "topic %q does not hold an address", topic)
	}
	return common.HexToAddress(low), nil
}

func expectedEventMissing(receipt *types.Receipt, what string) *apperr.Error {
	e := apperr.Newf(apperr.KindChainExecution, apperr.CodeExpectedEventMissing,
		"transaction confirmed but %s was not found in its receipt", what)
	if receipt != nil {
		return e.WithTx(receipt.TxHash.Hex())
	}
	return e
}
