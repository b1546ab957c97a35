package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/chain/chaintest"
	"github.com/quantumauth-io/dao-agent/internal/contracts"
)

func errorStringPayload(t *testing.T, msg string) []byte {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(msg)
	require.NoError(t, err)
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
}

func TestDecodeRevertCustomErrorFirst(t *testing.T) {
	data := chaintest.Revert(&contracts.ProposalABI, "AlreadyVoted").Data
	assert.Equal(t, "AlreadyVoted()", DecodeRevert(data))

	data = chaintest.Revert(&contracts.GovernanceTokenABI, "ERC20InsufficientBalance",
		common.HexToAddress("0x01"), big.NewInt(5), big.NewInt(10)).Data
	assert.Contains(t, DecodeRevert(data), "ERC20InsufficientBalance(sender=0x0000000000000000000000000000000000000001, balance=5, needed=10)")
}

func TestDecodeRevertErrorString(t *testing.T) {
	assert.Equal(t, "voting closed", DecodeRevert(errorStringPayload(t, "voting closed")))
}

func TestDecodeRevertUTF8Fallback(t *testing.T) {
	data := append([]byte{0xde, 0xad, 0xbe, 0xef}, []byte("not a member")...)
	assert.Equal(t, "not a member", DecodeRevert(data))
}

func TestDecodeRevertUnknown(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef, 0xff, 0x00, 0x01}
	assert.Equal(t, "unknown error data: 0xdeadbeefff0001", DecodeRevert(data))
	assert.Equal(t, "execution reverted without reason", DecodeRevert(nil))
}

func TestRevertDataFromRPCError(t *testing.T) {
	re := chaintest.Revert(&contracts.ProposalABI, "InsufficientPower")
	data, ok := revertData(re)
	require.True(t, ok)
	assert.Equal(t, re.Data, data)
	assert.True(t, isRevert(re))
}
