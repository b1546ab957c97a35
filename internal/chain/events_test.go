package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/contracts"
)

const daoTopic = "0x000000000000000000000000d7f0e82c30c832548130b847f3c6709492593195"

func TestAddressFromTopic(t *testing.T) {
	addr, err := addressFromTopic(daoTopic)
	require.NoError(t, err)
	assert.Equal(t, "0xD7f0E82C30C832548130B847f3c6709492593195", addr.Hex())

	for _, bad := range []string{
		"0x1234",
		// a bare address is not a topic
		"0xd7f0e82c30c832548130b847f3c6709492593195",
		// one nibble short of 32 bytes
		"0x00000000000000000000000d7f0e82c30c832548130b847f3c6709492593195",
		// non-zero padding
		"0x000000000000000000000001d7f0e82c30c832548130b847f3c6709492593195",
		"0x000000000000000000000000zzf0e82c30c832548130b847f3c6709492593195",
	} {
		_, err = addressFromTopic(bad)
		assert.Equal(t, apperr.CodeInvalidAddress, apperr.CodeOf(err), bad)
	}
}

// deploymentReceipt mirrors a factory deployment: four unrelated logs, then
// the DAOCreated log as the fifth entry.
func deploymentReceipt() *types.Receipt {
	ev := contracts.DAOFactoryABI.Events[contracts.EventDAOCreated]
	noise := func(i byte) *types.Log {
		return &types.Log{
			Address: common.BytesToAddress([]byte{0xee, i}),
			Topics:  []common.Hash{common.BytesToHash([]byte{0xaa, i})},
		}
	}
	govToken := common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	created := &types.Log{
		Address: common.HexToAddress("0x3CB6AfA66Da96138C367f99B8033959F06ce28C1"),
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()),
			common.HexToHash(daoTopic),
		},
		Data: common.LeftPadBytes(govToken.Bytes(), 32),
	}
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: common.HexToHash("0x01"),
		Logs:   []*types.Log{noise(1), noise(2), noise(3), noise(4), created},
	}
}

func TestEventAddressBySignature(t *testing.T) {
	receipt := deploymentReceipt()

	dao, err := EventAddress(receipt, &contracts.DAOFactoryABI, contracts.EventDAOCreated, "dao", nil)
	require.NoError(t, err)
	assert.Equal(t, "0xD7f0E82C30C832548130B847f3c6709492593195", dao.Hex())

	gt, err := EventAddress(receipt, &contracts.DAOFactoryABI, contracts.EventDAOCreated, "governanceToken", nil)
	require.NoError(t, err)
	assert.Equal(t, "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0", gt.Hex())
}

func TestEventAddressSurvivesReordering(t *testing.T) {
	receipt := deploymentReceipt()
	// move the event first; positional parsing would break here
	receipt.Logs = append([]*types.Log{receipt.Logs[4]}, receipt.Logs[:4]...)

	dao, err := EventAddress(receipt, &contracts.DAOFactoryABI, contracts.EventDAOCreated, "dao", nil)
	require.NoError(t, err)
	assert.Equal(t, "0xD7f0E82C30C832548130B847f3c6709492593195", dao.Hex())
}

func TestEventAddressRejectsDirtyTopic(t *testing.T) {
	receipt := deploymentReceipt()
	receipt.Logs[4].Topics[2] = common.HexToHash("0xff0000000000000000000000d7f0e82c30c832548130b847f3c6709492593195")

	_, err := EventAddress(receipt, &contracts.DAOFactoryABI, contracts.EventDAOCreated, "dao", nil)
	assert.Equal(t, apperr.CodeExpectedEventMissing, apperr.CodeOf(err))
}

func TestMissingEventIsHardError(t *testing.T) {
	receipt := deploymentReceipt()
	receipt.Logs = receipt.Logs[:4]

	_, err := EventAddress(receipt, &contracts.DAOFactoryABI, contracts.EventDAOCreated, "dao", nil)
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, apperr.CodeExpectedEventMissing, e.Code)
	assert.Equal(t, receipt.TxHash.Hex(), e.TxHash)
}

func TestEmitterFilter(t *testing.T) {
	receipt := deploymentReceipt()
	other := common.HexToAddress("0x0000000000000000000000000000000000000bad")

	_, err := FindEvent(receipt, &contracts.DAOFactoryABI, contracts.EventDAOCreated, &other)
	assert.Equal(t, apperr.CodeExpectedEventMissing, apperr.CodeOf(err))
}

func TestFirstEmitterExcept(t *testing.T) {
	mgmt := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	token := common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	receipt := &types.Receipt{Logs: []*types.Log{{Address: mgmt}, {Address: token}, {Address: mgmt}}}

	got, err := FirstEmitterExcept(receipt, mgmt)
	require.NoError(t, err)
	assert.Equal(t, token, got)

	_, err = FirstEmitterExcept(&types.Receipt{Logs: []*types.Log{{Address: mgmt}}}, mgmt)
	assert.Equal(t, apperr.CodeExpectedEventMissing, apperr.CodeOf(err))
}
