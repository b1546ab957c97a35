package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromHex(t *testing.T) {
	key, err := KeyFromHex("")
	require.NoError(t, err)
	assert.Nil(t, key)

	generated, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(generated))

	for _, in := range []string{hexKey, "0x" + hexKey, " 0x" + hexKey + "\n"} {
		key, err := KeyFromHex(in)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(generated.PublicKey), crypto.PubkeyToAddress(key.PublicKey))
	}

	_, err = KeyFromHex("0xnothex")
	assert.Error(t, err)
}
