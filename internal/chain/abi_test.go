package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

func chainOrder() domain.Order {
	return domain.Order{
		TokenID:     "9823144769058601486971276506103217773430970565999235883",
		Maker:       "0x1111111111111111111111111111111111111111",
		MakerAmount: big.NewInt(500000),
		TakerAmount: big.NewInt(1000000),
		Expiration:  0,
		Nonce:       1,
		FeeRateBps:  50,
		Side:        domain.OrderSideBuy,
		Signer:      domain.ZeroAddress,
		Signature:   "0x" + strings.Repeat("ab", 65),
		OrderHash:   "0x" + strings.Repeat("cd", 32),
	}
}

func TestToExchangeOrder(t *testing.T) {
	o := chainOrder()

	tuple, err := toExchangeOrder(o)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(o.Maker), tuple.Maker)
	assert.Equal(t, o.TokenID, tuple.TokenId.String())
	assert.Equal(t, "500000", tuple.MakerAmount.String())
	assert.Equal(t, "1000000", tuple.TakerAmount.String())
	assert.Equal(t, uint8(0), tuple.Side)
	assert.Equal(t, common.Address{}, tuple.Signer)

	t.Run("sell side encodes as one", func(t *testing.T) {
		o := chainOrder()
		o.Side = domain.OrderSideSell

		tuple, err := toExchangeOrder(o)
		require.NoError(t, err)
		assert.Equal(t, uint8(1), tuple.Side)
	})

	t.Run("empty signer maps to the zero address", func(t *testing.T) {
		o := chainOrder()
		o.Signer = ""

		tuple, err := toExchangeOrder(o)
		require.NoError(t, err)
		assert.Equal(t, common.Address{}, tuple.Signer)
	})

	t.Run("explicit signer passes through", func(t *testing.T) {
		o := chainOrder()
		o.Signer = "0x2222222222222222222222222222222222222222"

		tuple, err := toExchangeOrder(o)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(o.Signer), tuple.Signer)
	})

	t.Run("rejects a non-numeric token id", func(t *testing.T) {
		o := chainOrder()
		o.TokenID = "0xdeadbeef"

		_, err := toExchangeOrder(o)
		assert.Error(t, err)
	})
}

// The tuple struct is mapped onto the ABI components by reflection, so a
// drifted field name would only surface at encode time.
func TestABIEncodesCalls(t *testing.T) {
	o := chainOrder()
	tuple, err := toExchangeOrder(o)
	require.NoError(t, err)

	t.Run("fillOrders", func(t *testing.T) {
		sig, err := decodeHex(o.Signature)
		require.NoError(t, err)

		data, err := exchangeABI.Pack("fillOrders",
			[]exchangeOrder{tuple, tuple},
			[]*big.Int{big.NewInt(1000), big.NewInt(2000)},
			[][]byte{sig, sig})
		require.NoError(t, err)
		assert.Equal(t, exchangeABI.Methods["fillOrders"].ID, data[:4])
	})

	t.Run("cancelOrder", func(t *testing.T) {
		data, err := exchangeABI.Pack("cancelOrder", tuple)
		require.NoError(t, err)
		assert.Equal(t, exchangeABI.Methods["cancelOrder"].ID, data[:4])
	})
}

func TestParseBytes32(t *testing.T) {
	in := "0x" + strings.Repeat("ab", 32)

	b, err := parseBytes32(in)
	require.NoError(t, err)
	assert.Equal(t, in, bytes32Hex(b))

	t.Run("upper case normalises", func(t *testing.T) {
		b, err := parseBytes32("0x" + strings.Repeat("AB", 32))
		require.NoError(t, err)
		assert.Equal(t, in, bytes32Hex(b))
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := parseBytes32("0x1234")
		assert.Error(t, err)
	})

	t.Run("not hex", func(t *testing.T) {
		_, err := parseBytes32("condition-1")
		assert.Error(t, err)
	})
}
