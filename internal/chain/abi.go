package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// Hand-maintained ABI fragments for the three venue contracts. Only the
// methods the backend calls are declared.
const (
	exchangeABIJSON = `[
	  {"type":"function","name":"fillOrders","stateMutability":"nonpayable","inputs":[
	    {"name":"orders","type":"tuple[]","components":[
	      {"name":"maker","type":"address"},
	      {"name":"tokenId","type":"uint256"},
	      {"name":"makerAmount","type":"uint256"},
	      {"name":"takerAmount","type":"uint256"},
	      {"name":"expiration","type":"uint256"},
	      {"name":"nonce","type":"uint256"},
	      {"name":"feeRateBps","type":"uint256"},
	      {"name":"side","type":"uint8"},
	      {"name":"signer","type":"address"}
	    ]},
	    {"name":"fillAmounts","type":"uint256[]"},
	    {"name":"signatures","type":"bytes[]"}
	  ],"outputs":[]},
	  {"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[
	    {"name":"order","type":"tuple","components":[
	      {"name":"maker","type":"address"},
	      {"name":"tokenId","type":"uint256"},
	      {"name":"makerAmount","type":"uint256"},
	      {"name":"takerAmount","type":"uint256"},
	      {"name":"expiration","type":"uint256"},
	      {"name":"nonce","type":"uint256"},
	      {"name":"feeRateBps","type":"uint256"},
	      {"name":"side","type":"uint8"},
	      {"name":"signer","type":"address"}
	    ]}
	  ],"outputs":[]}
	]`

	factoryABIJSON = `[
	  {"type":"function","name":"getMarketCount","stateMutability":"view",
	   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	  {"type":"function","name":"getMarketConditionIds","stateMutability":"view",
	   "inputs":[{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
	   "outputs":[{"name":"","type":"bytes32[]"}]},
	  {"type":"function","name":"getMarket","stateMutability":"view",
	   "inputs":[{"name":"conditionId","type":"bytes32"}],
	   "outputs":[
	     {"name":"questionId","type":"bytes32"},
	     {"name":"oracle","type":"address"},
	     {"name":"collateralToken","type":"address"},
	     {"name":"title","type":"string"},
	     {"name":"description","type":"string"},
	     {"name":"category","type":"string"},
	     {"name":"resolutionTime","type":"uint256"},
	     {"name":"resolved","type":"bool"},
	     {"name":"yesPayout","type":"uint256"},
	     {"name":"noPayout","type":"uint256"}
	   ]},
	  {"type":"function","name":"getPositionIds","stateMutability":"view",
	   "inputs":[{"name":"conditionId","type":"bytes32"}],
	   "outputs":[{"name":"yesPositionId","type":"uint256"},{"name":"noPositionId","type":"uint256"}]}
	]`

	tokensABIJSON = `[
	  {"type":"function","name":"balanceOf","stateMutability":"view",
	   "inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
	   "outputs":[{"name":"","type":"uint256"}]}
	]`
)

var (
	exchangeABI = mustParseABI(exchangeABIJSON)
	factoryABI  = mustParseABI(factoryABIJSON)
	tokensABI   = mustParseABI(tokensABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("chain: parsing ABI: %v", err))
	}
	return parsed
}

// exchangeOrder mirrors the CTFExchange Order tuple. Field names follow the
// ABI component names so the encoder can map them by reflection.
type exchangeOrder struct {
	Maker       common.Address
	TokenId     *big.Int
	MakerAmount *big.Int
	TakerAmount *big.Int
	Expiration  *big.Int
	Nonce       *big.Int
	FeeRateBps  *big.Int
	Side        uint8
	Signer      common.Address
}

// toExchangeOrder converts a stored order into the tuple the contract hashes.
// The signer field travels exactly as signed, an empty string meaning the
// zero address.
func toExchangeOrder(o domain.Order) (exchangeOrder, error) {
	tokenID, ok := new(big.Int).SetString(o.TokenID, 10)
	if !ok {
		return exchangeOrder{}, fmt.Errorf("chain: invalid token id %q", o.TokenID)
	}
	return exchangeOrder{
		Maker:       common.HexToAddress(o.Maker),
		TokenId:     tokenID,
		MakerAmount: o.MakerAmount,
		TakerAmount: o.TakerAmount,
		Expiration:  big.NewInt(o.Expiration),
		Nonce:       big.NewInt(o.Nonce),
		FeeRateBps:  big.NewInt(o.FeeRateBps),
		Side:        o.Side.Uint8(),
		Signer:      common.HexToAddress(o.Signer),
	}, nil
}
