// Package chain talks to the venue contracts over JSON-RPC: it submits
// settlement batches to the CTFExchange, reads market metadata from the
// MarketFactory and position balances from the ConditionalTokens ERC-1155.
package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// Config identifies one deployment of the venue contracts.
type Config struct {
	RPCURL          string
	ChainID         int64
	ExchangeAddress string
	FactoryAddress  string
	TokensAddress   string

	// CallTimeout caps every RPC round trip. Zero means no cap beyond the
	// caller's context.
	CallTimeout time.Duration
}

// Executor implements domain.ChainExecutor on an ethclient connection.
// Read methods work without a key; FillOrders and CancelOrder require the
// settlement operator key.
type Executor struct {
	eth         *ethclient.Client
	chainID     *big.Int
	callTimeout time.Duration

	exchange *bind.BoundContract
	factory  *bind.BoundContract
	tokens   *bind.BoundContract

	opts   *bind.TransactOpts // nil when no key is configured
	sender common.Address
	logger *slog.Logger
}

// Compile-time interface check.
var _ domain.ChainExecutor = (*Executor)(nil)

// New dials the RPC endpoint and binds the three contracts. key may be nil
// for read-only deployments.
func New(cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*Executor, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	e := &Executor{
		eth:         eth,
		chainID:     big.NewInt(cfg.ChainID),
		callTimeout: cfg.CallTimeout,
		exchange:    bind.NewBoundContract(common.HexToAddress(cfg.ExchangeAddress), exchangeABI, eth, eth, eth),
		factory:     bind.NewBoundContract(common.HexToAddress(cfg.FactoryAddress), factoryABI, eth, eth, eth),
		tokens:      bind.NewBoundContract(common.HexToAddress(cfg.TokensAddress), tokensABI, eth, eth, eth),
		logger:      logger.With(slog.String("component", "chain")),
	}

	if key != nil {
		opts, err := bind.NewKeyedTransactorWithChainID(key, e.chainID)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("chain: transactor: %w", err)
		}
		e.opts = opts
		e.sender = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
	return e, nil
}

// Close releases the underlying RPC connection.
func (e *Executor) Close() {
	e.eth.Close()
}

// Sender returns the settlement operator address, or the zero address when
// running without a key.
func (e *Executor) Sender() common.Address {
	return e.sender
}

// FillOrders submits one transaction executing the given maker orders for the
// given token amounts. orders[i] is consumed for amounts[i]; signatures are
// taken from the orders themselves.
func (e *Executor) FillOrders(ctx context.Context, orders []domain.Order, amounts []*big.Int) (string, error) {
	if e.opts == nil {
		return "", fmt.Errorf("chain: fill orders: no settlement key configured")
	}
	if len(orders) == 0 {
		return "", fmt.Errorf("chain: fill orders: empty batch")
	}
	if len(orders) != len(amounts) {
		return "", fmt.Errorf("chain: fill orders: %d orders, %d amounts", len(orders), len(amounts))
	}

	tuples := make([]exchangeOrder, 0, len(orders))
	sigs := make([][]byte, 0, len(orders))
	for _, o := range orders {
		t, err := toExchangeOrder(o)
		if err != nil {
			return "", err
		}
		sig, err := decodeHex(o.Signature)
		if err != nil {
			return "", fmt.Errorf("chain: order %s signature: %w", o.OrderHash, err)
		}
		tuples = append(tuples, t)
		sigs = append(sigs, sig)
	}

	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	tx, err := e.exchange.Transact(e.transactOpts(ctx), "fillOrders", tuples, amounts, sigs)
	if err != nil {
		return "", fmt.Errorf("chain: fill orders: %w", err)
	}
	e.logger.InfoContext(ctx, "settlement batch submitted",
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Int("orders", len(orders)))
	return tx.Hash().Hex(), nil
}

// CancelOrder invalidates the order on-chain so its signature can no longer
// be filled.
func (e *Executor) CancelOrder(ctx context.Context, o domain.Order) (string, error) {
	if e.opts == nil {
		return "", fmt.Errorf("chain: cancel order: no settlement key configured")
	}
	t, err := toExchangeOrder(o)
	if err != nil {
		return "", err
	}

	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	tx, err := e.exchange.Transact(e.transactOpts(ctx), "cancelOrder", t)
	if err != nil {
		return "", fmt.Errorf("chain: cancel order %s: %w", o.OrderHash, err)
	}
	return tx.Hash().Hex(), nil
}

// MarketCount returns the number of markets the factory has created.
func (e *Executor) MarketCount(ctx context.Context) (int64, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	var out []interface{}
	if err := e.factory.Call(&bind.CallOpts{Context: ctx}, &out, "getMarketCount"); err != nil {
		return 0, fmt.Errorf("chain: market count: %w", err)
	}
	return out[0].(*big.Int).Int64(), nil
}

// MarketConditionIDs pages through the factory's condition id registry.
func (e *Executor) MarketConditionIDs(ctx context.Context, offset, limit int64) ([]string, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	var out []interface{}
	if err := e.factory.Call(&bind.CallOpts{Context: ctx}, &out, "getMarketConditionIds",
		big.NewInt(offset), big.NewInt(limit)); err != nil {
		return nil, fmt.Errorf("chain: market condition ids: %w", err)
	}

	raw := out[0].([][32]byte)
	ids := make([]string, 0, len(raw))
	for _, b := range raw {
		ids = append(ids, bytes32Hex(b))
	}
	return ids, nil
}

// MarketInfo reads one market's metadata, position ids and resolution state,
// merged into a domain.Market ready for upsert.
func (e *Executor) MarketInfo(ctx context.Context, conditionID string) (domain.Market, error) {
	cid, err := parseBytes32(conditionID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("chain: market info: %w", err)
	}

	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	opts := &bind.CallOpts{Context: ctx}

	var out []interface{}
	if err := e.factory.Call(opts, &out, "getMarket", cid); err != nil {
		return domain.Market{}, fmt.Errorf("chain: get market %s: %w", conditionID, err)
	}
	var pos []interface{}
	if err := e.factory.Call(opts, &pos, "getPositionIds", cid); err != nil {
		return domain.Market{}, fmt.Errorf("chain: get position ids %s: %w", conditionID, err)
	}

	m := domain.Market{
		ConditionID:     bytes32Hex(cid),
		QuestionID:      bytes32Hex(out[0].([32]byte)),
		OracleAddress:   out[1].(common.Address).Hex(),
		CollateralToken: out[2].(common.Address).Hex(),
		Title:           out[3].(string),
		Description:     out[4].(string),
		Category:        out[5].(string),
		ResolutionTime:  out[6].(*big.Int).Int64(),
		Status:          domain.MarketStatusActive,
		YesTokenID:      pos[0].(*big.Int).String(),
		NoTokenID:       pos[1].(*big.Int).String(),
	}
	if out[7].(bool) {
		yes := int(out[8].(*big.Int).Int64())
		no := int(out[9].(*big.Int).Int64())
		m.Status = domain.MarketStatusResolved
		m.YesPayout = &yes
		m.NoPayout = &no
	}
	return m, nil
}

// PositionBalance reads the wallet's conditional-token balance for one
// position id.
func (e *Executor) PositionBalance(ctx context.Context, wallet string, tokenID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("chain: invalid token id %q", tokenID)
	}

	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	var out []interface{}
	if err := e.tokens.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf",
		common.HexToAddress(wallet), id); err != nil {
		return nil, fmt.Errorf("chain: balance of %s: %w", wallet, err)
	}
	return out[0].(*big.Int), nil
}

// Health checks RPC connectivity and that the endpoint serves the configured
// chain.
func (e *Executor) Health(ctx context.Context) error {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	id, err := e.eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain: rpc unreachable: %w", err)
	}
	if id.Cmp(e.chainID) != 0 {
		return fmt.Errorf("chain: rpc reports chain id %s, configured %s", id, e.chainID)
	}
	return nil
}

// transactOpts clones the cached transactor options with the call context
// attached. Nonce stays nil so each send fetches the pending nonce.
func (e *Executor) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *e.opts
	opts.Context = ctx
	return &opts
}

func (e *Executor) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

func parseBytes32(s string) ([32]byte, error) {
	var b [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return b, fmt.Errorf("invalid bytes32 %q: %w", s, err)
	}
	if len(raw) != 32 {
		return b, fmt.Errorf("invalid bytes32 %q: length %d", s, len(raw))
	}
	copy(b[:], raw)
	return b, nil
}

func bytes32Hex(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}

func decodeHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return raw, nil
}
