package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// EIP-712 domain constants for the exchange contract.
const (
	ExchangeName    = "CTFExchange"
	ExchangeVersion = "1"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(address maker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,address signer)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(address maker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,address signer)"),
	)
)

// OrderSigner hashes, verifies and signs exchange orders against the
// CTFExchange EIP-712 domain. The order hash it produces is the canonical
// order identity: the dedupe key in postgres and the order key on-chain.
type OrderSigner struct {
	chainID   int64
	contract  common.Address
	domainSep []byte // cached EIP-712 domain separator hash
}

var (
	_ domain.OrderHasher       = (*OrderSigner)(nil)
	_ domain.SignatureVerifier = (*OrderSigner)(nil)
)

// NewOrderSigner builds the signer for one deployment of the exchange
// contract, identified by chain id and contract address.
func NewOrderSigner(chainID int64, verifyingContract string) *OrderSigner {
	s := &OrderSigner{
		chainID:  chainID,
		contract: common.HexToAddress(verifyingContract),
	}
	s.domainSep = buildDomainSeparator(ExchangeName, ExchangeVersion, chainID, s.contract)
	return s
}

// Info returns the signing domain clients need to produce valid signatures.
func (s *OrderSigner) Info() domain.ExchangeInfo {
	return domain.ExchangeInfo{
		Name:              ExchangeName,
		Version:           ExchangeVersion,
		ChainID:           s.chainID,
		VerifyingContract: s.contract.Hex(),
	}
}

// Hash returns the order's EIP-712 digest as a 0x-prefixed hex string.
func (s *OrderSigner) Hash(o domain.Order) (string, error) {
	digest, err := s.digest(o)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(digest), nil
}

// Verify recovers the signature over the order digest and checks it against
// the order's signing address (the explicit signer, or the maker when the
// signer field is the zero address). Any failure wraps
// domain.ErrInvalidSignature.
func (s *OrderSigner) Verify(o domain.Order) error {
	digest, err := s.digest(o)
	if err != nil {
		return err
	}
	sig, err := decodeSignature(o.Signature)
	if err != nil {
		return fmt.Errorf("crypto/eip712: %w: %v", domain.ErrInvalidSignature, err)
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("crypto/eip712: %w: recover: %v", domain.ErrInvalidSignature, err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	if !strings.EqualFold(recovered.Hex(), o.SigningAddress()) {
		return fmt.Errorf("crypto/eip712: %w: recovered %s, want %s",
			domain.ErrInvalidSignature, recovered.Hex(), o.SigningAddress())
	}
	return nil
}

// Sign produces a 65-byte r||s||v signature over the order digest with the
// given key. Used by the operator's own orders and by tests; end users sign
// client-side.
func (s *OrderSigner) Sign(o domain.Order, key *ecdsa.PrivateKey) (string, error) {
	digest, err := s.digest(o)
	if err != nil {
		return "", err
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("crypto/eip712: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; the contract expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (s *OrderSigner) digest(o domain.Order) ([]byte, error) {
	structHash, err := orderStructHash(o)
	if err != nil {
		return nil, err
	}
	return eip712Hash(s.domainSep, structHash), nil
}

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId, verifyingContract)).
func buildDomainSeparator(name, version string, chainID int64, contract common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(contract.Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// orderStructHash encodes and hashes the nine signed order fields in their
// canonical sequence.
func orderStructHash(o domain.Order) ([]byte, error) {
	tokenID, ok := new(big.Int).SetString(o.TokenID, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/eip712: invalid token id %q", o.TokenID)
	}

	maker := common.HexToAddress(o.Maker)
	signer := common.HexToAddress(o.Signer)

	return ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			common.LeftPadBytes(maker.Bytes(), 32),
			bigIntTo32Bytes(tokenID),
			bigIntTo32Bytes(o.MakerAmount),
			bigIntTo32Bytes(o.TakerAmount),
			bigIntTo32Bytes(big.NewInt(o.Expiration)),
			bigIntTo32Bytes(big.NewInt(o.Nonce)),
			bigIntTo32Bytes(big.NewInt(o.FeeRateBps)),
			bigIntTo32Bytes(big.NewInt(int64(o.Side.Uint8()))),
			common.LeftPadBytes(signer.Bytes(), 32),
		),
	), nil
}

// decodeSignature parses a 0x-prefixed 65-byte hex signature and normalises
// the recovery byte to {0,1} for secp256k1 recovery.
func decodeSignature(sig string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("length %d, want 65", len(raw))
	}
	out := make([]byte, 65)
	copy(out, raw)
	if out[64] >= 27 {
		out[64] -= 27
	}
	return out, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
