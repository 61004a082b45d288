// Package deposit allocates per-transfer on-chain deposit addresses.
package deposit

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/remittance-middleware/pkg/keys"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

// solanaMemoLength is the number of transfer id characters used as the solana memo.
const solanaMemoLength = 16

// ErrUnsupportedChain is returned for chains without a derivation scheme.
var ErrUnsupportedChain = errors.New("unsupported chain")

// Address is a generated deposit address.
type Address struct {
	Address        string
	Memo           string
	DerivationPath string
}

// Strategy generates the deposit address for a transfer.
type Strategy interface {
	Generate(chain transfer.Chain, transferID string) (*Address, error)
}

// HDStrategy derives addresses from a master seed with HKDF, one key per (chain, transfer).
type HDStrategy struct {
	masterSeed []byte
}

// NewHDStrategy returns an HDStrategy for masterSeed.
func NewHDStrategy(masterSeed []byte) (*HDStrategy, error) {
	if len(masterSeed) == 0 {
		return nil, fmt.Errorf("deposit master seed must not be empty")
	}
	seed := make([]byte, len(masterSeed))
	copy(seed, masterSeed)
	return &HDStrategy{masterSeed: seed}, nil
}

// Generate returns the deterministic address of transferID on chain.
func (s *HDStrategy) Generate(chain transfer.Chain, transferID string) (*Address, error) {
	if transferID == "" {
		return nil, fmt.Errorf("transfer id is required")
	}
	info := "deposit:" + string(chain) + ":" + transferID

	switch chain {
	case transfer.ChainBase:
		return s.evmAddress(info)
	case transfer.ChainSolana:
		return s.solanaAddress(info, transferID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
}

func (s *HDStrategy) evmAddress(info string) (*Address, error) {
	key, err := keys.DeriveSecp256k1(s.masterSeed, info)
	if err != nil {
		return nil, err
	}
	idx, err := s.index(info)
	if err != nil {
		return nil, err
	}
	return &Address{
		Address:        crypto.PubkeyToAddress(key.PublicKey).Hex(),
		DerivationPath: fmt.Sprintf("m/44'/60'/0'/0/%d", idx),
	}, nil
}

func (s *HDStrategy) solanaAddress(info, transferID string) (*Address, error) {
	seed, err := keys.DeriveSeed(s.masterSeed, info, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	idx, err := s.index(info)
	if err != nil {
		return nil, err
	}

	memo := transferID
	if len(memo) > solanaMemoLength {
		memo = memo[:solanaMemoLength]
	}
	return &Address{
		Address:        EncodeBase58(pub),
		Memo:           memo,
		DerivationPath: fmt.Sprintf("m/44'/501'/%d'/0'", idx),
	}, nil
}

// index is a non-hardened child index derived from info, recorded for operators.
func (s *HDStrategy) index(info string) (uint32, error) {
	raw, err := keys.DeriveSeed(s.masterSeed, info+":index", 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw) & 0x7fffffff, nil
}
