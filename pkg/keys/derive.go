package keys

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// DeriveSeed deterministically expands master into n bytes bound to info using HKDF-SHA256.
func DeriveSeed(master []byte, info string, n int) ([]byte, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("master seed must not be empty")
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to derive seed: %w", err)
	}
	return out, nil
}

// DeriveSecp256k1 derives a secp256k1 private key from master and info.
// The rare seed outside the curve order is re-derived with a counter suffix.
func DeriveSecp256k1(master []byte, info string) (*ecdsa.PrivateKey, error) {
	for i := 0; i < 8; i++ {
		label := info
		if i > 0 {
			label = fmt.Sprintf("%s#%d", info, i)
		}
		seed, err := DeriveSeed(master, label, 32)
		if err != nil {
			return nil, err
		}
		if key, err := crypto.ToECDSA(seed); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("failed to derive a valid secp256k1 key for %q", info)
}
