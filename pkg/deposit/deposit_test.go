package deposit

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

func newStrategy(t *testing.T) *HDStrategy {
	t.Helper()
	s, err := NewHDStrategy([]byte("test-master-seed"))
	require.NoError(t, err)
	return s
}

func TestHDStrategy_BaseAddress(t *testing.T) {
	s := newStrategy(t)

	a, err := s.Generate(transfer.ChainBase, "tr_1")
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(a.Address))
	assert.Equal(t, common.HexToAddress(a.Address).Hex(), a.Address, "address must be checksummed")
	assert.Empty(t, a.Memo)
	assert.True(t, strings.HasPrefix(a.DerivationPath, "m/44'/60'/0'/0/"))

	again, err := s.Generate(transfer.ChainBase, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, a.Address, again.Address)

	other, err := s.Generate(transfer.ChainBase, "tr_2")
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, other.Address)
}

func TestHDStrategy_SolanaAddress(t *testing.T) {
	s := newStrategy(t)

	id := "tr_0123456789abcdef0123"
	a, err := s.Generate(transfer.ChainSolana, id)
	require.NoError(t, err)
	assert.Equal(t, id[:16], a.Memo)
	assert.GreaterOrEqual(t, len(a.Address), 32)
	assert.LessOrEqual(t, len(a.Address), 44)
	assert.NotContains(t, a.Address, "0")

	base, err := s.Generate(transfer.ChainBase, id)
	require.NoError(t, err)
	assert.NotEqual(t, base.Address, a.Address)
}

func TestHDStrategy_Errors(t *testing.T) {
	_, err := NewHDStrategy(nil)
	require.Error(t, err)

	s := newStrategy(t)
	_, err = s.Generate("tron", "tr_1")
	require.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = s.Generate(transfer.ChainBase, "")
	require.Error(t, err)
}

func TestEncodeBase58(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{in: []byte{}, want: ""},
		{in: []byte{0}, want: "1"},
		{in: []byte{0, 0, 1}, want: "112"},
		{in: []byte("hello world"), want: "StV1DL6CwTryKyV"},
	}
	for _, tt := range tests {
		if got := EncodeBase58(tt.in); got != tt.want {
			t.Fatalf("EncodeBase58(%x) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
