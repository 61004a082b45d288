package keys

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestCipher_RoundTrip(t *testing.T) {
	key, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey() error = %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	enc1, err := c.EncryptString("ET-1234567")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	enc2, _ := c.EncryptString("ET-1234567")
	if enc1 == enc2 {
		t.Fatal("expected random nonces to produce different ciphertexts")
	}

	got, err := c.DecryptString(enc1)
	if err != nil {
		t.Fatalf("DecryptString() error = %v", err)
	}
	if got != "ET-1234567" {
		t.Fatalf("DecryptString() = %q", got)
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	k1, _ := GenerateMasterKey()
	k2, _ := GenerateMasterKey()
	c1, _ := NewCipher(k1)
	c2, _ := NewCipher(k2)

	enc, err := c1.EncryptString("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.DecryptString(enc); err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
	if _, err := c1.DecryptString("!!notbase64"); err == nil {
		t.Fatal("expected invalid base64 to fail")
	}
}

func TestNewCipher_RejectsShortKey(t *testing.T) {
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestMasterKeyFromBase64(t *testing.T) {
	key, _ := GenerateMasterKey()
	got, err := MasterKeyFromBase64(base64.StdEncoding.EncodeToString(key))
	if err != nil || !bytes.Equal(got, key) {
		t.Fatalf("MasterKeyFromBase64() = %x, %v", got, err)
	}
	if _, err := MasterKeyFromBase64(base64.StdEncoding.EncodeToString([]byte("too short"))); err == nil {
		t.Fatal("expected length error")
	}
}

func TestDeriveSecp256k1_Deterministic(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")

	a, err := DeriveSecp256k1(master, "deposit:base:tr_1")
	if err != nil {
		t.Fatalf("DeriveSecp256k1() error = %v", err)
	}
	b, _ := DeriveSecp256k1(master, "deposit:base:tr_1")
	c, _ := DeriveSecp256k1(master, "deposit:base:tr_2")

	addrA := crypto.PubkeyToAddress(a.PublicKey)
	if addrA != crypto.PubkeyToAddress(b.PublicKey) {
		t.Fatal("same info must derive the same key")
	}
	if addrA == crypto.PubkeyToAddress(c.PublicKey) {
		t.Fatal("different info must derive different keys")
	}
}

func TestDeriveSeed_EmptyMaster(t *testing.T) {
	if _, err := DeriveSeed(nil, "x", 32); err == nil {
		t.Fatal("expected error for empty master")
	}
}
