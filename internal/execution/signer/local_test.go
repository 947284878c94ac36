package signer

import (
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func TestNewLocalSignerFromEnvHex(t *testing.T) {
	t.Setenv(EnvPrivateKey, testPrivateKey)
	s, err := NewLocalSignerFromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       ptrAddress(common.HexToAddress("0x0000000000000000000000000000000000000001")),
		Value:    big.NewInt(0),
		Gas:      21_000,
		GasPrice: big.NewInt(1),
	})
	if _, err := s.SignTx(common.Big1, tx); err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
}

func TestNewLocalSignerFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(keyFile, []byte(testPrivateKey), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, keyFile)

	s, err := NewLocalSignerFromEnv(KeySourceFile)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
}

func TestNewLocalSignerFromEnvFileAllowsNonStrictPermissions(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(keyFile, []byte(testPrivateKey), 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, keyFile)
	if _, err := NewLocalSignerFromEnv(KeySourceFile); err != nil {
		t.Fatalf("expected non-strict permission key file to load: %v", err)
	}
}

func TestNewLocalSignerFromEnvAutoUsesDefaultKeyFile(t *testing.T) {
	cfgDir := t.TempDir()
	keyDir := filepath.Join(cfgDir, "fraxmig")
	keyFile := filepath.Join(keyDir, "key.hex")
	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(keyFile, []byte(testPrivateKey), 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv("XDG_CONFIG_HOME", cfgDir)
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")

	s, err := NewLocalSignerFromEnv(KeySourceAuto)
	if err != nil {
		t.Fatalf("expected auto key-source to use default key path: %v", err)
	}
	if s.Address() == (common.Address{}) || s.Origin() != KeySourceFile {
		t.Fatalf("unexpected signer: %s from %q", s.Address().Hex(), s.Origin())
	}
}

func TestKeyInputsOnlyKeepsSelectedSource(t *testing.T) {
	all := KeyInputs{Hex: testPrivateKey, File: "/tmp/key.hex", Keystore: "/tmp/ks.json", Password: "pw", PasswordFile: "/tmp/pw"}

	env, err := all.Only(KeySourceEnv)
	if err != nil || env != (KeyInputs{Hex: testPrivateKey}) {
		t.Fatalf("unexpected env inputs: %+v %v", env, err)
	}
	file, err := all.Only(KeySourceFile)
	if err != nil || file != (KeyInputs{File: "/tmp/key.hex"}) {
		t.Fatalf("unexpected file inputs: %+v %v", file, err)
	}
	ks, err := all.Only(" Keystore ")
	if err != nil || ks.Hex != "" || ks.File != "" || ks.Keystore == "" || ks.Password != "pw" {
		t.Fatalf("unexpected keystore inputs: %+v %v", ks, err)
	}
	if _, err := all.Only("ledger"); err == nil {
		t.Fatal("expected unsupported key source error")
	}
}

func TestNewLocalSignerPrefersHexOverFile(t *testing.T) {
	s, err := NewLocalSigner(KeyInputs{Hex: "0x" + testPrivateKey, File: "/tmp/does-not-exist"})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if s.Origin() != KeySourceEnv {
		t.Fatalf("expected env origin, got %q", s.Origin())
	}
}

func TestFileSourceIgnoresHexKey(t *testing.T) {
	t.Setenv(EnvPrivateKey, testPrivateKey)
	t.Setenv(EnvPrivateKeyFile, "/tmp/does-not-exist")
	if _, err := NewLocalSignerFromEnv(KeySourceFile); err == nil || !strings.Contains(err.Error(), "read private key file") {
		t.Fatalf("expected file read error, got %v", err)
	}
}

func TestDefaultKeyPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/fraxmig-config-home")
	got := defaultKeyPath()
	want := "/tmp/fraxmig-config-home/fraxmig/key.hex"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMissingKeyErrorIncludesPathHint(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")
	t.Setenv(EnvKeystorePassword, "")
	t.Setenv(EnvKeystorePasswordFile, "")

	_, err := NewLocalSignerFromEnv(KeySourceAuto)
	if err == nil {
		t.Fatal("expected missing key error")
	}
	msg := err.Error()
	if !strings.Contains(msg, defaultKeyFileHint) {
		t.Fatalf("expected missing key message to include %q, got: %s", defaultKeyFileHint, msg)
	}
	if !strings.Contains(msg, EnvPrivateKey) {
		t.Fatalf("expected missing key message to include %s, got: %s", EnvPrivateKey, msg)
	}
}

func TestNewLocalSignerFromKeystore(t *testing.T) {
	pk, err := crypto.HexToECDSA(testPrivateKey)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	key := &keystore.Key{Id: uuid.New(), Address: crypto.PubkeyToAddress(pk.PublicKey), PrivateKey: pk}
	blob, err := keystore.EncryptKey(key, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		t.Fatalf("encrypt key: %v", err)
	}
	dir := t.TempDir()
	keystorePath := filepath.Join(dir, "operator.json")
	passwordPath := filepath.Join(dir, "password.txt")
	if err := os.WriteFile(keystorePath, blob, 0o600); err != nil {
		t.Fatalf("write keystore: %v", err)
	}
	if err := os.WriteFile(passwordPath, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatalf("write password: %v", err)
	}

	s, err := NewLocalSigner(KeyInputs{Keystore: keystorePath, PasswordFile: passwordPath})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if s.Origin() != KeySourceKeystore {
		t.Fatalf("expected keystore origin, got %q", s.Origin())
	}
	if s.Address() != key.Address {
		t.Fatalf("expected %s, got %s", key.Address.Hex(), s.Address().Hex())
	}
}

func TestKeystoreWithoutPasswordFailsWithoutTerminal(t *testing.T) {
	dir := t.TempDir()
	keystorePath := filepath.Join(dir, "operator.json")
	if err := os.WriteFile(keystorePath, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write keystore: %v", err)
	}
	notTTY, err := os.Open(keystorePath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = notTTY.Close() })

	_, err = NewLocalSigner(KeyInputs{
		Keystore: keystorePath,
		Prompt:   &PasswordSource{in: notTTY, out: io.Discard},
	})
	if err == nil {
		t.Fatal("expected missing password error")
	}
	if !strings.Contains(err.Error(), EnvKeystorePassword) {
		t.Fatalf("expected env hint in error, got %v", err)
	}
}

func ptrAddress(v common.Address) *common.Address { return &v }
