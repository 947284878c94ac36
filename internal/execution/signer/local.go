package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey           = "FRAXMIG_PRIVATE_KEY"
	EnvPrivateKeyFile       = "FRAXMIG_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "FRAXMIG_KEYSTORE_PATH"
	EnvKeystorePassword     = "FRAXMIG_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "FRAXMIG_KEYSTORE_PASSWORD_FILE"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultKeyFile     = "fraxmig/key.hex"
	defaultKeyFileHint = "~/.config/fraxmig/key.hex"
)

// LocalSigner holds the operator key in memory.
type LocalSigner struct {
	key    *ecdsa.PrivateKey
	addr   common.Address
	origin string
}

func (s *LocalSigner) Address() common.Address { return s.addr }

// Origin names the key source the signer was loaded from.
func (s *LocalSigner) Origin() string { return s.origin }

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// KeyInputs lists every place an operator key may come from. NewLocalSigner
// tries them in field order.
type KeyInputs struct {
	Hex          string
	File         string
	Keystore     string
	Password     string
	PasswordFile string
	// Prompt supplies the keystore password when neither Password nor
	// PasswordFile does.
	Prompt *PasswordSource
}

// InputsFromEnv reads the FRAXMIG_* key variables. The default key file is
// used when it exists and no file is named.
func InputsFromEnv() KeyInputs {
	in := KeyInputs{
		Hex:          strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		File:         strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		Keystore:     strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		Password:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		PasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
		Prompt:       NewPasswordSource(),
	}
	if in.File == "" {
		in.File = existingFile(defaultKeyPath())
	}
	return in
}

// Only keeps the inputs that belong to source.
func (in KeyInputs) Only(source string) (KeyInputs, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", KeySourceAuto:
		return in, nil
	case KeySourceEnv:
		return KeyInputs{Hex: in.Hex}, nil
	case KeySourceFile:
		return KeyInputs{File: in.File}, nil
	case KeySourceKeystore:
		in.Hex, in.File = "", ""
		return in, nil
	default:
		return KeyInputs{}, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
}

// NewLocalSignerFromEnv loads the operator key from the environment,
// restricted to source.
func NewLocalSignerFromEnv(source string) (*LocalSigner, error) {
	in, err := InputsFromEnv().Only(source)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(in)
}

func NewLocalSigner(in KeyInputs) (*LocalSigner, error) {
	var (
		key    *ecdsa.PrivateKey
		origin string
		err    error
	)
	switch {
	case in.Hex != "":
		key, err = parseHexKey(in.Hex)
		origin = KeySourceEnv
	case in.File != "":
		key, err = readKeyFile(in.File)
		origin = KeySourceFile
	case in.Keystore != "":
		key, err = unlockKeystore(in)
		origin = KeySourceKeystore
	default:
		return nil, fmt.Errorf("missing signing key: set %s, %s or %s, or write the key to %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, defaultKeyFileHint)
	}
	if err != nil {
		return nil, err
	}
	return &LocalSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey), origin: origin}, nil
}

func readKeyFile(path string) (*ecdsa.PrivateKey, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}
	return parseHexKey(string(buf))
}

func unlockKeystore(in KeyInputs) (*ecdsa.PrivateKey, error) {
	password := in.Password
	if password == "" && in.PasswordFile != "" {
		buf, err := os.ReadFile(in.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read keystore password file: %w", err)
		}
		password = strings.TrimSpace(string(buf))
	}
	if password == "" && in.Prompt != nil {
		prompted, err := in.Prompt.Get()
		if err != nil {
			return nil, err
		}
		password = prompted
	}
	if password == "" {
		return nil, fmt.Errorf("keystore password is required: set %s or %s", EnvKeystorePassword, EnvKeystorePasswordFile)
	}
	blob, err := os.ReadFile(in.Keystore)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(blob, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func defaultKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultKeyFile)
}

func existingFile(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
