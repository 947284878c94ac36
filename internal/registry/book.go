package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownNetwork = errors.New("network not present in address registry")
	ErrMissingEntry   = errors.New("address registry entry missing")
	ErrInvalidAddress = errors.New("address registry entry is not a valid address")
)

// Book is the static address registry: network -> category -> contract -> address.
// Some categories hold a single address directly (e.g. "weth", "governance").
type Book map[string]Network

type Network map[string]Entry

// Entry is either a bare address or a map of contract keys to addresses.
type Entry struct {
	Address  string
	Children map[string]string
}

func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&e.Address)
	case yaml.MappingNode:
		return node.Decode(&e.Children)
	default:
		return fmt.Errorf("line %d: registry entry must be an address or a mapping", node.Line)
	}
}

func (e *Entry) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case string:
		e.Address = t
		return nil
	case map[string]any:
		e.Children = make(map[string]string, len(t))
		for k, raw := range t {
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("registry entry %q must be a string address", k)
			}
			e.Children[k] = s
		}
		return nil
	default:
		return fmt.Errorf("registry entry must be an address or a table, got %T", v)
	}
}

// LoadBook reads a registry file. TOML is chosen by extension; everything
// else (.yaml, .yml, .json) goes through the YAML decoder.
func LoadBook(path string) (Book, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read address registry: %w", err)
	}
	return ParseBook(buf, filepath.Ext(path))
}

func ParseBook(buf []byte, ext string) (Book, error) {
	var book Book
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		if _, err := toml.Decode(string(buf), &book); err != nil {
			return nil, fmt.Errorf("parse address registry toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(buf, &book); err != nil {
			return nil, fmt.Errorf("parse address registry: %w", err)
		}
	}
	if book == nil {
		book = Book{}
	}
	return book, nil
}

func (b Book) Network(name string) (Network, error) {
	network, ok := b[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownNetwork, name, strings.Join(b.Networks(), ","))
	}
	return network, nil
}

// Networks lists registry keys in sorted order.
func (b Book) Networks() []string {
	out := make([]string, 0, len(b))
	for name := range b {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Address resolves a dotted path such as "oracles.FRAX_WETH" or "weth".
func (n Network) Address(path string) (common.Address, error) {
	category, key, nested := strings.Cut(path, ".")
	entry, ok := n[category]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingEntry, path)
	}
	raw := entry.Address
	if nested {
		raw, ok = entry.Children[key]
		if !ok {
			return common.Address{}, fmt.Errorf("%w: %s", ErrMissingEntry, path)
		}
	} else if raw == "" {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingEntry, path)
	}
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s=%q", ErrInvalidAddress, path, raw)
	}
	return common.HexToAddress(raw), nil
}
