// Package artifacts reads truffle-style build artifacts to find the most
// recent local deployment of a contract.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrArtifactNotFound = errors.New("build artifact not found")
	ErrNotDeployed      = errors.New("contract not deployed on network")
	ErrMalformed        = errors.New("malformed build artifact")
)

// Artifact is the subset of a build artifact the resolver needs.
type Artifact struct {
	ContractName string                `json:"contractName"`
	Networks     map[string]Deployment `json:"networks"`
	UpdatedAt    string                `json:"updatedAt,omitempty"`
}

type Deployment struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// Dir resolves deployments from <root>/<Artifact>.json for one network id.
// The deployer overwrites networks[id] on every deploy, so the entry is always
// the latest instance.
type Dir struct {
	root      string
	networkID string
}

func NewDir(root, networkID string) *Dir {
	return &Dir{root: strings.TrimSpace(root), networkID: strings.TrimSpace(networkID)}
}

func (d *Dir) NetworkID() string { return d.networkID }

func (d *Dir) Read(name string) (Artifact, error) {
	path := filepath.Join(d.root, name+".json")
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return Artifact{}, fmt.Errorf("read artifact %s: %w", name, err)
	}
	var artifact Artifact
	if err := json.Unmarshal(buf, &artifact); err != nil {
		return Artifact{}, fmt.Errorf("%w: decode %s: %w", ErrMalformed, path, err)
	}
	return artifact, nil
}

// Latest returns the address of the most recent deployment of name.
func (d *Dir) Latest(_ context.Context, name string) (common.Address, error) {
	artifact, err := d.Read(name)
	if err != nil {
		return common.Address{}, err
	}
	deployment, ok := artifact.Networks[d.networkID]
	if !ok || strings.TrimSpace(deployment.Address) == "" {
		return common.Address{}, fmt.Errorf("%w: %s on network %s", ErrNotDeployed, name, d.networkID)
	}
	if !common.IsHexAddress(deployment.Address) {
		return common.Address{}, fmt.Errorf("%w: %s has invalid address %q on network %s", ErrMalformed, name, deployment.Address, d.networkID)
	}
	return common.HexToAddress(deployment.Address), nil
}
