package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/frax-migrate/internal/artifacts"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/registry"
)

// LocalMode is the run mode that resolves from local build artifacts.
const LocalMode = "ganache"

// Handle is a resolved, already-deployed contract instance.
type Handle struct {
	Name     registry.Name  `json:"name"`
	Artifact string         `json:"artifact"`
	Address  common.Address `json:"address"`
}

type Resolver interface {
	Resolve(ctx context.Context) (Set, error)
}

// DeploymentSource returns the most recent deployment of an artifact.
type DeploymentSource interface {
	Latest(ctx context.Context, artifact string) (common.Address, error)
}

type LocalResolver struct {
	source DeploymentSource
}

func NewLocalResolver(source DeploymentSource) *LocalResolver {
	return &LocalResolver{source: source}
}

func (r *LocalResolver) Resolve(ctx context.Context) (Set, error) {
	if r == nil || r.source == nil {
		return Set{}, clierr.New(clierr.CodeInternal, "missing deployment source")
	}
	set := Set{}
	for _, spec := range registry.Catalog() {
		if err := ctx.Err(); err != nil {
			return Set{}, clierr.Wrap(clierr.CodeUnavailable, "resolve contracts", err)
		}
		addr, err := r.source.Latest(ctx, spec.LocalArtifact)
		if err != nil {
			code := clierr.CodeInternal
			if deploymentError(err) {
				code = clierr.CodeDeployment
			}
			return Set{}, clierr.Wrap(code, fmt.Sprintf("resolve %s", spec.Name), err)
		}
		set.add(Handle{Name: spec.Name, Artifact: spec.LocalArtifact, Address: addr})
	}
	return set, nil
}

func deploymentError(err error) bool {
	return errors.Is(err, artifacts.ErrArtifactNotFound) ||
		errors.Is(err, artifacts.ErrNotDeployed) ||
		errors.Is(err, artifacts.ErrMalformed)
}

type RegistryResolver struct {
	book    registry.Book
	network string
}

func NewRegistryResolver(book registry.Book, network string) *RegistryResolver {
	return &RegistryResolver{book: book, network: network}
}

func (r *RegistryResolver) Resolve(ctx context.Context) (Set, error) {
	network, err := r.book.Network(r.network)
	if err != nil {
		return Set{}, clierr.Wrap(clierr.CodeRegistry, "resolve contracts", err)
	}
	set := Set{}
	for _, spec := range registry.Catalog() {
		if err := ctx.Err(); err != nil {
			return Set{}, clierr.Wrap(clierr.CodeUnavailable, "resolve contracts", err)
		}
		addr, err := network.Address(spec.Path)
		if err != nil {
			return Set{}, clierr.Wrap(clierr.CodeRegistry, fmt.Sprintf("resolve %s on %s", spec.Name, r.network), err)
		}
		set.add(Handle{Name: spec.Name, Artifact: spec.Artifact, Address: addr})
	}
	return set, nil
}

// CodeReader is satisfied by *ethclient.Client.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// VerifyCode fails when a resolved address carries no bytecode.
func VerifyCode(ctx context.Context, reader CodeReader, set Set) error {
	for _, h := range set.All() {
		code, err := reader.CodeAt(ctx, h.Address, nil)
		if err != nil {
			return clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read code for %s", h.Name), err)
		}
		if len(code) == 0 {
			return clierr.New(clierr.CodeDeployment, fmt.Sprintf("no contract code at %s for %s", h.Address.Hex(), h.Name))
		}
	}
	return nil
}
