// Package rpcx dials the JSON-RPC endpoint the migration talks to.
package rpcx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
)

type Conn struct {
	RPC *rpc.Client
	Eth *ethclient.Client
}

func (c *Conn) Close() {
	if c != nil && c.RPC != nil {
		c.RPC.Close()
	}
}

// NetworkID returns net_version, the key truffle uses for artifact networks.
func (c *Conn) NetworkID(ctx context.Context) (string, error) {
	var id string
	if err := c.RPC.CallContext(ctx, &id, "net_version"); err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read net_version", err)
	}
	return id, nil
}

// Dial connects to endpoint. HTTP endpoints get a retrying transport; ws and
// ipc endpoints are dialed as-is.
func Dial(ctx context.Context, endpoint string, timeout time.Duration, retries int) (*Conn, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, clierr.New(clierr.CodeUsage, "missing rpc endpoint; set --rpc-url or NETWORK_ENDPOINT")
	}
	var (
		client *rpc.Client
		err    error
	)
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		httpClient := &http.Client{Timeout: timeout, Transport: NewRetryTransport(http.DefaultTransport, retries)}
		client, err = rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(httpClient))
	} else {
		client, err = rpc.DialContext(ctx, endpoint)
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return &Conn{RPC: client, Eth: ethclient.NewClient(client)}, nil
}
