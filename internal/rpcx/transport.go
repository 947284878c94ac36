package rpcx

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// RetryTransport retries JSON-RPC POSTs that failed on the network or came
// back 429 or 5xx. Transaction submissions go out once: a replay after a lost
// response comes back as "already known" for a transaction that was accepted.
type RetryTransport struct {
	base    http.RoundTripper
	retries int
	backoff func(attempt int) time.Duration
}

func NewRetryTransport(base http.RoundTripper, retries int) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if retries < 0 {
		retries = 0
	}
	return &RetryTransport{base: base, retries: retries, backoff: backoff}
}

var nonIdempotentMethods = [][]byte{
	[]byte(`"eth_sendTransaction"`),
	[]byte(`"eth_sendRawTransaction"`),
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		buf, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffer rpc request: %w", err)
		}
		body = buf
	}
	retries := t.retries
	for _, method := range nonIdempotentMethods {
		if bytes.Contains(body, method) {
			retries = 0
		}
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(t.backoff(attempt)):
			}
		}
		clone := req.Clone(req.Context())
		if body != nil {
			clone.Body = io.NopCloser(bytes.NewReader(body))
			clone.ContentLength = int64(len(body))
		}
		resp, err = t.base.RoundTrip(clone)
		if err != nil {
			if attempt < retries {
				continue
			}
			return nil, err
		}
		if !retryableStatus(resp.StatusCode) || attempt == retries {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	return resp, err
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
