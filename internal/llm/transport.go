package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// transport performs one HTTP POST per call against the inference
// server. Keep-alives are disabled so every exchange uses a fresh
// connection and the server-side Connection: close contract holds;
// calls are infrequent relative to multi-second generation latency, so
// reuse buys nothing here.
type transport struct {
	base *http.Transport
}

func newTransport() *transport {
	return &transport{
		base: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: true,
		},
	}
}

// postJSON sends body to rawURL and returns the response body. timeout
// bounds the whole exchange, including dialing and reading the body.
// Every failure is a *TransportError naming the target host.
func (t *transport) postJSON(ctx context.Context, rawURL string, body []byte, timeout time.Duration) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{Host: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}
	if u.Host == "" {
		return nil, &TransportError{Host: rawURL, Err: errors.New("invalid url: missing host")}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Host: u.Host, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Close = true

	client := &http.Client{Transport: t.base}
	res, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Host: u.Host, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Host: u.Host, Err: fmt.Errorf("read response: %w", err)}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &TransportError{
			Host: u.Host,
			Err:  fmt.Errorf("http status %d: %s", res.StatusCode, truncate(data, 4<<10)),
		}
	}

	return data, nil
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
