package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"textingest/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Streams lines from an http(s) URL. The body is read as it arrives;
// only the response headers are bounded by a timeout.

// HTTPClient is the client used by the http and https sources.
var HTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
	},
}

type httpSource struct {
	scheme string
}

func init() {
	etl.RegisterSource(&httpSource{scheme: "http"})
	etl.RegisterSource(&httpSource{scheme: "https"})
}

func (s *httpSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{Scheme: s.scheme, Label: "HTTP download"}
}

func (s *httpSource) Open(ctx context.Context, location string) (etl.LineSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain, text/csv, */*")

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return etl.NewLineReader(location, resp.Body), nil
}
