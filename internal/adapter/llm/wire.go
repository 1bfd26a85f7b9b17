package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"secretary-ai/internal/domain"
)

const (
	responseLimit = 8 << 20
	errorBodyLen  = 512
)

// postJSON sends payload as a JSON POST to url and decodes a 200 response
// into out. Any other status is classified by statusError.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, payload, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: http request: %v", domain.ErrProviderError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrProviderError, err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrProviderError, err)
	}
	return nil
}

// statusSentinels maps provider status codes onto the resilience sentinels
// the breaker and the HTTP layer classify on.
var statusSentinels = map[int]error{
	http.StatusTooManyRequests:       domain.ErrRateLimit,
	http.StatusUnauthorized:          domain.ErrAuthInvalid,
	http.StatusForbidden:             domain.ErrAuthInvalid,
	http.StatusRequestEntityTooLarge: domain.ErrContextOverflow,
	http.StatusRequestTimeout:        domain.ErrTimeout,
	http.StatusGatewayTimeout:        domain.ErrTimeout,
}

func statusError(status int, body []byte) error {
	sentinel, ok := statusSentinels[status]
	if !ok {
		sentinel = domain.ErrProviderError
	}
	return fmt.Errorf("%w: status %d: %s", sentinel, status, clip(body, errorBodyLen))
}

// clip returns at most n bytes of b, cut on a rune boundary.
func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	b = b[:n]
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b) + "..."
}
