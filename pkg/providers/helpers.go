package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/httpclient"
)

// ProfileURL returns the public profile page for an Instagram handle.
func ProfileURL(handle string) string {
	return "https://www.instagram.com/" + strings.TrimSpace(handle) + "/"
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// call sends req and maps transport failures and non-2xx statuses to domain errors.
func call(ctx context.Context, client httpclient.Client, providerID, op string, req httpclient.Request) ([]byte, error) {
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, callError(ctx, providerID, op, err)
	}
	if resp == nil {
		return nil, domain.TransientProviderError(fmt.Sprintf("%s %s: empty response", providerID, op), nil)
	}

	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		return nil, statusError(providerID, op, code, resp.Body())
	}
	return resp.Body(), nil
}

func callError(ctx context.Context, providerID, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Timeout(fmt.Sprintf("%s %s timed out", providerID, op), err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.ProviderError(fmt.Sprintf("%s %s cancelled", providerID, op), err)
	}
	return domain.TransientProviderError(fmt.Sprintf("%s %s request failed", providerID, op), err)
}

func statusError(providerID, op string, code int, body []byte) error {
	msg := fmt.Sprintf("%s %s returned status %d body: %s", providerID, op, code, responseSnippet(body))
	if code == http.StatusTooManyRequests || code >= 500 {
		return domain.TransientProviderError(msg, nil)
	}
	return domain.ProviderError(msg, nil)
}

func decodeJSON(providerID, op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return domain.ProviderError(fmt.Sprintf("%s %s: decode response", providerID, op), err)
	}
	return nil
}

// decodeRecords accepts either a JSON array of objects or a single object.
// Non-object array elements are skipped.
func decodeRecords(providerID, op string, body []byte) ([]domain.RawRecord, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return []domain.RawRecord{}, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var single domain.RawRecord
		if err := decodeJSON(providerID, op, body, &single); err != nil {
			return nil, err
		}
		return []domain.RawRecord{single}, nil
	}

	var items []any
	if err := decodeJSON(providerID, op, body, &items); err != nil {
		return nil, err
	}
	out := make([]domain.RawRecord, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, domain.RawRecord(m))
		}
	}
	return out, nil
}
