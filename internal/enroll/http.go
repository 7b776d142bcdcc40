package enroll

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type reloadResponse struct {
	Status  string   `json:"status"`
	Users   []string `json:"users"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
}

// reloadServer asks a running server to swap in the freshly written registry
// and returns the names it now serves.
func reloadServer(ctx context.Context, baseURL string, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/registry/reload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReload, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReload, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReload, err)
	}
	var out reloadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: status %d: %w", ErrReload, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrReload, resp.StatusCode, out.Message)
	}
	return out.Users, nil
}
