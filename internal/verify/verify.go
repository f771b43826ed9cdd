// Package verify wraps the external identity-document verification provider.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/retry"
)

// Result is the provider's verdict on a (national ID, claimed name) pair.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// IdentityVerifier checks a national ID against a claimed name.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, nationalID, claimedName string) (Result, error)
}

const (
	verifyTimeout  = 10 * time.Second
	verifyAttempts = 3
	verifyBackoff  = 500 * time.Millisecond
)

// HTTPVerifier posts to the provider's verification endpoint.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

func NewHTTPVerifier(endpoint string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: verifyTimeout},
	}
}

func (v *HTTPVerifier) VerifyIdentity(ctx context.Context, nationalID, claimedName string) (Result, error) {
	body, err := json.Marshal(map[string]string{
		"national_id":  nationalID,
		"claimed_name": claimedName,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal verify request: %w", err)
	}

	var res Result
	err = retry.Do(ctx, verifyAttempts, verifyBackoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create verify request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := v.client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.Transient(fmt.Errorf("verification provider returned %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("verification provider returned %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return fmt.Errorf("decode verify response: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, apperr.External("identity-verification", err)
	}
	return res, nil
}
