package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CaptchaVerifier checks a captcha proof submitted with a request.
type CaptchaVerifier interface {
	Verify(ctx context.Context, proof, remoteIP string) (bool, error)
}

const captchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// CaptchaClient verifies recaptcha proofs against the siteverify API.
type CaptchaClient struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

// NewCaptchaClient creates a captcha client with the given shared secret.
func NewCaptchaClient(secret string) *CaptchaClient {
	return &CaptchaClient{
		secret:    secret,
		verifyURL: captchaVerifyURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Verify checks the proof. A transport failure counts as a failed
// verification, not an error the caller should retry.
func (c *CaptchaClient) Verify(ctx context.Context, proof, remoteIP string) (bool, error) {
	form := url.Values{
		"secret":   {c.secret},
		"response": {proof},
		"remoteip": {remoteIP},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, nil
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, nil
	}
	return result.Success, nil
}
