// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package captcha verifies CAPTCHA responses against a reCAPTCHA-compatible
// siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
)

// DefaultVerifyURL is Google's reCAPTCHA endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var (
	ErrMissingResponse = errors.New("captcha response is missing")
	ErrFailed          = errors.New("captcha verification failed")
)

// Verifier checks a CAPTCHA response submitted by a client.
// It returns nil when the response is accepted.
type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) error
}

// Service calls the remote verification endpoint.
type Service struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

// NewService creates a verifier for the given secret.
func NewService(secret, verifyURL string, client *http.Client) *Service {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{secret: secret, verifyURL: verifyURL, httpClient: client}
}

// NewFromConfig returns a Service, or Disabled when no secret is configured.
func NewFromConfig(cfg *config.CaptchaConfig) Verifier {
	if cfg == nil || cfg.Secret == "" {
		slog.Warn("captcha secret not configured, verification is disabled")
		return Disabled{}
	}
	return NewService(cfg.Secret, cfg.VerifyURL, nil)
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify posts the response to the endpoint. A non-success answer is
// reported as ErrFailed; transport problems are returned as they are.
func (s *Service) Verify(ctx context.Context, response, remoteIP string) error {
	response = strings.TrimSpace(response)
	if response == "" {
		return ErrMissingResponse
	}

	form := url.Values{
		"secret":   {s.secret},
		"response": {response},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("captcha: failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("captcha: request to %s failed: %w", s.verifyURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("captcha: unexpected status %d", resp.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil {
		return fmt.Errorf("captcha: failed to decode response: %w", err)
	}

	if !result.Success {
		slog.Info("captcha_rejected", "ip", remoteIP, "codes", result.ErrorCodes)
		return ErrFailed
	}
	return nil
}

// Disabled accepts every response. Used when no secret is configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) error {
	return nil
}

// Func adapts a function to the Verifier interface.
type Func func(ctx context.Context, response, remoteIP string) error

func (f Func) Verify(ctx context.Context, response, remoteIP string) error {
	return f(ctx, response, remoteIP)
}
