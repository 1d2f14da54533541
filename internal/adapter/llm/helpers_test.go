package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"scribe-ai/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusInternalServerError, domain.ErrProviderError},
		{http.StatusBadGateway, domain.ErrProviderError},
		{http.StatusBadRequest, domain.ErrProviderError},
	}

	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte("detail"))
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
		if !strings.Contains(err.Error(), "detail") {
			t.Errorf("status %d: error should carry body detail: %v", tt.status, err)
		}
	}
}

func TestMapHTTPErrorIsProviderFailure(t *testing.T) {
	for _, status := range []int{429, 401, 403, 413, 500, 503} {
		err := mapHTTPError(status, nil)
		if !domain.IsProviderFailure(err) {
			t.Errorf("status %d should classify as provider failure: %v", status, err)
		}
	}
}

func TestDoJSONRequestTransportError(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("dial refused")
		}),
	}

	_, err := doJSONRequest(context.Background(), client, "http://example.invalid/x", []byte("{}"), nil)
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("transport error should map to ErrProviderError, got %v", err)
	}
}

func TestDoJSONRequestBodyLimit(t *testing.T) {
	huge := strings.Repeat("a", maxResponseBody+100)
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(huge)),
				Header:     make(http.Header),
			}, nil
		}),
	}

	body, err := doJSONRequest(context.Background(), client, "http://example.invalid/x", []byte("{}"), nil)
	if err != nil {
		t.Fatalf("doJSONRequest: %v", err)
	}
	if len(body) != maxResponseBody {
		t.Errorf("body length = %d, want limit %d", len(body), maxResponseBody)
	}
}

func TestDoJSONRequestSetsHeaders(t *testing.T) {
	var gotContentType, gotCustom string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			gotContentType = r.Header.Get("Content-Type")
			gotCustom = r.Header.Get("x-api-key")
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("{}")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	_, err := doJSONRequest(context.Background(), client, "http://example.invalid/x", []byte("{}"),
		map[string]string{"x-api-key": "k"})
	if err != nil {
		t.Fatalf("doJSONRequest: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotCustom != "k" {
		t.Errorf("x-api-key = %q", gotCustom)
	}
}
