// Package fetcher performs outbound provider calls and decodes water-level
// readings from provider payloads.
package fetcher

import (
	"context"
	"net/http"
)

// Response is a provider response with its body already read and bounded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transform normalizes a raw response before it is parsed.
type Transform func(Response) Response

// Identity returns the response unchanged.
func Identity(r Response) Response { return r }

// Request describes a single outbound GET.
type Request struct {
	URL              string
	MaxResponseBytes int64
	Transform        Transform
}

// Doer performs one request. Implementations do not retry.
type Doer interface {
	Do(ctx context.Context, req Request) (Response, error)
}
