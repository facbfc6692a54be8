package provider

import (
	"context"
	"net/http"

	"github.com/deepmap/oapi-codegen/v2/pkg/securityprovider"
)

// RequestEditorFn mutates an outbound request before it is sent.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

type CustomHeader struct {
	name  string
	value string
}

func NewHeaderProvider(name string, value string) *CustomHeader {
	return &CustomHeader{name: name, value: value}
}

func (h *CustomHeader) Intercept(ctx context.Context, req *http.Request) error {
	req.Header.Set(h.name, h.value)
	return nil
}

// NewBearerTokenProvider returns an editor that sets "Authorization: Bearer <apiKey>".
func NewBearerTokenProvider(apiKey string) (RequestEditorFn, error) {
	bearer, err := securityprovider.NewSecurityProviderBearerToken(apiKey)
	if err != nil {
		return nil, err
	}
	return bearer.Intercept, nil
}

// Apply runs each editor against req in order, stopping at the first error.
func Apply(ctx context.Context, req *http.Request, editors []RequestEditorFn) error {
	for _, edit := range editors {
		if err := edit(ctx, req); err != nil {
			return err
		}
	}
	return nil
}
