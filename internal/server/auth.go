package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/finsight-core/server/internal/assistant/capability"
	errx "github.com/finsight-core/server/internal/core/error"
)

// IdentityProvider resolves the caller identity from a request. Every turn
// must carry one; there is no anonymous access to financial data.
type IdentityProvider interface {
	Identify(r *http.Request) (string, error)
}

// StaticTokenProvider maps bearer tokens to identities from static
// configuration. Suited for service-to-service use where the upstream
// gateway already authenticated the end user.
type StaticTokenProvider struct {
	tokens map[string]string
}

// NewStaticTokenProvider parses a comma separated list of token:identity
// pairs, e.g. "s3cret:user-1,0ther:user-2".
func NewStaticTokenProvider(pairs string) (*StaticTokenProvider, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(pairs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, identity, ok := strings.Cut(pair, ":")
		token = strings.TrimSpace(token)
		identity = strings.TrimSpace(identity)
		if !ok || token == "" || identity == "" {
			return nil, fmt.Errorf("invalid token pair %q", pair)
		}
		tokens[token] = identity
	}
	return &StaticTokenProvider{tokens: tokens}, nil
}

func (p *StaticTokenProvider) Identify(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errx.Unauthenticated(errors.New("missing bearer token"))
	}
	identity, ok := p.tokens[strings.TrimSpace(token)]
	if !ok {
		return "", errx.Unauthenticated(errors.New("unknown token"))
	}
	return identity, nil
}

// authMiddleware resolves the caller identity and attaches it to the request
// context for the pipeline and its tools.
func authMiddleware(provider IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := provider.Identify(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := capability.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
