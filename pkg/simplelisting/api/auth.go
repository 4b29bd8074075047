package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *simplelisting.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated principal, or nil for anonymous
// requests.
func PrincipalFrom(ctx context.Context) *simplelisting.Principal {
	p, _ := ctx.Value(principalKey{}).(*simplelisting.Principal)
	return p
}

// Authenticator verifies HS256 bearer tokens carrying "id" (or "sub") and
// "roles" claims.
type Authenticator struct {
	ja     *jwtauth.JWTAuth
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator for tokens signed with secret.
func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{ja: jwtauth.New("HS256", []byte(secret), nil), logger: logger}
}

// Token issues a token for id with roles.
func (a *Authenticator) Token(id string, roles ...string) (string, error) {
	claims := map[string]interface{}{"id": id, "roles": roles}
	_, token, err := a.ja.Encode(claims)
	return token, err
}

// Middleware verifies the request token, if any, and stores the principal in
// the request context. Requests without a token continue anonymously; an
// invalid token is rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return jwtauth.Verifier(a.ja)(a.principals(next))
}

func (a *Authenticator) principals(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if errors.Is(err, jwtauth.ErrNoTokenFound) || (err == nil && token == nil) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			a.reject(w, r, err)
			return
		}
		p := principalFromClaims(claims)
		if p.ID == "" {
			a.reject(w, r, errors.New("token has no subject"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.DebugContext(r.Context(), "invalid credential", "err", err)
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: "unauthorized", Message: "Invalid or expired token"}})
}

func principalFromClaims(claims map[string]interface{}) *simplelisting.Principal {
	p := &simplelisting.Principal{}
	for _, key := range []string{"id", "sub"} {
		if id, ok := claims[key].(string); ok && id != "" {
			p.ID = id
			break
		}
	}
	switch roles := claims["roles"].(type) {
	case []interface{}:
		for _, role := range roles {
			if s, ok := role.(string); ok && s != "" {
				p.Roles = append(p.Roles, s)
			}
		}
	case []string:
		p.Roles = append(p.Roles, roles...)
	case string:
		for _, s := range strings.Split(roles, ",") {
			if s = strings.TrimSpace(s); s != "" {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	return p
}
