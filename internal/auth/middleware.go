package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/common"
)

// AdminKeyHeader carries the shared admin key.
const AdminKeyHeader = "X-Admin-Key"

// RoleAdmin is the role claim required on admin bearer tokens.
const RoleAdmin = "admin"

// RoleParty is the role claim on tokens issued to a store or freelancer.
// The token subject is the party id.
const RoleParty = "party"

var (
	errNoCredentials = errors.New("auth: credentials missing")
	errInvalidKey    = errors.New("auth: admin key rejected")
)

// AdminGuard protects admin routes. A request passes with an admin key
// matching KeyHash (argon2id) or an HS256 bearer token signed with Secret
// whose role claim is admin. With neither configured every request is
// refused.
type AdminGuard struct {
	KeyHash string
	Secret  []byte
	Policy  TokenPolicy
	Logger  zerolog.Logger
	Now     func() time.Time
}

// NewAdminGuard builds a guard with the admin role and HS256 enforced.
func NewAdminGuard(keyHash string, secret []byte, logger zerolog.Logger) *AdminGuard {
	return &AdminGuard{
		KeyHash: strings.TrimSpace(keyHash),
		Secret:  secret,
		Policy: TokenPolicy{
			Skew: 30 * time.Second,
			Role: RoleAdmin,
		},
		Logger: logger,
	}
}

// Require enforces admin credentials before executing the next handler.
func (g *AdminGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := g.Authorize(r)
		if err != nil {
			if !errors.Is(err, errNoCredentials) {
				g.Logger.Warn().Err(err).Str("ip", common.ClientIP(r)).Str("path", r.URL.Path).Msg("admin_auth_rejected")
			}
			if appErr, ok := common.AsAppError(err); ok {
				common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "admin credentials required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithActor(r.Context(), subject)))
	})
}

// Authorize returns the admin subject for r.
func (g *AdminGuard) Authorize(r *http.Request) (string, error) {
	if g == nil {
		return "", errNoCredentials
	}
	if key := strings.TrimSpace(r.Header.Get(AdminKeyHeader)); key != "" {
		return g.checkKey(key)
	}
	if token := bearerToken(r); token != "" {
		return g.ParseToken(token)
	}
	return "", errNoCredentials
}

func (g *AdminGuard) checkKey(key string) (string, error) {
	if g.KeyHash == "" {
		return "", common.NewAppError("UNAUTHORIZED", "admin key not accepted", http.StatusUnauthorized, errInvalidKey)
	}
	ok, err := argon2id.ComparePasswordAndHash(key, g.KeyHash)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "admin key not accepted", http.StatusUnauthorized, err)
	}
	if !ok {
		return "", common.NewAppError("FORBIDDEN", "invalid admin key", http.StatusForbidden, errInvalidKey)
	}
	return "admin-key", nil
}

// ParseToken verifies an admin bearer token and returns its subject.
func (g *AdminGuard) ParseToken(token string) (string, error) {
	if len(g.Secret) == 0 {
		return "", common.NewAppError("UNAUTHORIZED", "bearer tokens not accepted", http.StatusUnauthorized, nil)
	}
	parsed, err := g.Policy.Verify(g.Secret, token, g.now())
	switch {
	case errors.Is(err, ErrTokenRole):
		return "", common.NewAppError("FORBIDDEN", "admin role required", http.StatusForbidden, err)
	case err != nil:
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if subject := parsed.Subject(); subject != "" {
		return subject, nil
	}
	return RoleAdmin, nil
}

// IssueToken signs an admin token for subject valid for ttl.
func (g *AdminGuard) IssueToken(subject string, ttl time.Duration) (string, error) {
	return g.Policy.Issue(g.Secret, subject, g.now(), ttl)
}

// RequireParty admits admins, and party tokens whose subject equals the
// route parameter named param.
func (g *AdminGuard) RequireParty(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subject, err := g.Authorize(r); err == nil {
				next.ServeHTTP(w, r.WithContext(common.WithActor(r.Context(), subject)))
				return
			}
			partyID := chi.URLParam(r, param)
			subject, err := g.partySubject(r)
			switch {
			case err != nil:
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "party or admin credentials required", nil)
			case subject != partyID:
				g.Logger.Warn().Str("subject", subject).Str("party_id", partyID).Str("path", r.URL.Path).Msg("party_scope_rejected")
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "token is not valid for this party", nil)
			default:
				next.ServeHTTP(w, r.WithContext(common.WithActor(r.Context(), subject)))
			}
		})
	}
}

func (g *AdminGuard) partySubject(r *http.Request) (string, error) {
	token := bearerToken(r)
	if g == nil || token == "" || len(g.Secret) == 0 {
		return "", errNoCredentials
	}
	policy := g.Policy
	policy.Role = RoleParty
	parsed, err := policy.Verify(g.Secret, token, g.now())
	if err != nil {
		return "", err
	}
	if parsed.Subject() == "" {
		return "", errors.New("auth: party token has no subject")
	}
	return parsed.Subject(), nil
}

// IssuePartyToken signs a token scoped to one store or freelancer.
func (g *AdminGuard) IssuePartyToken(partyID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(partyID) == "" {
		return "", errors.New("auth: party id is required")
	}
	policy := g.Policy
	policy.Role = RoleParty
	return policy.Issue(g.Secret, partyID, g.now(), ttl)
}

// HashKey derives the argon2id hash stored in ADMIN_KEY_HASH.
func HashKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("auth: admin key is empty")
	}
	return argon2id.CreateHash(key, argon2id.DefaultParams)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (g *AdminGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
