package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"ledger/internal/core"
	"ledger/internal/log"
)

// ClaimOwnerID names the token claim holding the caller's owner id.
const ClaimOwnerID = "uid"

type ownerKey struct{}

// Authenticator verifies HS256 bearer tokens issued elsewhere.
type Authenticator struct {
	secret []byte
	logger *log.Logger
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		logger: log.For(log.ComponentSecurity),
	}
}

// Middleware rejects requests without a valid token and stores the owner
// id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := a.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			a.logger.WarnContext(r.Context(), "Rejected request",
				log.FieldPath, r.URL.Path,
				log.FieldError, err)
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldOwnerID, owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate parses an Authorization header value and returns the owner id.
func (a *Authenticator) Authenticate(header string) (int64, error) {
	if header == "" {
		return 0, core.Unauthorizedf("missing bearer token")
	}
	scheme, tokenStr, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
		return 0, core.Unauthorizedf("invalid authorization header")
	}
	if len(a.secret) == 0 {
		return 0, core.Unauthorizedf("authentication is not configured")
	}

	claims, err := a.parse(strings.TrimSpace(tokenStr))
	if err != nil {
		return 0, core.Unauthorizedf("invalid token")
	}
	owner, err := ownerID(claims[ClaimOwnerID])
	if err != nil {
		return 0, core.Unauthorizedf("invalid token: %v", err)
	}
	return owner, nil
}

func (a *Authenticator) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// ownerID accepts the numeric forms a uid claim shows up in.
func ownerID(v interface{}) (int64, error) {
	var id int64
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 {
			return 0, fmt.Errorf("uid must be an integer")
		}
		id = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("uid must be an integer")
		}
		id = parsed
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("uid must be an integer")
		}
		id = parsed
	case nil:
		return 0, fmt.Errorf("missing uid claim")
	default:
		return 0, fmt.Errorf("unsupported uid claim type %T", v)
	}
	if id <= 0 {
		return 0, fmt.Errorf("uid must be positive")
	}
	return id, nil
}

// OwnerFromContext returns the authenticated owner id.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	owner, ok := ctx.Value(ownerKey{}).(int64)
	return owner, ok
}
