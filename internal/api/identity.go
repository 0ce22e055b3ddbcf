package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shareit/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

type contextKey int

const userIDKey contextKey = iota

const (
	authorizationHeader = "Authorization"
	userIDMetadataKey   = "x-sharer-user-id"
)

var (
	errMissingUser  = errors.New("missing acting user")
	errInvalidUser  = errors.New("invalid acting user id")
	errInvalidToken = errors.New("invalid bearer token")
)

// Claims carries the acting user inside a bearer token.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// IdentityResolver determines the acting user of a request. With a JWT secret
// it requires an HMAC-signed bearer token, otherwise it trusts the user id header.
type IdentityResolver struct {
	secret []byte
}

func NewIdentityResolver(jwtSecret string) *IdentityResolver {
	r := &IdentityResolver{}
	if jwtSecret != "" {
		r.secret = []byte(jwtSecret)
	}
	return r
}

func (r *IdentityResolver) usesTokens() bool {
	return len(r.secret) > 0
}

// Resolve returns the acting user from the raw header values.
func (r *IdentityResolver) Resolve(userHeader, authorization string) (int64, error) {
	if r.usesTokens() {
		return r.fromBearer(authorization)
	}
	return parseUserID(userHeader)
}

func parseUserID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errMissingUser
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidUser
	}
	return id, nil
}

func (r *IdentityResolver) fromBearer(header string) (int64, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return 0, errMissingUser
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, errInvalidToken
	}
	if claims.UserID <= 0 {
		return 0, errInvalidToken
	}
	return claims.UserID, nil
}

// ResolveMetadata reads the acting user from gRPC metadata.
func (r *IdentityResolver) ResolveMetadata(ctx context.Context) (int64, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	return r.Resolve(first(md.Get(userIDMetadataKey)), first(md.Get(strings.ToLower(authorizationHeader))))
}

// Middleware rejects requests without a valid acting user and stores it in the context.
func (r *IdentityResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		userID, err := r.Resolve(req.Header.Get(models.UserIDHeader), req.Header.Get(authorizationHeader))
		if err != nil {
			code := http.StatusBadRequest
			if r.usesTokens() {
				code = http.StatusUnauthorized
			}
			writeError(w, code, err.Error())
			return
		}
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), userIDKey, userID)))
	})
}

// UserIDFromContext returns the acting user stored by Middleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// IssueToken signs an HS256 token for userID.
func IssueToken(secret string, userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
