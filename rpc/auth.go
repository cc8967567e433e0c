package rpc

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

// requireAdmin validates the HS256 bearer token on privileged methods. The
// token must carry role "admin" and an expiry.
func (s *Server) requireAdmin(r *http.Request) *RPCError {
	if len(s.adminSecret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "admin methods disabled: no secret configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "authorization header required"}
	}
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.adminSecret, nil
	}, jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	if role, _ := claims["role"].(string); role != adminRole {
		return &RPCError{Code: codeUnauthorized, Message: "admin role required"}
	}
	return nil
}

// NewAdminToken mints a short-lived admin token. The daemon's operator
// tooling uses this; tests use it to exercise the guarded methods.
func NewAdminToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("rpc: admin secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
