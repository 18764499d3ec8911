package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// Context keys set by AuthMiddleware for downstream handlers.
const (
	CtxUserID  = "userID"
	CtxSubject = "tokenIdentifier"
	CtxRole    = "role"
)

var authRedis *redis.Client

// InitAuthMiddleware wires the Redis client used for the logout denylist.
// Passing nil disables the denylist check.
func InitAuthMiddleware(redisClient *redis.Client) {
	authRedis = redisClient
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Extract token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if authRedis != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			if exists, err := authRedis.Exists(r.Context(), key).Result(); err == nil && exists > 0 {
				http.Error(w, "Token revoked", http.StatusUnauthorized)
				return
			}
		}

		claims, err := validateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), CtxUserID, fmt.Sprintf("%v", claims["user_id"]))
		ctx = context.WithValue(ctx, CtxSubject, fmt.Sprintf("%v", claims["sub"]))
		ctx = context.WithValue(ctx, CtxRole, fmt.Sprintf("%v", claims["role"]))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches identity claims when a valid bearer token is
// present and passes the request through untouched otherwise. Used on public
// endpoints whose response can be personalized.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := validateToken(parts[1])
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), CtxUserID, fmt.Sprintf("%v", claims["user_id"]))
		ctx = context.WithValue(ctx, CtxSubject, fmt.Sprintf("%v", claims["sub"]))
		ctx = context.WithValue(ctx, CtxRole, fmt.Sprintf("%v", claims["role"]))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}

	return claims, nil
}
