package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	IsAdminKey contextKey = "is_admin"
)

const (
	AccessTokenTTL = 60 * time.Minute
	ResetTokenTTL  = 15 * time.Minute

	purposeReset = "reset"
)

var ErrInvalidToken = errors.New("invalid token")
var ErrTokenExpired = errors.New("token expired")

type JWTAuth struct {
	Secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret)}
}

// GenerateAccessToken creates a JWT with 60 minute expiry
func (j *JWTAuth) GenerateAccessToken(userID uuid.UUID, isAdmin bool) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  userID.String(),
		"is_admin": isAdmin,
		"exp":      now.Add(AccessTokenTTL).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// GenerateResetToken creates a short-lived password reset token. jti lets the
// caller make it single-use.
func (j *JWTAuth) GenerateResetToken(userID uuid.UUID, jti string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"purpose": purposeReset,
		"jti":     jti,
		"exp":     now.Add(ResetTokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
}

func (j *JWTAuth) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func claimUserID(claims jwt.MapClaims) (uuid.UUID, error) {
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// ParseAccessToken validates an access token and returns its subject.
// Reset tokens are rejected.
func (j *JWTAuth) ParseAccessToken(tokenStr string) (uuid.UUID, bool, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return uuid.Nil, false, err
	}
	if _, isPurpose := claims["purpose"]; isPurpose {
		return uuid.Nil, false, ErrInvalidToken
	}
	userID, err := claimUserID(claims)
	if err != nil {
		return uuid.Nil, false, err
	}
	isAdmin, _ := claims["is_admin"].(bool)
	return userID, isAdmin, nil
}

// ParseResetToken validates a password reset token and returns its subject and jti.
func (j *JWTAuth) ParseResetToken(tokenStr string) (uuid.UUID, string, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return uuid.Nil, "", err
	}
	if purpose, _ := claims["purpose"].(string); purpose != purposeReset {
		return uuid.Nil, "", ErrInvalidToken
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return uuid.Nil, "", ErrInvalidToken
	}
	userID, err := claimUserID(claims)
	if err != nil {
		return uuid.Nil, "", err
	}
	return userID, jti, nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Middleware validates JWT and attaches user_id to context
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		tokenStr, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		userID, isAdmin, err := j.ParseAccessToken(tokenStr)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID, isAdmin)))
	})
}

// Optional attaches the user when a valid bearer token is present and lets
// anonymous requests through otherwise.
func (j *JWTAuth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenStr, ok := bearerToken(r); ok {
			if userID, isAdmin, err := j.ParseAccessToken(tokenStr); err == nil {
				r = r.WithContext(withUser(r.Context(), userID, isAdmin))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func withUser(ctx context.Context, userID uuid.UUID, isAdmin bool) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, IsAdminKey, isAdmin)
}

// GetUserID extracts user_id from request context
func GetUserID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(UserIDKey).(uuid.UUID)
	return id
}

// IsAdmin reports the admin flag carried by the caller's token.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(IsAdminKey).(bool)
	return admin
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := GetRequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
