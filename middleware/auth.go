package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const judgeContextKey contextKey = "judge"

// Имена JWT claims
const (
	jwtClaimJudgeID  = "judge_id"
	jwtClaimUsername = "username"
)

var (
	ErrMissingToken = errors.New("authorization token is missing")
	ErrInvalidToken = errors.New("authorization token is invalid or expired")
)

// ValidateToken разбирает и проверяет подпись JWT. Используется и HTTP
// middleware, и websocket-хендшейком, где токен приходит в query string.
func ValidateToken(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := ValidateToken(tokenString, secret)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), judgeContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetJudgeIDFromContext(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(judgeContextKey).(jwt.MapClaims)
	if !ok {
		return 0, errors.New("judge claims not found in context or invalid type")
	}

	judgeIDClaim, ok := claims[jwtClaimJudgeID]
	if !ok {
		return 0, fmt.Errorf("missing '%s' claim in token", jwtClaimJudgeID)
	}

	judgeIDFloat, ok := judgeIDClaim.(float64)
	if !ok {
		// Некоторые клиенты кладут id строкой
		judgeIDStr, okStr := judgeIDClaim.(string)
		if okStr {
			judgeIDInt, err := strconv.Atoi(judgeIDStr)
			if err == nil {
				if judgeIDInt <= 0 {
					return 0, fmt.Errorf("invalid judge ID value in '%s' claim: %d", jwtClaimJudgeID, judgeIDInt)
				}
				return judgeIDInt, nil
			}
		}
		return 0, fmt.Errorf("invalid type for '%s' claim: expected float64 or string, got %T", jwtClaimJudgeID, judgeIDClaim)
	}

	if judgeIDFloat != float64(int(judgeIDFloat)) {
		return 0, fmt.Errorf("'%s' claim is not an integer: %f", jwtClaimJudgeID, judgeIDFloat)
	}

	judgeID := int(judgeIDFloat)
	if judgeID <= 0 {
		return 0, fmt.Errorf("invalid judge ID value in '%s' claim: %d", jwtClaimJudgeID, judgeID)
	}

	return judgeID, nil
}

func GetUsernameFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(judgeContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("judge claims not found in context or invalid type")
	}

	usernameClaim, ok := claims[jwtClaimUsername]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimUsername)
	}

	username, ok := usernameClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimUsername, usernameClaim)
	}

	return username, nil
}

// JudgeIDFromClaims извлекает judge_id напрямую из claims, без контекста.
// Нужен websocket-хендшейку, который проверяет токен до апгрейда соединения.
func JudgeIDFromClaims(claims jwt.MapClaims) (int, error) {
	judgeIDClaim, ok := claims[jwtClaimJudgeID]
	if !ok {
		return 0, fmt.Errorf("missing '%s' claim in token", jwtClaimJudgeID)
	}

	judgeIDFloat, ok := judgeIDClaim.(float64)
	if !ok {
		return 0, fmt.Errorf("invalid type for '%s' claim: expected float64, got %T", jwtClaimJudgeID, judgeIDClaim)
	}

	judgeID := int(judgeIDFloat)
	if judgeID <= 0 {
		return 0, fmt.Errorf("invalid judge ID value in '%s' claim: %d", jwtClaimJudgeID, judgeID)
	}

	return judgeID, nil
}
