package devserver

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 72 * time.Hour

// MintToken issues a signed access token for a user.
func MintToken(secret string, userID int64, username string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
		"iss":      "roomchat-devserver",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// tokenIdentity is a verified token's subject.
type tokenIdentity struct {
	UserID   int64
	Username string
}

// validateToken verifies the signature and expiry and extracts the
// identity claims.
func validateToken(secret, tokenString string) (*tokenIdentity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	id := &tokenIdentity{}
	switch v := claims["user_id"].(type) {
	case float64:
		id.UserID = int64(v)
	default:
		return nil, errors.New("token missing user_id claim")
	}
	if username, ok := claims["username"].(string); ok {
		id.Username = username
	}
	return id, nil
}
