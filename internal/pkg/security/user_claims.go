package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const JWTExpirationTime = time.Hour * 24

// UserClaims identifies the viewer behind a session socket.
type UserClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
