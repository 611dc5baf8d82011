package media

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// videoGrant is the room-entry claim the SFU checks before letting a
// connection publish or subscribe.
type videoGrant struct {
	Room     string `json:"room"`
	RoomJoin bool   `json:"roomJoin"`
}

type accessClaims struct {
	Name  string     `json:"name"`
	Video videoGrant `json:"video"`
	jwt.RegisteredClaims
}

// JWTMinter issues SFU access credentials. The meeting core only decides
// who gets a token; the media layer enforces it.
type JWTMinter struct {
	secret string
}

func NewJWTMinter(secret string) *JWTMinter {
	return &JWTMinter{secret: secret}
}

func (m *JWTMinter) MintAccessToken(userID, roomName, displayName string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Name: displayName,
		Video: videoGrant{
			Room:     roomName,
			RoomJoin: true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secret))
}
