package engineapi

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// claims is the Engine API authentication claim set: a single "iat" (issued
// at) field, required to be within ±60s of the server's clock.
type claims struct {
	jwt.RegisteredClaims
}

// mintBearerToken signs a fresh HS256 JWT carrying only an "iat" claim, as
// the Engine API authentication scheme requires on every request.
func mintBearerToken(secret []byte) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "engineapi: signing JWT bearer token")
	}
	return signed, nil
}
