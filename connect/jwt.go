package connect

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// the optional shared secret gate
// the dialer signs a short lived token with the shared password and the server verifies it
// before upgrading. The password itself never crosses the wire.

const AuthHeader = "Authorization"

const authBearerPrefix = "Bearer "

const DefaultAuthTokenTtl = 1 * time.Minute

func NewAuthToken(password string, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(password))
}

func VerifyAuthToken(password string, tokenStr string) error {
	token, err := gojwt.Parse(
		tokenStr,
		func(token *gojwt.Token) (any, error) {
			return []byte(password), nil
		},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAuthInvalid, err)
	}
	if !token.Valid {
		return ErrAuthInvalid
	}
	return nil
}

func SetAuthHeader(header http.Header, token string) {
	header.Set(AuthHeader, authBearerPrefix+token)
}

// no password means no gate
func VerifyAuthRequest(password string, r *http.Request) error {
	if password == "" {
		return nil
	}
	value := r.Header.Get(AuthHeader)
	if !strings.HasPrefix(value, authBearerPrefix) {
		return ErrAuthRequired
	}
	return VerifyAuthToken(password, strings.TrimPrefix(value, authBearerPrefix))
}
