package tokens

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC key accepted for HS256 (256 bits).
const MinSecretLength = 32

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrEncoding         = errors.New("cannot encode token")
	ErrConfiguration    = errors.New("signing secret not configured properly")
)

// Claims is the payload carried by both access and refresh tokens.
type Claims struct {
	Roles   []string `json:"roles"`
	Version int      `json:"ver"`
	jwt.RegisteredClaims
}

func CheckSecret(secret []byte) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: secret must be at least %d bytes", ErrConfiguration, MinSecretLength)
	}
	return nil
}

// Encode signs claims with HS256. Expiry and issuer are not checked here.
func Encode(claims Claims, secret []byte) (string, error) {
	if err := CheckSecret(secret); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrEncoding)
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}

	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tkn.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return signed, nil
}

// Decode verifies the signature and returns the claims without validating
// exp, iss or any other registered claim.
func Decode(token string, secret []byte) (*Claims, error) {
	if err := CheckSecret(secret); err != nil {
		return nil, err
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, classify(err, parts)
	}
	return &claims, nil
}

func classify(err error, parts []string) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed) && signatureOnlyUndecodable(parts):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// signatureOnlyUndecodable reports whether header and payload decode but the
// signature segment does not, i.e. the signature itself was tampered with.
func signatureOnlyUndecodable(parts []string) bool {
	enc := base64.RawURLEncoding.Strict()
	if _, err := enc.DecodeString(parts[0]); err != nil {
		return false
	}
	if _, err := enc.DecodeString(parts[1]); err != nil {
		return false
	}
	_, err := enc.DecodeString(parts[2])
	return err != nil
}
