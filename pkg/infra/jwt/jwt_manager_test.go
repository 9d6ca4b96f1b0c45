package jwt_test

import (
	"testing"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/jwt"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "s3cr3t"})

	token, err := m.CreateToken("oncall", time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.ValidateToken(token))

	claims, err := m.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, "oncall", claims.Subject)
	assert.Equal(t, jwt.Issuer, claims.Issuer)
}

func TestManager_RejectsForeignKey(t *testing.T) {
	issuer := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "one"})
	verifier := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "two"})

	token, err := issuer.CreateToken("oncall", 0)
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.ValidateToken(token), jwt.ErrInvalidToken)
}

func TestManager_RejectsExpired(t *testing.T) {
	m := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "s3cr3t"})
	claims := jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{
		Issuer:    jwt.Issuer,
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("s3cr3t"))
	require.NoError(t, err)

	assert.ErrorIs(t, m.ValidateToken(token), jwt.ErrExpiredToken)
}

func TestManager_RequiresSecret(t *testing.T) {
	m := jwt.NewJwtManager(&config.ServerConfig{})
	_, err := m.CreateToken("oncall", 0)
	assert.ErrorIs(t, err, jwt.ErrMissingKey)
	assert.ErrorIs(t, m.ValidateToken("x.y.z"), jwt.ErrMissingKey)
}
