package jwt

import (
	"errors"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "trustsentinel"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrMissingKey   = errors.New("jwt secret key is not configured")
)

//go:generate mockery --name=Manager --dir=. --output=mocks/ --filename=jwt_manager_mock.go --case=underscore --with-expecter
type (
	Manager interface {
		CreateToken(operator string, ttl time.Duration) (string, error)
		ValidateToken(tokenString string) error
		DecodeToken(tokenString string) (*Claims, error)
	}
	manager struct {
		config *config.ServerConfig
		now    func() time.Time
	}
)

func NewJwtManager(config *config.ServerConfig) Manager {
	return &manager{
		config: config,
		now:    time.Now,
	}
}

// Claims identify the operator calling the admin API.
type Claims struct {
	jwt.RegisteredClaims
}

// CreateToken issues an operator token. A zero ttl produces a token without
// expiry.
func (m *manager) CreateToken(operator string, ttl time.Duration) (string, error) {
	if m.config.SecretKey == "" {
		return "", ErrMissingKey
	}
	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Subject:  operator,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (m *manager) ValidateToken(tokenString string) error {
	_, err := m.parse(tokenString)
	return err
}

func (m *manager) DecodeToken(tokenString string) (*Claims, error) {
	return m.parse(tokenString)
}

func (m *manager) parse(tokenString string) (*Claims, error) {
	if m.config.SecretKey == "" {
		return nil, ErrMissingKey
	}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(m.config.SecretKey), nil
		},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
