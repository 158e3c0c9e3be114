package pkg

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrRefreshExpired    = errors.New("refresh expired")
	ErrRefreshInvalid    = errors.New("refresh invalid")
	ErrTokenParseFailure = errors.New("token parse failure")
)

const (
	AccessTTL  = time.Minute * 30
	RefreshTTL = time.Hour * 24

	subjectAccess  = "access"
	subjectRefresh = "refresh"
)

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenManager signs and verifies HS256 access/refresh pairs.
type TokenManager struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenManager(accessSecret, refreshSecret string) *TokenManager {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	return &TokenManager{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     AccessTTL,
		RefreshTTL:    RefreshTTL,
		now:           time.Now,
	}
}

func (m *TokenManager) sign(userID, subject string, ttl time.Duration, secret []byte) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
		},
	})
	return token.SignedString(secret)
}

func (m *TokenManager) GeneratePair(userID string) (*Pair, error) {
	if userID == "" {
		return nil, ErrTokenInvalid
	}
	accessToken, err := m.sign(userID, subjectAccess, m.AccessTTL, m.AccessSecret)
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.sign(userID, subjectRefresh, m.RefreshTTL, m.RefreshSecret)
	if err != nil {
		return nil, err
	}
	return &Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (m *TokenManager) parse(tokenStr string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrTokenParseFailure
	}
	return token.Claims.(*Claims), nil
}

// ParseAccess verifies an access token and returns its claims.
func (m *TokenManager) ParseAccess(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr, m.AccessSecret)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	}
	if claims.Subject != subjectAccess || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (m *TokenManager) Refresh(refreshToken string) (*Pair, error) {
	claims, err := m.parse(refreshToken, m.RefreshSecret)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrRefreshExpired
	case err != nil:
		return nil, ErrRefreshInvalid
	}
	if claims.Subject != subjectRefresh {
		return nil, ErrRefreshInvalid
	}
	return m.GeneratePair(claims.UserID)
}
