package service

import (
	"context"

	"Community_Sync/internal/pkg"
)

// TokenStore records the access token currently honoured for a user.
type TokenStore interface {
	AddUserToken(ctx context.Context, userID, token string) error
	DeleteUserToken(ctx context.Context, userID string) error
}

// TokenService issues and revokes the bearer tokens that carry identity into
// sessions. Without a store, tokens are only checked by signature.
type TokenService struct {
	tokens *pkg.TokenManager
	store  TokenStore
}

func NewTokenService(tokens *pkg.TokenManager, store TokenStore) *TokenService {
	return &TokenService{tokens: tokens, store: store}
}

func (s *TokenService) Issue(ctx context.Context, userID string) (*pkg.Pair, error) {
	pair, err := s.tokens.GeneratePair(userID)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if err := s.store.AddUserToken(ctx, userID, pair.AccessToken); err != nil {
			return nil, err
		}
	}
	return pair, nil
}

func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	pair, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		claims, err := s.tokens.ParseAccess(pair.AccessToken)
		if err != nil {
			return nil, err
		}
		if err := s.store.AddUserToken(ctx, claims.UserID, pair.AccessToken); err != nil {
			return nil, err
		}
	}
	return pair, nil
}

func (s *TokenService) Logout(ctx context.Context, userID string) error {
	if s.store == nil || userID == "" {
		return nil
	}
	return s.store.DeleteUserToken(ctx, userID)
}
