package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "go-chat-app"

var ErrInvalidToken = errors.New("invalid token")

type userFinder interface {
	GetUserByID(ctx context.Context, id int) (*User, error)
}

// Service is the chat core's view of the account system: it verifies
// credentials issued elsewhere and resolves display names.
type Service struct {
	repo      userFinder
	jwtSecret []byte
	// usernames carried by verified tokens, used when no repository is attached
	seen sync.Map
}

// NewService accepts a nil repo; names then come from verified tokens only.
func NewService(repo userFinder, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(secret),
	}
}

func (s *Service) VerifyCredential(tokenString string) (int, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ID <= 0 {
		return 0, ErrInvalidToken
	}

	if claims.Username != "" {
		s.seen.Store(claims.ID, claims.Username)
	}
	return claims.ID, nil
}

func (s *Service) LookupUsername(ctx context.Context, userID int) (string, error) {
	if s.repo != nil {
		u, err := s.repo.GetUserByID(ctx, userID)
		if err != nil {
			return "", err
		}
		return u.Username, nil
	}
	if name, ok := s.seen.Load(userID); ok {
		return name.(string), nil
	}
	return "", ErrUserNotFound
}

// IssueToken signs a credential the way the account service does. The chat
// server never calls it; the load generator and tests do.
func (s *Service) IssueToken(userID int, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.jwtSecret)
}
