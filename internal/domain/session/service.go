// Package session проверяет непрозрачные bearer-токены, выданные внешним сервисом.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slog"
)

type Servicer interface {
	Validate(ctx context.Context, token string) (int, error)
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// HashToken хэш, под которым токен хранится в таблице sessions
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Validate возвращает id пользователя. Пустой токен отклоняется без обращения к хранилищу.
func (s *Service) Validate(ctx context.Context, token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, ErrInvalidSession
	}

	userID, err := s.repo.Validate(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return 0, err
		}
		s.log.Error("failed to validate session", slog.String("error", err.Error()))
		return 0, fmt.Errorf("validate session: %w", err)
	}
	return userID, nil
}
