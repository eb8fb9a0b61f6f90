// Package session хранит bearer токен клиента и отдает его API клиенту.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/pitlane/internal/client/storage"
)

// ErrEmptyToken возвращается при попытке сохранить пустой токен
var ErrEmptyToken = errors.New("token is empty")

// Store реализует api.TokenSource поверх storage.SessionStorage
type Store struct {
	storage storage.SessionStorage
}

// NewStore создает хранилище сессии
func NewStore(s storage.SessionStorage) *Store {
	return &Store{storage: s}
}

// Token возвращает сохраненный токен или пустую строку, если сессии нет
func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.storage.GetToken(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return token, nil
}

// Login сохраняет токен
func (s *Store) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.storage.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Logout удаляет токен. Повторный logout не ошибка
func (s *Store) Logout(ctx context.Context) error {
	if err := s.storage.DeleteToken(ctx); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// IsLoggedIn сообщает, сохранен ли токен
func (s *Store) IsLoggedIn(ctx context.Context) (bool, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}
