package session

import "context"

// Repository хранилище сессий
type Repository interface {
	// Validate возвращает id пользователя по хэшу действующего токена
	Validate(ctx context.Context, tokenHash string) (int, error)
}
