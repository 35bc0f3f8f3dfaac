package services

import (
	"context"
	"errors"

	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
)

type UserService struct {
	store core.UserStore
}

func NewUserService(store core.UserStore) *UserService {
	return &UserService{store: store}
}

func (s *UserService) Create(ctx context.Context, u *models.User) error {
	if u == nil || u.Email == "" || u.PasswordHash == "" {
		return errors.New("invalid user payload")
	}
	return s.store.CreateUser(ctx, u)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.store.GetUserByEmail(ctx, email)
}
