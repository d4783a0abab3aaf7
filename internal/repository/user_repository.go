package repository

import (
	"context"

	"github.com/shinyyama/snaplist-backend/internal/model"
	"gorm.io/gorm"
)

type UserRepository interface {
	// Ensure creates the user row on first sight. An existing row is left as is.
	Ensure(ctx context.Context, uid string, email *string) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Ensure(ctx context.Context, uid string, email *string) error {
	var u model.User
	return r.db.WithContext(ctx).
		Where(model.User{ID: uid}).
		Attrs(model.User{Email: email}).
		FirstOrCreate(&u).Error
}
