package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store-level sentinel errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
)

// User is a registered account. Username holds the lookup hash of the
// username; DisplayName holds the original username shown to other members.
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"column:username;uniqueIndex;not null" json:"-"`
	DisplayName  string    `gorm:"column:display_name;not null" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	Salt         string    `gorm:"column:salt;size:500;not null" json:"-"`
	Email        string    `gorm:"column:email;uniqueIndex" json:"email,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName sets the table name for GORM
func (User) TableName() string {
	return "users"
}

// UserStore is the persistence collaborator for accounts
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByUsernameHash(ctx context.Context, usernameHash string) (*User, error)
	GetByID(ctx context.Context, id uint64) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// GormUserStore implements UserStore over GORM/Postgres
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore creates a user store backed by the given GORM handle
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// Create inserts a new user row
func (s *GormUserStore) Create(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByUsernameHash finds a user by the hashed username lookup key
func (s *GormUserStore) GetByUsernameHash(ctx context.Context, usernameHash string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", usernameHash).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetByID finds a user by primary key
func (s *GormUserStore) GetByID(ctx context.Context, id uint64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// ExistsByEmail reports whether any user has the given email
func (s *GormUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query email: %w", err)
	}
	return count > 0, nil
}
