//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"blimp/domain"
	"blimp/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const userPrefix = "user:"

type IUserRepository interface {
	Create(email, passwordHash, displayName string) (User, error)
	GetByEmail(email string) (User, error)
	UpdateProfile(email, displayName, avatarRef string) (User, error)
	MarkVerified(email string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// User is the identity-layer representation of an account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	DisplayName  string    `json:"display_name"`
	AvatarRef    string    `json:"avatar_ref,omitempty"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal projects the account onto the identity the rest of the
// system consumes.
func (u User) Principal() domain.Principal {
	return domain.Principal{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarRef:   u.AvatarRef,
		Verified:    u.Verified,
	}
}

// Create persists a new account keyed by email.
// The existence check runs in the same transaction as the insert.
func (u UserRepository) Create(email, passwordHash, displayName string) (User, error) {
	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := []byte(userPrefix + email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u UserRepository) GetByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrInvalidCredentials
	}
	return user, err
}

// UpdateProfile rewrites the mutable profile fields. Empty arguments
// leave the current value in place.
func (u UserRepository) UpdateProfile(email, displayName, avatarRef string) (User, error) {
	return u.patch(email, func(user *User) {
		if displayName != "" {
			user.DisplayName = displayName
		}
		if avatarRef != "" {
			user.AvatarRef = avatarRef
		}
	})
}

// MarkVerified flips the verification flag after the (external)
// verification flow completed.
func (u UserRepository) MarkVerified(email string) (User, error) {
	return u.patch(email, func(user *User) {
		user.Verified = true
	})
}

func (u UserRepository) patch(email string, mutate func(*User)) (User, error) {
	var user User
	key := []byte(userPrefix + email)

	err := u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		}); err != nil {
			return err
		}
		mutate(&user)
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrInvalidCredentials
	}
	return user, err
}
