package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// パスワードの長さ制約。bcryptは72バイトを超える入力を扱えない。
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword はパスワードがハッシュと一致するかを返す。
// 不一致以外のエラー（不正なハッシュなど）はerrorとして返す。
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
	return true, nil
}
