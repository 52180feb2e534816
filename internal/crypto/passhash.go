// Package crypto реализует хеширование и проверку паролей пользователей.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// NewSalt возвращает случайную соль для хеширования пароля.
func NewSalt() ([]byte, error) {
	b := make([]byte, saltLen)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random salt: %w", err)
	}
	return b, nil
}

// HashPassword возвращает хеш Argon2id пароля с указанной солью.
func HashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword сравнивает пароль с ожидаемым хешем за постоянное время.
func VerifyPassword(password string, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(HashPassword(password, salt), expected) == 1
}
