// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

// MinPasswordLength задаёт минимальную длину пароля.
const MinPasswordLength = 6

// DigitsOnly удаляет из строки все символы, кроме цифр.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// SameDocument сравнивает документы без учёта форматирования.
func SameDocument(a, b string) bool {
	da, db := DigitsOnly(a), DigitsOnly(b)
	return da != "" && da == db
}

// IsValidPostalCode проверяет, что CEP содержит ровно 8 цифр.
func IsValidPostalCode(code string) bool {
	return len(DigitsOnly(code)) == 8
}

// IsStrongPassword проверяет длину пароля и наличие букв и цифр.
func IsStrongPassword(password string) bool {
	if len([]rune(password)) < MinPasswordLength {
		return false
	}

	var hasLetter, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsLetter(ch):
			hasLetter = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// IsValidEmail выполняет поверхностную проверку адреса почты.
func IsValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".") && !strings.ContainsAny(email, " \t")
}
