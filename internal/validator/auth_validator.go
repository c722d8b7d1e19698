package validator

import (
	"context"
	"regexp"
	"strings"

	"storefront/internal/repository"
	"storefront/internal/usecase"
)

// パスワード最低文字数
const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type authValidator struct{}

// Usecaseは interface を依存注入
func NewAuthValidator() usecase.AuthValidator {
	return &authValidator{}
}

// 会員登録の入力を検証（email重複はDBの一意制約で弾く）
func (v *authValidator) ValidateRegister(ctx context.Context, in usecase.RegisterInput) error {
	email := strings.TrimSpace(in.Email)

	// 必須チェック
	if email == "" || in.Password == "" {
		return usecase.NewValidationError("email and password are required")
	}

	// email形式
	if !isEmailLike(email) {
		return usecase.NewValidationError("invalid email")
	}

	if len(in.Password) < minPasswordLength {
		return usecase.NewValidationError("password must be at least 6 characters")
	}

	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return usecase.NewValidationError("firstName and lastName are required")
	}
	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	// 必須チェック
	if email == "" || password == "" {
		return usecase.NewValidationError("email and password are required")
	}

	// email形式
	if !isEmailLike(email) {
		return usecase.NewValidationError("invalid email")
	}

	return nil
}

// 指定された項目だけ検証。名前は空にできない
func (v *authValidator) ValidateProfile(ctx context.Context, patch repository.ProfilePatch) error {
	if patch.FirstName != nil && strings.TrimSpace(*patch.FirstName) == "" {
		return usecase.NewValidationError("firstName cannot be empty")
	}
	if patch.LastName != nil && strings.TrimSpace(*patch.LastName) == "" {
		return usecase.NewValidationError("lastName cannot be empty")
	}
	if patch.Phone != nil && len(*patch.Phone) > 30 {
		return usecase.NewValidationError("phone too long")
	}
	if patch.ZipCode != nil && len(*patch.ZipCode) > 20 {
		return usecase.NewValidationError("zipCode too long")
	}
	return nil
}

func (v *authValidator) ValidatePasswordChange(ctx context.Context, current string, next string) error {
	if current == "" {
		return usecase.NewValidationError("currentPassword is required")
	}
	if len(next) < minPasswordLength {
		return usecase.NewValidationError("new password must be at least 6 characters")
	}
	return nil
}

func isEmailLike(s string) bool {
	return emailPattern.MatchString(s)
}
