package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, in RegisterInput) error
	ValidateLogin(ctx context.Context, email string, password string) error
	ValidateProfile(ctx context.Context, patch repository.ProfilePatch) error
	ValidatePasswordChange(ctx context.Context, current string, next string) error
}

type UserDTO struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	ZipCode   string    `json:"zipCode"`
	Country   string    `json:"country"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserDTO   `json:"user"`
}

type AuthUsecase struct {
	users      repository.UserRepository
	validator  AuthValidator
	issuer     TokenIssuer
	bcryptCost int
}

func NewAuthUsecase(
	users repository.UserRepository,
	validator AuthValidator,
	issuer TokenIssuer,
	bcryptCost int,
) *AuthUsecase {
	return &AuthUsecase{
		users:      users,
		validator:  validator,
		issuer:     issuer,
		bcryptCost: bcryptCost,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (AuthOutput, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, in); err != nil {
		return AuthOutput{}, err
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), u.bcryptCost)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: string(pwHash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return AuthOutput{}, newConflictError("user already exists")
		}
		return AuthOutput{}, newServerError()
	}

	return u.issue(user)
}

func (u *AuthUsecase) Login(ctx context.Context, email string, password string) (AuthOutput, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := u.validator.ValidateLogin(ctx, email, password); err != nil {
		return AuthOutput{}, err
	}

	user, err := u.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthOutput{}, NewUnauthorizedError("invalid credentials")
	}
	if err != nil {
		return AuthOutput{}, newServerError()
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AuthOutput{}, NewUnauthorizedError("invalid credentials")
	}

	return u.issue(user)
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, NewUnauthorizedError("unauthorized")
	}
	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return UserDTO{}, NewNotFoundError("user not found")
	}
	if err != nil {
		return UserDTO{}, newServerError()
	}
	return toUserDTO(user), nil
}

func (u *AuthUsecase) issue(user *model.User) (AuthOutput, error) {
	token, exp, err := u.issuer.Issue(*user)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return AuthOutput{Token: token, ExpiresAt: exp, User: toUserDTO(user)}, nil
}

func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Address:   u.Address,
		City:      u.City,
		State:     u.State,
		ZipCode:   u.ZipCode,
		Country:   u.Country,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}
