package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

type UserUsecase struct {
	tx         repository.TransactionManager
	users      repository.UserRepository
	validator  AuthValidator
	bcryptCost int
}

func NewUserUsecase(
	tx repository.TransactionManager,
	users repository.UserRepository,
	validator AuthValidator,
	bcryptCost int,
) *UserUsecase {
	return &UserUsecase{tx: tx, users: users, validator: validator, bcryptCost: bcryptCost}
}

// プロフィールの部分更新
func (u *UserUsecase) UpdateProfile(ctx context.Context, userID int64, patch repository.ProfilePatch) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, NewUnauthorizedError("unauthorized")
	}
	if patch.IsEmpty() {
		return UserDTO{}, NewValidationError("no fields to update")
	}
	if err := u.validator.ValidateProfile(ctx, patch); err != nil {
		return UserDTO{}, err
	}

	err := u.users.UpdateProfile(ctx, userID, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return UserDTO{}, NewNotFoundError("user not found")
	}
	if err != nil {
		return UserDTO{}, newServerError()
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return UserDTO{}, newServerError()
	}
	return toUserDTO(user), nil
}

// 現在のパスワードを確認して変更。既存トークンは無効になる
func (u *UserUsecase) ChangePassword(ctx context.Context, userID int64, current string, next string) error {
	if userID <= 0 {
		return NewUnauthorizedError("unauthorized")
	}
	if err := u.validator.ValidatePasswordChange(ctx, current, next); err != nil {
		return err
	}

	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewNotFoundError("user not found")
	}
	if err != nil {
		return newServerError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return NewValidationError("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), u.bcryptCost)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if err := u.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return newServerError()
	}
	return nil
}

// 管理者フラグの変更。自分自身は変更できない
func (u *UserUsecase) SetAdmin(ctx context.Context, actorAdminUserID int64, targetUserID int64, isAdmin bool) (UserDTO, error) {
	if actorAdminUserID <= 0 {
		return UserDTO{}, NewUnauthorizedError("unauthorized")
	}
	if targetUserID <= 0 {
		return UserDTO{}, NewValidationError("invalid id")
	}
	if actorAdminUserID == targetUserID {
		return UserDTO{}, NewValidationError("cannot change your own role")
	}

	// 権限変更と監査ログは同じtxで書く
	var out UserDTO
	err := u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		before, err := r.Users().FindByID(ctx, targetUserID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFoundError("user not found")
		}
		if err != nil {
			return err
		}

		if err := r.Users().SetAdmin(ctx, targetUserID, isAdmin); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFoundError("user not found")
			}
			return err
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateUserRole,
			ResourceType: model.AuditResourceUser,
			ResourceID:   targetUserID,
			BeforeJSON:   `{"isAdmin":` + strconv.FormatBool(before.IsAdmin) + `}`,
			AfterJSON:    `{"isAdmin":` + strconv.FormatBool(isAdmin) + `}`,
			CreatedAt:    time.Now(),
		}); err != nil {
			return err
		}

		before.IsAdmin = isAdmin
		out = toUserDTO(before)
		return nil
	})
	if err != nil {
		if he, ok := AsHTTPError(err); ok {
			return UserDTO{}, he
		}
		return UserDTO{}, newServerError()
	}
	return out, nil
}
