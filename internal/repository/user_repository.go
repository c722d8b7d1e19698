package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// プロフィールの部分更新。nilの項目は変更しない
type ProfilePatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
	City      *string
	State     *string
	ZipCode   *string
	Country   *string
}

func (p ProfilePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil && p.Address == nil &&
		p.City == nil && p.State == nil && p.ZipCode == nil && p.Country == nil
}

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成（email重複はErrConflict）
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを一件取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, patch ProfilePatch) error
	//パスワード更新と同時にtoken_versionを+1
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	SetAdmin(ctx context.Context, userID int64, isAdmin bool) error
}
