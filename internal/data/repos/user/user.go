package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type UserRepo interface {
	UpsertByExternalID(dbc dbctx.Context, row *types.User) (*types.User, error)
	GetByExternalID(dbc dbctx.Context, externalID string) (*types.User, error)
	DeleteByExternalID(dbc dbctx.Context, externalID string) (bool, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

// UpsertByExternalID inserts or refreshes the profile fields and revives a
// soft-deleted row with the same external id.
func (r *userRepo) UpsertByExternalID(dbc dbctx.Context, row *types.User) (*types.User, error) {
	if row == nil || strings.TrimSpace(row.ExternalID) == "" {
		return nil, fmt.Errorf("missing external_id")
	}
	row.UpdatedAt = time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = row.UpdatedAt
	}
	row.DeletedAt = gorm.DeletedAt{}
	if err := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "first_name", "last_name", "image_url", "updated_at", "deleted_at"}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByExternalID(dbc, row.ExternalID)
}

func (r *userRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*types.User, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, nil
	}
	var out types.User
	err := dbc.DB(r.db).Where("external_id = ?", externalID).Take(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// DeleteByExternalID soft-deletes the user and reports whether a row matched.
func (r *userRepo) DeleteByExternalID(dbc dbctx.Context, externalID string) (bool, error) {
	if strings.TrimSpace(externalID) == "" {
		return false, fmt.Errorf("missing external_id")
	}
	res := dbc.DB(r.db).Where("external_id = ?", externalID).Delete(&types.User{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
