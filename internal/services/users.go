package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/data/repos"
	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/identity"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Webhook outcomes reported back to the handler.
const (
	WebhookUpserted = "upserted"
	WebhookDeleted  = "deleted"
	WebhookIgnored  = "ignored"
)

type UserService interface {
	// HandleEvent applies a verified identity webhook event and returns its outcome.
	HandleEvent(dbc dbctx.Context, evt *identity.WebhookEvent) (string, error)
}

type userService struct {
	db    *gorm.DB
	log   *logger.Logger
	users repos.UserRepo
	chats repos.ChatRepo
}

func NewUserService(db *gorm.DB, baseLog *logger.Logger, userRepo repos.UserRepo, chatRepo repos.ChatRepo) UserService {
	return &userService{
		db:    db,
		log:   baseLog.With("service", "UserService"),
		users: userRepo,
		chats: chatRepo,
	}
}

func (s *userService) HandleEvent(dbc dbctx.Context, evt *identity.WebhookEvent) (string, error) {
	if evt == nil {
		return "", apierr.Invalid("payload", "is required")
	}
	switch evt.Type {
	case EventUserCreated, EventUserUpdated:
		data, err := decodeUserData(evt)
		if err != nil {
			return "", err
		}
		u, err := s.users.UpsertByExternalID(dbc, &types.User{
			ExternalID: data.ID,
			Email:      data.PrimaryEmail(),
			FirstName:  data.FirstName,
			LastName:   data.LastName,
			ImageURL:   data.ImageURL,
		})
		if err != nil {
			return "", fmt.Errorf("upsert user: %w", err)
		}
		s.log.Info("User synced", "event", evt.Type, "external_id", u.ExternalID)
		return WebhookUpserted, nil

	case EventUserDeleted:
		data, err := decodeUserData(evt)
		if err != nil {
			return "", err
		}
		var chatsDeleted int64
		err = s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
			txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
			n, err := s.chats.DeleteByUser(txc, data.ID)
			if err != nil {
				return err
			}
			chatsDeleted = n
			_, err = s.users.DeleteByExternalID(txc, data.ID)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("delete user: %w", err)
		}
		s.log.Info("User deleted", "external_id", data.ID, "chats_deleted", chatsDeleted)
		return WebhookDeleted, nil

	default:
		s.log.Debug("Ignoring webhook event", "event", evt.Type)
		return WebhookIgnored, nil
	}
}

func decodeUserData(evt *identity.WebhookEvent) (*identity.UserData, error) {
	var data identity.UserData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return nil, apierr.Invalid("data", err.Error())
	}
	if strings.TrimSpace(data.ID) == "" {
		return nil, apierr.Invalid("data.id", "is required")
	}
	return &data, nil
}
