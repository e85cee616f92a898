package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Collaborator is a counting user. The system audit account is a collaborator too.
type Collaborator struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;unique" json:"name" binding:"required"`
	Code      string    `gorm:"size:50" json:"code"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCollaborator struct {
	Name string `json:"name" binding:"required"`
	Code string `json:"code"`
}

/*
caches:
	Collaborator:$name
*/

const collaboratorCacheTTL = 10 * time.Minute

func (c Collaborator) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("Collaborator:" + c.Name)
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func CreateCollaborator(ctx context.Context, input *NewCollaborator) (*Collaborator, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, utils.NewValidationError("name", "is required")
	}
	collaborator := Collaborator{
		Name:     name,
		Code:     strings.TrimSpace(input.Code),
		IsActive: utils.NewTrue(),
	}
	if err := config.GetDB().WithContext(ctx).Create(&collaborator).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, utils.NewConflictError("collaborator %q already exists", name)
		}
		return nil, err
	}
	return &collaborator, nil
}

// GetCollaboratorByName resolves an active collaborator, ValidationError when unknown.
func GetCollaboratorByName(ctx context.Context, tx *gorm.DB, name string) (*Collaborator, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.NewValidationError("collaborator", "is required")
	}

	var collaborator Collaborator
	exists, err := config.GetRedisObject("Collaborator:"+name, &collaborator)
	if err != nil {
		// stale or unreadable cache entry; fall through to the database
		exists = false
	}
	if !exists {
		err = tx.WithContext(ctx).Where("name = ?", name).Take(&collaborator).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, utils.NewValidationError("collaborator", "%q not found", name)
			}
			return nil, err
		}
		_ = config.SetRedisObject("Collaborator:"+name, &collaborator, collaboratorCacheTTL)
	}
	if !utils.DereferencePtr(collaborator.IsActive, true) {
		return nil, utils.NewValidationError("collaborator", "%q is inactive", name)
	}
	return &collaborator, nil
}

func getCollaborator(ctx context.Context, tx *gorm.DB, id int) (*Collaborator, error) {
	var collaborator Collaborator
	if err := tx.WithContext(ctx).Where("id = ?", id).Take(&collaborator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("user_id", "collaborator %d not found", id)
		}
		return nil, err
	}
	return &collaborator, nil
}

// GetActiveCollaborator resolves a collaborator by id and rejects deactivated ones.
func GetActiveCollaborator(ctx context.Context, tx *gorm.DB, id int) (*Collaborator, error) {
	collaborator, err := getCollaborator(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !utils.DereferencePtr(collaborator.IsActive, true) {
		return nil, utils.NewValidationError("user_id", "collaborator %d is inactive", id)
	}
	return collaborator, nil
}

func ToggleActiveCollaborator(ctx context.Context, id int, isActive bool) (*Collaborator, error) {
	db := config.GetDB()
	collaborator, err := getCollaborator(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(collaborator).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}
	if err := collaborator.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "Collaborator", "ToggleActiveCollaborator", "RemoveInstanceRedis", id, err)
	}
	collaborator.IsActive = &isActive
	return collaborator, nil
}
