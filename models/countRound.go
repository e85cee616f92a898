package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CountRound is one counting pass over a group. A group owns at most one round per number.
type CountRound struct {
	ID             int             `gorm:"primary_key" json:"id"`
	GroupKey       string          `gorm:"size:64;not null;uniqueIndex:uniq_round_group,priority:1" json:"group_key"`
	RoundNumber    int             `gorm:"not null;uniqueIndex:uniq_round_group,priority:2" json:"round_number"`
	CollaboratorId int             `gorm:"not null;index" json:"collaborator_id"`
	Floor          *string         `gorm:"size:50;index" json:"floor"`
	IsReleased     bool            `gorm:"not null;default:false" json:"is_released"`
	Status         RoundStatus     `gorm:"size:20;not null;default:'Active';index" json:"status"`
	Mode           CountMode       `gorm:"size:20;not null;default:'Scheduled'" json:"mode"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Items          []CountItem     `gorm:"-" json:"items,omitempty"`
	Logs           []CountLogEntry `gorm:"foreignKey:RoundId" json:"logs,omitempty"`
}

type NewCountGroup struct {
	CollaboratorName string            `json:"collaborator_name" binding:"required"`
	RoundNumber      int               `json:"round_number" binding:"required"`
	GroupKey         string            `json:"group_key"`
	Floor            string            `json:"floor"`
	Mode             CountMode         `json:"mode"`
	Items            []NewCountItemRow `json:"items"`
}

// RoundState derives the gate state of a round.
func (r CountRound) RoundState() RoundState {
	if r.Status == RoundStatusDeleted {
		return RoundStateDeleted
	}
	if r.IsReleased {
		return RoundStateReleased
	}
	return RoundStateLocked
}

func (input *NewCountGroup) validate() error {
	if !IsValidRoundNumber(input.RoundNumber) {
		return utils.NewValidationError("round_number", "must be 1, 2 or 3")
	}
	if input.Mode == "" {
		input.Mode = CountModeScheduled
	}
	if !input.Mode.IsValid() {
		return utils.NewValidationError("mode", "invalid count mode")
	}
	input.GroupKey = strings.TrimSpace(input.GroupKey)
	if len(input.GroupKey) > 64 {
		return utils.NewValidationError("group_key", "must be at most 64 characters")
	}
	return nil
}

// CreateCountGroup creates the round for (group key, round number) and, on the first call for
// the group, its items. Re-submitting an existing round returns it unchanged.
func CreateCountGroup(ctx context.Context, input *NewCountGroup) (*CountRound, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	collaborator, err := GetCollaboratorByName(ctx, db, input.CollaboratorName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if input.GroupKey == "" {
		input.GroupKey = uuid.NewString()
	}
	rows := make([]CountItem, 0, len(input.Items))
	for _, row := range input.Items {
		item, err := row.sanitize(input.GroupKey, now)
		if err != nil {
			return nil, err
		}
		rows = append(rows, item)
	}
	sortItemRows(rows)

	release := utils.ObtainLock(ctx, "CountGroup", input.GroupKey, 60*time.Second, "CountRound", "CreateCountGroup")
	defer release()

	var round CountRound
	err = retryTx(ctx, "CreateCountGroup", func() error {
		round = CountRound{}
		return withGroupLock(db, "count-group", input.GroupKey, func(conn *gorm.DB) error {
			return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var existing CountRound
				err := tx.Where("group_key = ? AND round_number = ?", input.GroupKey, input.RoundNumber).Take(&existing).Error
				if err == nil {
					if existing.Status == RoundStatusDeleted {
						return utils.NewConflictError("count group %s was deleted", input.GroupKey)
					}
					round = existing
					return nil
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}

				round = CountRound{
					GroupKey:       input.GroupKey,
					RoundNumber:    input.RoundNumber,
					CollaboratorId: collaborator.ID,
					Floor:          cleanText(input.Floor),
					IsReleased:     input.RoundNumber == FirstRoundNumber,
					Status:         RoundStatusActive,
					Mode:           input.Mode,
				}
				if err := tx.Create(&round).Error; err != nil {
					if isDuplicateKeyErr(err) {
						return utils.NewConflictError("round %d of group %s already exists", input.RoundNumber, input.GroupKey)
					}
					return err
				}

				var itemCount int64
				if err := tx.Model(&CountItem{}).Where("group_key = ?", input.GroupKey).Count(&itemCount).Error; err != nil {
					return err
				}
				if itemCount > 0 {
					return nil
				}
				for i := range rows {
					if err := claimItemSlot(ctx, tx, &rows[i]); err != nil {
						return err
					}
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	round.Items, err = ListGroupItems(ctx, db, round.GroupKey)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// ListGroupRounds returns the group's rounds by round number, each carrying the shared items.
func ListGroupRounds(ctx context.Context, groupKey string) ([]*CountRound, error) {
	db := config.GetDB()
	var rounds []*CountRound
	if err := db.WithContext(ctx).
		Where("group_key = ? AND status = ?", groupKey, RoundStatusActive).
		Order("round_number ASC").
		Find(&rounds).Error; err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return rounds, nil
	}
	items, err := ListGroupItems(ctx, db, groupKey)
	if err != nil {
		return nil, err
	}
	for _, r := range rounds {
		r.Items = items
	}
	return rounds, nil
}

// ListRoundsByCollaborator returns the collaborator's active rounds, newest first.
func ListRoundsByCollaborator(ctx context.Context, collaboratorId int) ([]*CountRound, error) {
	db := config.GetDB()
	if _, err := getCollaborator(ctx, db, collaboratorId); err != nil {
		return nil, err
	}
	var rounds []*CountRound
	if err := db.WithContext(ctx).
		Where("collaborator_id = ? AND status = ?", collaboratorId, RoundStatusActive).
		Order("created_at DESC, id DESC").
		Find(&rounds).Error; err != nil {
		return nil, err
	}
	if err := attachGroupItems(ctx, db, rounds); err != nil {
		return nil, err
	}
	return rounds, nil
}

// ListRounds returns active rounds created in [from, to] with their logs.
func ListRounds(ctx context.Context, from time.Time, to time.Time) ([]*CountRound, error) {
	if to.Before(from) {
		return nil, utils.NewValidationError("to", "must not be before from")
	}
	var rounds []*CountRound
	if err := config.GetDB().WithContext(ctx).
		Preload("Logs", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("status = ? AND created_at BETWEEN ? AND ?", RoundStatusActive, from, to).
		Order("created_at DESC, id DESC").
		Find(&rounds).Error; err != nil {
		return nil, err
	}
	return rounds, nil
}

func attachGroupItems(ctx context.Context, db *gorm.DB, rounds []*CountRound) error {
	groupKeys := make([]string, 0, len(rounds))
	for _, r := range rounds {
		groupKeys = append(groupKeys, r.GroupKey)
	}
	groupKeys = utils.UniqueSlice(groupKeys)
	if len(groupKeys) == 0 {
		return nil
	}
	var items []CountItem
	if err := db.WithContext(ctx).Where("group_key IN ?", groupKeys).Order("id ASC").Find(&items).Error; err != nil {
		return err
	}
	byGroup := make(map[string][]CountItem)
	for _, it := range items {
		byGroup[it.GroupKey] = append(byGroup[it.GroupKey], it)
	}
	for _, r := range rounds {
		r.Items = byGroup[r.GroupKey]
	}
	return nil
}

func getActiveRound(ctx context.Context, tx *gorm.DB, id int) (*CountRound, error) {
	var round CountRound
	err := tx.WithContext(ctx).Where("id = ? AND status = ?", id, RoundStatusActive).Take(&round).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("round_id", "round %d not found", id)
		}
		return nil, err
	}
	return &round, nil
}

func getGroupRound(ctx context.Context, tx *gorm.DB, groupKey string, roundNumber int) (*CountRound, error) {
	var round CountRound
	err := tx.WithContext(ctx).
		Where("group_key = ? AND round_number = ? AND status = ?", groupKey, roundNumber, RoundStatusActive).
		Take(&round).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &round, nil
}
