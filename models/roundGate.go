package models

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoundGate owns the lock/release lifecycle of the rounds of a count group.
type RoundGate struct {
	DB          *gorm.DB
	Evaluator   *DivergenceEvaluator
	Ledger      *AuditLedger
	Logger      *logrus.Logger
	Concurrency int
}

func NewRoundGate(db *gorm.DB, evaluator *DivergenceEvaluator, ledger *AuditLedger, logger *logrus.Logger) *RoundGate {
	return &RoundGate{
		DB:          db,
		Evaluator:   evaluator,
		Ledger:      ledger,
		Logger:      logger,
		Concurrency: config.StockOracleConcurrency(),
	}
}

type CloseRoundInput struct {
	GroupKey       string `json:"group_key" binding:"required"`
	RoundNumber    int    `json:"round_number" binding:"required"`
	Divergence     bool   `json:"divergence"`
	ItemsToRecheck []int  `json:"items_to_recheck"`
}

// NextRoundDecision tells whether closing roundNumber releases another round, and which.
// The final round never releases anything.
func NextRoundDecision(roundNumber int, clientFlag bool, serverFlag bool) (bool, int) {
	if roundNumber >= FinalRoundNumber || roundNumber < FirstRoundNumber {
		return false, 0
	}
	if clientFlag || serverFlag {
		return true, roundNumber + 1
	}
	return false, 0
}

// CloseRound locks the closing round and decides whether the next one opens.
// It returns the released round, the closed round when nothing is released, or nil when the
// released round number was never created for the group.
func (g *RoundGate) CloseRound(ctx context.Context, input *CloseRoundInput) (*CountRound, error) {
	if !IsValidRoundNumber(input.RoundNumber) {
		return nil, utils.NewValidationError("round_number", "must be 1, 2 or 3")
	}
	release := utils.ObtainLock(ctx, "RoundGate", input.GroupKey, 2*time.Minute, "RoundGate", "CloseRound")
	defer release()

	closed, err := g.lockRound(ctx, input.GroupKey, input.RoundNumber)
	if err != nil {
		return nil, err
	}

	if input.RoundNumber == FinalRoundNumber {
		if g.Ledger != nil {
			g.Ledger.AutoResolveGroup(ctx, input.GroupKey)
		}
		return closed, nil
	}

	serverFlag := false
	if len(input.ItemsToRecheck) > 0 {
		flagged, err := g.recheckItems(ctx, input.GroupKey, input.RoundNumber, input.ItemsToRecheck)
		if err != nil {
			return nil, err
		}
		serverFlag = serverFlag || flagged
	}
	flagged, err := g.RecheckGroup(ctx, input.GroupKey, input.RoundNumber)
	if err != nil {
		return nil, err
	}
	serverFlag = serverFlag || flagged

	releaseNext, next := NextRoundDecision(input.RoundNumber, input.Divergence, serverFlag)
	if !releaseNext {
		return closed, nil
	}
	return g.releaseRound(ctx, input.GroupKey, next)
}

func (g *RoundGate) lockRound(ctx context.Context, groupKey string, roundNumber int) (*CountRound, error) {
	var round CountRound
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("group_key = ? AND round_number = ? AND status = ?", groupKey, roundNumber, RoundStatusActive).
			Take(&round).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		round.IsReleased = false
		return tx.Model(&round).Update("is_released", false).Error
	})
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (g *RoundGate) releaseRound(ctx context.Context, groupKey string, roundNumber int) (*CountRound, error) {
	var round *CountRound
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := getGroupRound(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), groupKey, roundNumber)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return nil
			}
			return err
		}
		r.IsReleased = true
		if err := tx.Model(r).Update("is_released", true).Error; err != nil {
			return err
		}
		round = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return round, nil
}

// recheckItems re-runs the full evaluation for items a client reported as failed.
func (g *RoundGate) recheckItems(ctx context.Context, groupKey string, roundNumber int, itemIds []int) (bool, error) {
	var items []CountItem
	if err := g.DB.WithContext(ctx).
		Where("group_key = ? AND id IN ?", groupKey, utils.UniqueSlice(itemIds)).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return false, err
	}
	flagged := false
	for _, products := range itemsByProduct(items) {
		ev, err := g.Evaluator.Evaluate(ctx, products.ProductCode, roundNumber, products.ItemKeys, products.NeedsReview)
		if err != nil {
			return flagged, err
		}
		flagged = flagged || ev.NeedsReview
	}
	return flagged, nil
}

// RecheckGroup recomputes every product of the group against its reference stock and flags
// the divergent ones. Each product commits on its own, so a failure part way leaves earlier
// products flagged and the call can simply be repeated.
func (g *RoundGate) RecheckGroup(ctx context.Context, groupKey string, roundNumber int) (bool, error) {
	items, err := ListGroupItems(ctx, g.DB, groupKey)
	if err != nil {
		return false, err
	}
	products := itemsByProduct(items)

	var (
		mu       sync.Mutex
		diverged bool
	)
	eg, egCtx := errgroup.WithContext(ctx)
	limit := g.Concurrency
	if limit <= 0 {
		limit = 1
	}
	eg.SetLimit(limit)
	for _, p := range products {
		eg.Go(func() error {
			ev, err := g.Evaluator.Compute(egCtx, p.ProductCode, roundNumber, p.ItemKeys)
			if err != nil {
				return err
			}
			if !ev.Diverges {
				return nil
			}
			if err := setReviewFlag(egCtx, g.DB, ev.ItemKeys, true); err != nil {
				return err
			}
			g.logger().WithFields(logrus.Fields{
				"module":          "RoundGate",
				"group_key":       groupKey,
				"round_number":    roundNumber,
				"product_code":    p.ProductCode,
				"real_sum":        ev.RealSum.String(),
				"reference_stock": ev.ReferenceStock.String(),
			}).Info("divergence detected on round close")
			mu.Lock()
			diverged = true
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return diverged, err
	}
	return diverged, nil
}

// DeleteGroup soft-deletes every round of the group, or none when any round has a count.
func (g *RoundGate) DeleteGroup(ctx context.Context, groupKey string) (int64, error) {
	var deleted int64
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rounds []CountRound
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("group_key = ? AND status = ?", groupKey, RoundStatusActive).
			Find(&rounds).Error; err != nil {
			return err
		}
		if len(rounds) == 0 {
			return utils.ErrorRecordNotFound
		}
		ids := make([]int, 0, len(rounds))
		for _, r := range rounds {
			ids = append(ids, r.ID)
		}
		started, err := groupHasLogs(ctx, tx, ids)
		if err != nil {
			return err
		}
		if started {
			return utils.NewConflictError("count group %s already has counts and cannot be deleted", groupKey)
		}
		res := tx.Model(&CountRound{}).Where("id IN ?", ids).Update("status", RoundStatusDeleted)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (g *RoundGate) logger() *logrus.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return config.GetLogger()
}

type productItems struct {
	ProductCode int
	ItemKeys    []string
	NeedsReview bool
}

// itemsByProduct groups items by product code, keys de-duplicated, ordered by product code.
func itemsByProduct(items []CountItem) []productItems {
	byCode := make(map[int]*productItems)
	for _, it := range items {
		p, ok := byCode[it.ProductCode]
		if !ok {
			p = &productItems{ProductCode: it.ProductCode}
			byCode[it.ProductCode] = p
		}
		p.ItemKeys = append(p.ItemKeys, it.ItemKey)
		p.NeedsReview = p.NeedsReview || it.NeedsReview
	}
	out := make([]productItems, 0, len(byCode))
	for _, p := range byCode {
		p.ItemKeys = utils.UniqueSlice(p.ItemKeys)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductCode < out[j].ProductCode })
	return out
}
