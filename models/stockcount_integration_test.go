package models_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var integrationReady bool

func TestMain(m *testing.M) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		os.Exit(m.Run())
	}

	redisName, redisPort, err := startRedisContainer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	mysqlName, mysqlPort, err := startMySQLContainer()
	if err != nil {
		_ = dockerRmForce(redisName)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Setenv("REDIS_ADDRESS", "127.0.0.1:"+redisPort)
	os.Setenv("DB_USER", "root")
	os.Setenv("DB_PASSWORD", "testpw")
	os.Setenv("DB_HOST", "127.0.0.1")
	os.Setenv("DB_PORT", mysqlPort)
	os.Setenv("DB_NAME", "stockcount_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	integrationReady = true

	code := m.Run()
	_ = dockerRmForce(mysqlName)
	_ = dockerRmForce(redisName)
	os.Exit(code)
}

// staticOracle answers from a fixed table; products not in it are unknown to the ERP.
type staticOracle struct {
	stock map[int]decimal.Decimal
}

func (o staticOracle) FetchLiveStock(ctx context.Context, productCode int, companyCode string) (decimal.Decimal, bool, error) {
	if err := utils.ValidateCompanyCode(companyCode); err != nil {
		return decimal.Zero, false, err
	}
	v, ok := o.stock[productCode]
	return v, ok, nil
}

type fixture struct {
	ctx       context.Context
	evaluator *models.DivergenceEvaluator
	ledger    *models.AuditLedger
	gate      *models.RoundGate
	counterA  *models.Collaborator
	counterB  *models.Collaborator
	system    *models.Collaborator
}

func newFixture(t *testing.T, oracle models.StockOracle) *fixture {
	t.Helper()
	if !integrationReady {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db := config.GetDB()
	evaluator := models.NewDivergenceEvaluator(db, oracle, logger)
	ledger := models.NewAuditLedger(db, evaluator, logger)
	f := &fixture{
		ctx:       ctx,
		evaluator: evaluator,
		ledger:    ledger,
		gate:      models.NewRoundGate(db, evaluator, ledger, logger),
		counterA:  mustCollaborator(t, ctx, "counter-a"),
		counterB:  mustCollaborator(t, ctx, "counter-b"),
		system:    mustCollaborator(t, ctx, "stock-system"),
	}
	ledger.SystemUserId = f.system.ID
	return f
}

func mustCollaborator(t *testing.T, ctx context.Context, name string) *models.Collaborator {
	t.Helper()
	name = fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
	c, err := models.CreateCollaborator(ctx, &models.NewCollaborator{Name: name})
	if err != nil {
		t.Fatalf("CreateCollaborator(%s): %v", name, err)
	}
	return c
}

func (f *fixture) openRound(t *testing.T, groupKey string, round int, items ...models.NewCountItemRow) *models.CountRound {
	t.Helper()
	r, err := models.CreateCountGroup(f.ctx, &models.NewCountGroup{
		CollaboratorName: f.counterA.Name,
		RoundNumber:      round,
		GroupKey:         groupKey,
		Floor:            "Ground",
		Items:            items,
	})
	if err != nil {
		t.Fatalf("CreateCountGroup(%s, %d): %v", groupKey, round, err)
	}
	return r
}

// openGroup creates all three rounds of a new group and returns them by round number.
func (f *fixture) openGroup(t *testing.T, items ...models.NewCountItemRow) map[int]*models.CountRound {
	t.Helper()
	groupKey := uuid.NewString()
	rounds := map[int]*models.CountRound{}
	for n := models.FirstRoundNumber; n <= models.FinalRoundNumber; n++ {
		rounds[n] = f.openRound(t, groupKey, n, items...)
	}
	return rounds
}

func (f *fixture) count(t *testing.T, round *models.CountRound, itemId int, userId int, qty int64) *models.CountLogEntry {
	t.Helper()
	entry, err := models.RecordCount(f.ctx, &models.NewCountLog{
		RoundId:    round.ID,
		ItemId:     itemId,
		UserId:     userId,
		CountedQty: decimal.NewFromInt(qty),
	})
	if err != nil {
		t.Fatalf("RecordCount(round=%d item=%d user=%d): %v", round.RoundNumber, itemId, userId, err)
	}
	return entry
}

func (f *fixture) close(t *testing.T, groupKey string, round int, clientFlag bool) *models.CountRound {
	t.Helper()
	r, err := f.gate.CloseRound(f.ctx, &models.CloseRoundInput{GroupKey: groupKey, RoundNumber: round, Divergence: clientFlag})
	if err != nil {
		t.Fatalf("CloseRound(%s, %d): %v", groupKey, round, err)
	}
	return r
}

func roundStates(t *testing.T, ctx context.Context, groupKey string) map[int]models.RoundState {
	t.Helper()
	var rounds []models.CountRound
	if err := config.GetDB().WithContext(ctx).Where("group_key = ?", groupKey).Find(&rounds).Error; err != nil {
		t.Fatalf("load rounds: %v", err)
	}
	states := map[int]models.RoundState{}
	for _, r := range rounds {
		states[r.RoundNumber] = r.RoundState()
	}
	return states
}

func reloadItem(t *testing.T, ctx context.Context, id int) models.CountItem {
	t.Helper()
	var item models.CountItem
	if err := config.GetDB().WithContext(ctx).Where("id = ?", id).Take(&item).Error; err != nil {
		t.Fatalf("reload item %d: %v", id, err)
	}
	return item
}

func itemRow(productCode int, date string, location string, snapshot float64) models.NewCountItemRow {
	return models.NewCountItemRow{
		ProductCode:   productCode,
		CountDate:     date,
		Description:   fmt.Sprintf("Product %d", productCode),
		Location:      location,
		StockSnapshot: snapshot,
	}
}

func TestIntegrationRoundsOnCreation(t *testing.T) {
	f := newFixture(t, nil)
	rounds := f.openGroup(t, itemRow(101, "2026-02-01", "A-01", 5))

	if len(rounds[1].Items) != 1 || len(rounds[3].Items) != 1 || rounds[1].Items[0].ID != rounds[3].Items[0].ID {
		t.Fatalf("items must be created once and shared by every round")
	}
	states := roundStates(t, f.ctx, rounds[1].GroupKey)
	if states[1] != models.RoundStateReleased || states[2] != models.RoundStateLocked || states[3] != models.RoundStateLocked {
		t.Fatalf("unexpected states on creation: %v", states)
	}

	again := f.openRound(t, rounds[2].GroupKey, 2)
	if again.ID != rounds[2].ID || again.IsReleased {
		t.Fatalf("re-submitting round 2 should return the existing locked round; got %+v", again)
	}

	if _, err := models.RecordCount(f.ctx, &models.NewCountLog{
		RoundId: rounds[2].ID, ItemId: rounds[2].Items[0].ID, UserId: f.counterA.ID, CountedQty: decimal.NewFromInt(1),
	}); !utils.IsConflictError(err) {
		t.Fatalf("counting a locked round should conflict; got %v", err)
	}
}

func TestIntegrationUnknownCollaboratorRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := models.CreateCountGroup(f.ctx, &models.NewCountGroup{
		CollaboratorName: "nobody-" + uuid.NewString(),
		RoundNumber:      1,
		Items:            []models.NewCountItemRow{itemRow(102, "2026-02-01", "A", 1)},
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected ValidationError; got %v", err)
	}
}

func TestIntegrationTwoSlotVersioning(t *testing.T) {
	f := newFixture(t, nil)
	date := "2026-02-02"
	base := models.BaseItemKey(201, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))

	var keys []string
	for i := 0; i < 3; i++ {
		r := f.openRound(t, uuid.NewString(), 1, itemRow(201, date, fmt.Sprintf("L%d", i), 3))
		keys = append(keys, r.Items[0].ItemKey)
	}
	want := []string{base, base, base + "-v2"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("sequential keys: got %v want %v", keys, want)
		}
	}

	// Concurrent creations for another product/day never share a slot.
	const groups = 3
	var wg sync.WaitGroup
	errs := make(chan error, groups)
	for i := 0; i < groups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := models.CreateCountGroup(f.ctx, &models.NewCountGroup{
				CollaboratorName: f.counterA.Name,
				RoundNumber:      1,
				Items:            []models.NewCountItemRow{itemRow(202, date, fmt.Sprintf("C%d", i), 3)},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent CreateCountGroup: %v", err)
		}
	}

	type usage struct {
		ItemKey string
		N       int
	}
	var rows []usage
	if err := config.GetDB().WithContext(f.ctx).Model(&models.CountItem{}).
		Select("item_key, COUNT(*) AS n").
		Where("product_code = ?", 202).
		Group("item_key").
		Order("item_key ASC").
		Scan(&rows).Error; err != nil {
		t.Fatalf("usage: %v", err)
	}
	base202 := models.BaseItemKey(202, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	if len(rows) != 2 || rows[0].ItemKey != base202 || rows[0].N != 2 || rows[1].ItemKey != base202+"-v2" || rows[1].N != 1 {
		t.Fatalf("unexpected slot usage: %+v", rows)
	}
}

func TestIntegrationResubmissionOverwrites(t *testing.T) {
	f := newFixture(t, nil)
	rounds := f.openGroup(t, itemRow(301, "2026-02-03", "B-02", 12))
	item := rounds[1].Items[0]

	first := f.count(t, rounds[1], item.ID, f.counterA.ID, 10)
	second := f.count(t, rounds[1], item.ID, f.counterA.ID, 7)
	if first.ID != second.ID {
		t.Fatalf("resubmission must keep one entry; ids %d and %d", first.ID, second.ID)
	}
	f.count(t, rounds[1], item.ID, f.counterB.ID, 5)

	sum, err := models.AggregateCounted(f.ctx, config.GetDB(), []string{item.ItemKey, item.ItemKey}, 1)
	if err != nil {
		t.Fatalf("AggregateCounted: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected 7+5=12; got %s", sum)
	}
	if _, err := models.RecordCount(f.ctx, &models.NewCountLog{
		RoundId: rounds[1].ID, ItemId: item.ID, UserId: f.counterA.ID, CountedQty: decimal.NewFromInt(-1),
	}); !utils.IsValidationError(err) {
		t.Fatalf("negative count should be rejected; got %v", err)
	}
}

func TestIntegrationCloseRoundOneExample(t *testing.T) {
	cases := []struct {
		name        string
		snapshot    float64
		product     int
		wantRelease bool
	}{
		{"matching stock keeps round 2 locked", 18, 401, false},
		{"divergent stock releases round 2", 20, 402, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rounds := f.openGroup(t, itemRow(tc.product, "2026-02-04", "C-03", tc.snapshot))
			item := rounds[1].Items[0]
			f.count(t, rounds[1], item.ID, f.counterA.ID, 10)
			f.count(t, rounds[1], item.ID, f.counterB.ID, 8)

			// The client denies divergence; the server decides.
			got := f.close(t, rounds[1].GroupKey, 1, false)
			states := roundStates(t, f.ctx, rounds[1].GroupKey)
			if states[1] != models.RoundStateLocked {
				t.Fatalf("closed round must be locked: %v", states)
			}
			reloaded := reloadItem(t, f.ctx, item.ID)
			if tc.wantRelease {
				if got == nil || got.RoundNumber != 2 || states[2] != models.RoundStateReleased {
					t.Fatalf("expected round 2 released; got %+v states %v", got, states)
				}
				if !reloaded.NeedsReview {
					t.Fatalf("divergent item must need review")
				}
			} else {
				if got == nil || got.RoundNumber != 1 || states[2] != models.RoundStateLocked {
					t.Fatalf("expected round 2 locked; got %+v states %v", got, states)
				}
				if reloaded.NeedsReview {
					t.Fatalf("matching item must not need review")
				}
			}
		})
	}
}

func TestIntegrationClientFlagReleasesNextRound(t *testing.T) {
	f := newFixture(t, nil)
	rounds := f.openGroup(t, itemRow(403, "2026-02-04", "C-04", 4))
	f.count(t, rounds[1], rounds[1].Items[0].ID, f.counterA.ID, 4)

	got := f.close(t, rounds[1].GroupKey, 1, true)
	if got == nil || got.RoundNumber != 2 || !got.IsReleased {
		t.Fatalf("client-asserted divergence should release round 2; got %+v", got)
	}
}

func TestIntegrationLiveStockRefreshesSnapshot(t *testing.T) {
	f := newFixture(t, staticOracle{stock: map[int]decimal.Decimal{404: decimal.NewFromInt(9)}})
	rounds := f.openGroup(t, itemRow(404, "2026-02-04", "C-05", 7))
	item := rounds[1].Items[0]
	f.count(t, rounds[1], item.ID, f.counterA.ID, 9)

	got := f.close(t, rounds[1].GroupKey, 1, false)
	if got == nil || got.RoundNumber != 1 {
		t.Fatalf("counted sum matches live stock; round 2 should stay locked; got %+v", got)
	}
	if reloaded := reloadItem(t, f.ctx, item.ID); !reloaded.StockSnapshot.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("live stock should be persisted onto the item; got %s", reloaded.StockSnapshot)
	}
}

func TestIntegrationMissingNextRoundReturnsNil(t *testing.T) {
	f := newFixture(t, nil)
	r1 := f.openRound(t, uuid.NewString(), 1, itemRow(405, "2026-02-04", "C-06", 3))
	got, err := f.gate.CloseRound(f.ctx, &models.CloseRoundInput{GroupKey: r1.GroupKey, RoundNumber: 1, Divergence: true})
	if err != nil {
		t.Fatalf("CloseRound: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil when round 2 was never created; got %+v", got)
	}
}

func TestIntegrationHybridTrustPolicy(t *testing.T) {
	f := newFixture(t, nil)
	rounds := f.openGroup(t,
		itemRow(501, "2026-02-05", "Shelf-1", 10),
		itemRow(501, "2026-02-05", "Shelf-2", 10),
	)
	items := rounds[1].Items
	if len(items) != 2 || items[0].ItemKey != items[1].ItemKey {
		t.Fatalf("two locations of one product should share a key: %+v", items)
	}
	key := items[0].ItemKey

	f.count(t, rounds[1], items[0].ID, f.counterA.ID, 4)
	got, err := f.evaluator.SetItemReviewFlag(f.ctx, key, true, items[0].ID)
	if err != nil {
		t.Fatalf("SetItemReviewFlag: %v", err)
	}
	if !got.NeedsReview || !reloadItem(t, f.ctx, items[1].ID).NeedsReview {
		t.Fatalf("partial count keeps the caller flag on every location")
	}

	f.count(t, rounds[1], items[1].ID, f.counterA.ID, 6)
	got, err = f.evaluator.SetItemReviewFlag(f.ctx, key, true, items[1].ID)
	if err != nil {
		t.Fatalf("SetItemReviewFlag: %v", err)
	}
	if got.NeedsReview {
		t.Fatalf("complete matching count overrides the caller flag")
	}

	f.count(t, rounds[1], items[1].ID, f.counterA.ID, 5)
	got, err = f.evaluator.SetItemReviewFlag(f.ctx, key, false, items[1].ID)
	if err != nil {
		t.Fatalf("SetItemReviewFlag: %v", err)
	}
	if !got.NeedsReview || !reloadItem(t, f.ctx, items[0].ID).NeedsReview {
		t.Fatalf("complete divergent count overrides the caller flag on every location")
	}

	if _, err := f.evaluator.SetItemReviewFlag(f.ctx, key+"-v9", true, items[0].ID); !utils.IsValidationError(err) {
		t.Fatalf("mismatched key should be rejected; got %v", err)
	}
}

func TestIntegrationDeleteGroup(t *testing.T) {
	f := newFixture(t, nil)

	empty := f.openGroup(t, itemRow(601, "2026-02-06", "D-1", 2))
	n, err := f.gate.DeleteGroup(f.ctx, empty[1].GroupKey)
	if err != nil || n != 3 {
		t.Fatalf("DeleteGroup(empty): n=%d err=%v", n, err)
	}
	states := roundStates(t, f.ctx, empty[1].GroupKey)
	for round, s := range states {
		if s != models.RoundStateDeleted {
			t.Fatalf("round %d not deleted: %v", round, states)
		}
	}
	if _, err := models.CreateCountGroup(f.ctx, &models.NewCountGroup{
		CollaboratorName: f.counterA.Name, RoundNumber: 1, GroupKey: empty[1].GroupKey,
	}); !utils.IsConflictError(err) {
		t.Fatalf("re-opening a deleted group should conflict; got %v", err)
	}

	started := f.openGroup(t, itemRow(602, "2026-02-06", "D-2", 2))
	f.count(t, started[1], started[1].Items[0].ID, f.counterA.ID, 1)
	if _, err := f.gate.DeleteGroup(f.ctx, started[1].GroupKey); !utils.IsConflictError(err) {
		t.Fatalf("deleting a started group should conflict; got %v", err)
	}
	states = roundStates(t, f.ctx, started[1].GroupKey)
	if len(states) != 3 || states[1] == models.RoundStateDeleted || states[2] == models.RoundStateDeleted || states[3] == models.RoundStateDeleted {
		t.Fatalf("no round of a started group may be deleted: %v", states)
	}
}

// walkToFinalRound counts round 1 and 2 off the snapshot so both closes release the next round.
func (f *fixture) walkToFinalRound(t *testing.T, rounds map[int]*models.CountRound, finalQty int64) {
	t.Helper()
	item := rounds[1].Items[0]
	f.count(t, rounds[1], item.ID, f.counterA.ID, item.StockSnapshot.IntPart()-2)
	if r := f.close(t, rounds[1].GroupKey, 1, false); r == nil || r.RoundNumber != 2 {
		t.Fatalf("round 2 not released: %+v", r)
	}
	f.count(t, rounds[2], item.ID, f.counterB.ID, item.StockSnapshot.IntPart()-1)
	if r := f.close(t, rounds[1].GroupKey, 2, false); r == nil || r.RoundNumber != 3 {
		t.Fatalf("round 3 not released: %+v", r)
	}
	f.count(t, rounds[3], item.ID, f.counterA.ID, finalQty)
}

func activeAudits(t *testing.T, ctx context.Context, productCode int) []models.AuditRecord {
	t.Helper()
	var audits []models.AuditRecord
	if err := config.GetDB().WithContext(ctx).
		Where("product_code = ? AND status = ?", productCode, models.AuditStatusActive).
		Find(&audits).Error; err != nil {
		t.Fatalf("load audits: %v", err)
	}
	return audits
}

func TestIntegrationFinalRoundAutoResolvesOnce(t *testing.T) {
	f := newFixture(t, nil)
	rounds := f.openGroup(t, itemRow(701, "2026-02-07", "E-1", 10))
	f.walkToFinalRound(t, rounds, 10)

	closed := f.close(t, rounds[1].GroupKey, 3, false)
	if closed == nil || closed.RoundNumber != 3 || closed.IsReleased {
		t.Fatalf("closing round 3 returns it locked; got %+v", closed)
	}
	states := roundStates(t, f.ctx, rounds[1].GroupKey)
	for round, s := range states {
		if s == models.RoundStateReleased {
			t.Fatalf("round %d still released after the final close: %v", round, states)
		}
	}

	// A second close must not file another audit.
	f.close(t, rounds[1].GroupKey, 3, false)

	audits := activeAudits(t, f.ctx, 701)
	if len(audits) != 1 {
		t.Fatalf("expected exactly one automatic audit; got %d", len(audits))
	}
	a := audits[0]
	if a.MovementKind != models.AuditMovementCorrect || !a.FlaggedDifference.IsZero() || a.UserId != f.system.ID {
		t.Fatalf("unexpected automatic audit: %+v", a)
	}
	if a.Note == nil || *a.Note != models.AutoResolveNote {
		t.Fatalf("automatic audit note: %v", a.Note)
	}

	var outbox int64
	if err := config.GetDB().WithContext(f.ctx).Model(&models.AuditOutboxRecord{}).
		Where("audit_id = ? AND action = ?", a.ID, models.AuditOutboxActionCreate).
		Count(&outbox).Error; err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if outbox != 1 {
		t.Fatalf("expected one outbox row for the audit; got %d", outbox)
	}
}

func TestIntegrationFinalRoundDivergenceIsNotAutoResolved(t *testing.T) {
	f := newFixture(t, nil)
	rounds := f.openGroup(t, itemRow(702, "2026-02-07", "E-2", 10))
	f.walkToFinalRound(t, rounds, 7)
	f.close(t, rounds[1].GroupKey, 3, false)

	if audits := activeAudits(t, f.ctx, 702); len(audits) != 0 {
		t.Fatalf("divergent final round must wait for a manual audit; got %+v", audits)
	}

	pending, err := f.ledger.PendingReview(f.ctx, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatalf("PendingReview: %v", err)
	}
	var entry *models.PendingReviewItem
	for _, p := range pending {
		if p.ProductCode == 702 {
			entry = p
		}
	}
	if entry == nil {
		t.Fatalf("product 702 missing from pending review: %+v", pending)
	}
	if entry.AlreadyAudited || !entry.Differences[3].Equal(decimal.NewFromInt(-3)) {
		t.Fatalf("unexpected pending entry: audited=%t diff3=%s", entry.AlreadyAudited, entry.Differences[3])
	}
	if len(entry.History[1].Logs) != 1 || !entry.History[2].Total.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("unexpected history: %+v", entry.History)
	}
	if entry.Floor == nil || *entry.Floor != "Ground" {
		t.Fatalf("floor: %v", entry.Floor)
	}

	onOtherFloor, err := f.ledger.PendingReview(f.ctx, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), "Roof-"+uuid.NewString()[:6])
	if err != nil || len(onOtherFloor) != 0 {
		t.Fatalf("floor filter: %v %+v", err, onOtherFloor)
	}

	audit, err := f.ledger.Submit(f.ctx, &models.NewAudit{
		GroupKey:     rounds[1].GroupKey,
		ProductCode:  702,
		MovementKind: models.AuditMovementReduce,
		Quantity:     decimal.NewFromInt(3),
		UserId:       f.counterB.ID,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pending, err = f.ledger.PendingReview(f.ctx, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatalf("PendingReview: %v", err)
	}
	entry = nil
	for _, p := range pending {
		if p.ProductCode == 702 {
			entry = p
		}
	}
	if entry == nil || !entry.AlreadyAudited || entry.AuditId == nil || *entry.AuditId != audit.ID {
		t.Fatalf("audited product should carry its audit: %+v", entry)
	}
}

func TestIntegrationAuditLedger(t *testing.T) {
	f := newFixture(t, nil)
	date := "2026-02-08"
	groupA := f.openRound(t, uuid.NewString(), 1, itemRow(801, date, "F-1", 5))
	// A second group counting the same product/day shares the item key.
	groupB := f.openRound(t, uuid.NewString(), 1, itemRow(801, date, "F-2", 5))
	if groupA.Items[0].ItemKey != groupB.Items[0].ItemKey {
		t.Fatalf("groups should share the item key")
	}

	cases := []struct {
		kind          models.AuditMovementKind
		qty           int64
		wantFlagged   int64
		wantMagnitude int64
	}{
		{models.AuditMovementReduce, 5, -5, 5},
		{models.AuditMovementInclude, 5, 5, 5},
		{models.AuditMovementCorrect, -5, 0, 0},
	}
	var last *models.AuditRecord
	for _, tc := range cases {
		if last != nil {
			if _, err := f.ledger.Void(f.ctx, last.ID, f.counterA.ID); err != nil {
				t.Fatalf("Void: %v", err)
			}
		}
		audit, err := f.ledger.Submit(f.ctx, &models.NewAudit{
			GroupKey:     groupA.GroupKey,
			ProductCode:  801,
			MovementKind: tc.kind,
			Quantity:     decimal.NewFromInt(tc.qty),
			Note:         "shelf recount",
			UserId:       f.counterA.ID,
		})
		if err != nil {
			t.Fatalf("Submit(%s): %v", tc.kind, err)
		}
		if !audit.FlaggedDifference.Equal(decimal.NewFromInt(tc.wantFlagged)) || !audit.MovementQty.Equal(decimal.NewFromInt(tc.wantMagnitude)) {
			t.Fatalf("%s %d: flagged=%s qty=%s", tc.kind, tc.qty, audit.FlaggedDifference, audit.MovementQty)
		}
		last = audit
	}

	if _, err := f.ledger.Submit(f.ctx, &models.NewAudit{
		GroupKey: groupB.GroupKey, ProductCode: 801, MovementKind: models.AuditMovementInclude,
		Quantity: decimal.NewFromInt(1), UserId: f.counterB.ID,
	}); !utils.IsConflictError(err) {
		t.Fatalf("a sibling group must not get a second active audit; got %v", err)
	}

	history, err := f.ledger.History(f.ctx, 801)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != last.ID {
		t.Fatalf("history should hold only the active audit: %+v", history)
	}

	if _, err := f.ledger.Void(f.ctx, last.ID, f.counterA.ID); err != nil {
		t.Fatalf("Void: %v", err)
	}
	if _, err := f.ledger.Void(f.ctx, last.ID, f.counterA.ID); !utils.IsConflictError(err) {
		t.Fatalf("voiding twice should conflict; got %v", err)
	}
	if _, err := f.ledger.Submit(f.ctx, &models.NewAudit{
		GroupKey: groupA.GroupKey, ProductCode: 801, MovementKind: "MOVE", UserId: f.counterA.ID,
	}); !utils.IsValidationError(err) {
		t.Fatalf("unknown movement kind should be rejected; got %v", err)
	}
	if _, err := f.ledger.Submit(f.ctx, &models.NewAudit{
		GroupKey: groupA.GroupKey, ProductCode: 801, MovementKind: models.AuditMovementReduce, UserId: 0,
	}); !utils.IsValidationError(err) {
		t.Fatalf("unknown user should be rejected; got %v", err)
	}
}

func TestIntegrationCrossedGroupsDoNotDeadlock(t *testing.T) {
	f := newFixture(t, nil)
	date := "2026-02-09"
	day := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)

	// Groups list the same two products in opposite order.
	const groups = 6
	var wg sync.WaitGroup
	errs := make(chan error, groups)
	created := make(chan *models.CountRound, groups)
	for i := 0; i < groups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []models.NewCountItemRow{
				itemRow(901, date, fmt.Sprintf("G%d-a", i), 4),
				itemRow(902, date, fmt.Sprintf("G%d-b", i), 4),
			}
			if i%2 == 1 {
				items[0], items[1] = items[1], items[0]
			}
			r, err := models.CreateCountGroup(f.ctx, &models.NewCountGroup{
				CollaboratorName: f.counterA.Name,
				RoundNumber:      1,
				Items:            items,
			})
			errs <- err
			created <- r
		}(i)
	}
	wg.Wait()
	close(errs)
	close(created)
	for err := range errs {
		if err != nil {
			t.Fatalf("crossed CreateCountGroup: %v", err)
		}
	}
	for r := range created {
		if len(r.Items) != 2 || r.Items[0].ProductCode != 901 || r.Items[1].ProductCode != 902 {
			t.Fatalf("group %s items: %+v", r.GroupKey, r.Items)
		}
	}

	for _, product := range []int{901, 902} {
		type usage struct {
			ItemKey string
			N       int
		}
		var rows []usage
		if err := config.GetDB().WithContext(f.ctx).Model(&models.CountItem{}).
			Select("item_key, COUNT(*) AS n").
			Where("product_code = ?", product).
			Group("item_key").
			Order("item_key ASC").
			Scan(&rows).Error; err != nil {
			t.Fatalf("usage: %v", err)
		}
		base := models.BaseItemKey(product, day)
		want := []string{base, base + "-v2", base + "-v3"}
		if len(rows) != len(want) {
			t.Fatalf("product %d slot usage: %+v", product, rows)
		}
		for i, row := range rows {
			if row.ItemKey != want[i] || row.N != models.MaxItemsPerKey {
				t.Fatalf("product %d slot usage: %+v", product, rows)
			}
		}
	}
}

func TestIntegrationInactiveCollaboratorRejected(t *testing.T) {
	f := newFixture(t, nil)
	rounds := f.openGroup(t, itemRow(1001, "2026-02-10", "H-1", 6))
	item := rounds[1].Items[0]
	audit, err := f.ledger.Submit(f.ctx, &models.NewAudit{
		GroupKey: rounds[1].GroupKey, ProductCode: 1001, MovementKind: models.AuditMovementInclude,
		Quantity: decimal.NewFromInt(1), UserId: f.counterA.ID,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	retired := mustCollaborator(t, f.ctx, "retired")
	if _, err := models.ToggleActiveCollaborator(f.ctx, retired.ID, false); err != nil {
		t.Fatalf("ToggleActiveCollaborator: %v", err)
	}

	if _, err := models.RecordCount(f.ctx, &models.NewCountLog{
		RoundId: rounds[1].ID, ItemId: item.ID, UserId: retired.ID, CountedQty: decimal.NewFromInt(6),
	}); !utils.IsValidationError(err) {
		t.Fatalf("RecordCount by an inactive collaborator: got %v", err)
	}
	if _, err := f.ledger.Submit(f.ctx, &models.NewAudit{
		GroupKey: rounds[1].GroupKey, ProductCode: 1001, MovementKind: models.AuditMovementReduce,
		Quantity: decimal.NewFromInt(1), UserId: retired.ID,
	}); !utils.IsValidationError(err) {
		t.Fatalf("Submit by an inactive collaborator: got %v", err)
	}
	if _, err := f.ledger.Void(f.ctx, audit.ID, retired.ID); !utils.IsValidationError(err) {
		t.Fatalf("Void by an inactive collaborator: got %v", err)
	}

	if _, err := models.ToggleActiveCollaborator(f.ctx, retired.ID, true); err != nil {
		t.Fatalf("ToggleActiveCollaborator: %v", err)
	}
	f.count(t, rounds[1], item.ID, retired.ID, 6)
}

func startRedisContainer() (containerName, hostPort string, err error) {
	name := fmt.Sprintf("stockcount-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		return "", "", fmt.Errorf("start redis container: %w\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		_ = dockerRmForce(name)
		return "", "", fmt.Errorf("redis docker port: %w", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "redis-cli", "ping"); err == nil {
			return name, port, nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	_ = dockerRmForce(name)
	return "", "", fmt.Errorf("redis did not become ready")
}

func startMySQLContainer() (containerName, hostPort string, err error) {
	name := fmt.Sprintf("stockcount-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=stockcount_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		return "", "", fmt.Errorf("start mysql container: %w\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		_ = dockerRmForce(name)
		return "", "", fmt.Errorf("mysql docker port: %w", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	_ = dockerRmForce(name)
	return "", "", fmt.Errorf("mysql did not become ready")
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
