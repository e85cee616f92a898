package stockoracle

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNotConfigured = errors.New("erp database is not configured")

// defaultStockQuery reads the available stock of one product from the ERP stock ledger.
// Placeholders: company code, product code. Override with ERP_STOCK_QUERY for other schemas.
const defaultStockQuery = `SELECT MAX(p.available_stock)
FROM stock_entries e
JOIN products p ON p.product_code = e.product_code AND p.company = e.company
WHERE e.company = ? AND p.product_code = ?
GROUP BY p.product_code`

var tracer = otel.Tracer("stockoracle")

// ERPOracle runs the single-row live stock lookup against the legacy ERP.
type ERPOracle struct {
	DB    *sql.DB
	Query string
}

var _ models.StockOracle = (*ERPOracle)(nil)

// NewERPOracle uses ERP_STOCK_QUERY when set, the stock ledger query otherwise.
func NewERPOracle(db *sql.DB) *ERPOracle {
	query := strings.TrimSpace(os.Getenv("ERP_STOCK_QUERY"))
	if query == "" {
		query = defaultStockQuery
	}
	return &ERPOracle{DB: db, Query: query}
}

func (o *ERPOracle) FetchLiveStock(ctx context.Context, productCode int, companyCode string) (decimal.Decimal, bool, error) {
	if err := utils.ValidateCompanyCode(companyCode); err != nil {
		return decimal.Zero, false, err
	}
	ctx, span := tracer.Start(ctx, "stockoracle.FetchLiveStock",
		trace.WithAttributes(
			attribute.Int("product_code", productCode),
			attribute.String("company_code", companyCode),
		),
	)
	defer span.End()

	if o.DB == nil {
		span.SetStatus(codes.Error, "not configured")
		return decimal.Zero, false, ErrNotConfigured
	}

	var stock decimal.NullDecimal
	err := o.DB.QueryRowContext(ctx, o.Query, companyCode, productCode).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			span.SetAttributes(attribute.Bool("found", false))
			return decimal.Zero, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return decimal.Zero, false, err
	}
	if !stock.Valid {
		span.SetAttributes(attribute.Bool("found", false))
		return decimal.Zero, false, nil
	}
	span.SetAttributes(attribute.Bool("found", true))
	return stock.Decimal, true, nil
}
