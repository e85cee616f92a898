package graph

import (
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	_ "github.com/99designs/gqlgen/plugin"
	"go.opentelemetry.io/otel/trace"
)

//go:generate go run github.com/99designs/gqlgen
// This file will not be regenerated automatically.
//
// It serves as dependency injection for your app, add any dependencies you require here.

// Services are the wired reconciliation components. They exist once the database is up.
type Services struct {
	Oracle    models.StockOracle
	Evaluator *models.DivergenceEvaluator
	Ledger    *models.AuditLedger
	Gate      *models.RoundGate
}

type Resolver struct {
	Tracer   trace.Tracer
	Services func() *Services
}
