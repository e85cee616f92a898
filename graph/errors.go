package graph

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/stockoracle"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ErrorPresenter maps the domain error taxonomy onto extension codes. Unclassified resolver
// errors are logged and masked behind the correlation id.
func ErrorPresenter(ctx context.Context, err error) *gqlerror.Error {
	gqlErr := graphql.DefaultErrorPresenter(ctx, err)

	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve):
		setExtension(gqlErr, "code", "BAD_USER_INPUT")
		if ve.Field != "" {
			setExtension(gqlErr, "field", ve.Field)
		}
	case utils.IsConflictError(err):
		setExtension(gqlErr, "code", "CONFLICT")
	case errors.Is(err, utils.ErrorRecordNotFound):
		setExtension(gqlErr, "code", "NOT_FOUND")
	case errors.Is(err, stockoracle.ErrNotConfigured):
		setExtension(gqlErr, "code", "UNAVAILABLE")
	default:
		// parse, validation and directive errors already speak GraphQL
		var known *gqlerror.Error
		if errors.As(err, &known) {
			return gqlErr
		}
		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		config.RequestLogger(ctx).WithField("path", gqlErr.Path.String()).Error(err.Error())
		gqlErr.Message = "internal server error"
		setExtension(gqlErr, "code", "INTERNAL")
		setExtension(gqlErr, "correlation_id", cid)
	}
	return gqlErr
}

// RecoverFunc turns a resolver panic into a masked internal error.
func RecoverFunc(ctx context.Context, p interface{}) error {
	config.RequestLogger(ctx).WithField("panic", fmt.Sprint(p)).Error("resolver panic")
	return errors.New("internal server error")
}

func setExtension(e *gqlerror.Error, key string, value interface{}) {
	if e.Extensions == nil {
		e.Extensions = map[string]interface{}{}
	}
	e.Extensions[key] = value
}
