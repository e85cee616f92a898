package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
)

func MarshalDecimal(d decimal.Decimal) graphql.Marshaler {
	return graphql.WriterFunc(func(w io.Writer) {
		w.Write([]byte(d.String()))
	})
}

// UnmarshalDecimal accepts JSON numbers and numeric strings. Counting devices send
// quantities like "1,250" or " 12.5 ", so grouping commas and blanks are dropped.
func UnmarshalDecimal(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.ReplaceAll(v, ",", "")
		s = strings.ReplaceAll(s, " ", "")
		d, err := utils.ParseDecimal(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", v)
		}
		return d, nil
	case json.Number:
		d, err := utils.ParseDecimal(v.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", v.String())
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, fmt.Errorf("invalid decimal value of type %T", i)
	}
}
