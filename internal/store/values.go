package store

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
)

// normalize converts driver-specific values into the small set of types
// the file writer knows how to render: strings, numbers, bools, times,
// decimal.Decimal and nil.
func normalize(v any, dbType string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case pgtype.Numeric:
		return numericValue(x)
	case duckdb.Decimal:
		if x.Value == nil {
			return nil
		}
		return decimal.NewFromBigInt(x.Value, -int32(x.Scale))
	case *big.Int:
		return decimal.NewFromBigInt(x, 0)
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		if dbType == "UUID" && len(x) == 16 {
			return uuid.UUID(x).String()
		}
		return string(x)
	case pgtype.Interval:
		if !x.Valid {
			return nil
		}
		v, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		return v
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d microseconds", x.Months, x.Days, x.Micros)
	}
	if s, ok := v.(fmt.Stringer); ok && dbType == "UUID" {
		return s.String()
	}
	return v
}

func numericValue(n pgtype.Numeric) any {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	case n.Int == nil:
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
