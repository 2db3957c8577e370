package postgres

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NUMERIC(78,0) columns travel as strings: selects cast with ::text and
// inserts pass decimal strings, which the server parses. This keeps uint256
// quantities exact end to end.

func parseBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: parse numeric %q", s)
	}
	return v, nil
}

func parseBigIntPtr(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseBigInt(*s)
}

func parseDecimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse decimal %q: %w", *s, err)
	}
	return &d, nil
}

// bigIntArg renders a *big.Int as an insert argument, mapping nil to NULL.
func bigIntArg(v *big.Int) any {
	if v == nil {
		return nil
	}
	return v.String()
}

// decimalArg renders a *decimal.Decimal as an insert argument, mapping nil
// to NULL.
func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// numericStrArg renders a decimal-string argument, mapping "" to NULL.
func numericStrArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}
