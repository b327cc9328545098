package utils

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Int64ToStr converts an int64 to its string representation.
func Int64ToStr(num int64) string {
	return strconv.FormatInt(num, 10)
}

// StrToPositiveInt64 is used for path ids.
func StrToPositiveInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// MoneyString renders an amount with exactly two decimals.
func MoneyString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// TiyinToSum converts minor units (1/100) to a decimal amount.
func TiyinToSum(tiyin int64) decimal.Decimal {
	return decimal.New(tiyin, -2)
}

// SumToTiyin converts a decimal amount to minor units.
func SumToTiyin(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
