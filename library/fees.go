package library

import "github.com/shopspring/decimal"

// Late fee schedule: a small daily charge for the first week of lateness,
// then a steep daily charge with no cap.
const lowRateDays = 6

var (
	lowDailyFee  = decimal.RequireFromString("0.25")
	highDailyFee = decimal.RequireFromString("2.00")
)

// ComputeLateFee returns the whole days between due and returned and the
// fee owed for them. Returning on or before the due date costs nothing.
func ComputeLateFee(due, returned Date) (int, decimal.Decimal) {
	if !returned.After(due) {
		return 0, decimal.Zero
	}
	daysLate := returned.DaysSince(due)
	if daysLate <= lowRateDays {
		return daysLate, lowDailyFee.Mul(decimal.NewFromInt(int64(daysLate))).Round(2)
	}
	fee := lowDailyFee.Mul(decimal.NewFromInt(lowRateDays)).
		Add(highDailyFee.Mul(decimal.NewFromInt(int64(daysLate - lowRateDays))))
	return daysLate, fee.Round(2)
}

// Fee is a late fee that is absent until the lending is returned. It embeds
// decimal.NullDecimal for scanning and always marshals with two decimals.
type Fee struct {
	decimal.NullDecimal
}

// NewFee returns a present fee of d.
func NewFee(d decimal.Decimal) Fee {
	return Fee{decimal.NewNullDecimal(d)}
}

// String renders the fee with two decimals, or "" when absent.
func (f Fee) String() string {
	if !f.Valid {
		return ""
	}
	return f.Decimal.StringFixed(2)
}

// MarshalJSON writes "19.50" rather than the trimmed "19.5", and null when
// the fee is absent.
func (f Fee) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(`"` + f.Decimal.StringFixed(2) + `"`), nil
}
