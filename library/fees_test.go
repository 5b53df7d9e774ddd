package library

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLateFee(t *testing.T) {
	due := NewDate(2024, 1, 15)

	tests := []struct {
		name     string
		returned Date
		wantDays int
		wantFee  string
	}{
		{"early", NewDate(2024, 1, 10), 0, "0.00"},
		{"on due date", due, 0, "0.00"},
		{"one day", NewDate(2024, 1, 16), 1, "0.25"},
		{"four days", NewDate(2024, 1, 19), 4, "1.00"},
		{"six days", NewDate(2024, 1, 21), 6, "1.50"},
		{"seven days", NewDate(2024, 1, 22), 7, "3.50"},
		{"fifteen days", NewDate(2024, 1, 30), 15, "19.50"},
		{"across month end", NewDate(2024, 2, 14), 30, "49.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, fee := ComputeLateFee(due, tt.returned)
			assert.Equal(t, tt.wantDays, days)
			assert.Equal(t, tt.wantFee, fee.StringFixed(2))
		})
	}
}

func TestComputeLateFeeIsMonotonic(t *testing.T) {
	due := NewDate(2024, 2, 20)
	prev := decimal.Zero
	for n := 0; n <= 60; n++ {
		days, fee := ComputeLateFee(due, due.AddDays(n))
		assert.Equal(t, n, days)
		assert.Falsef(t, fee.LessThan(prev), "fee decreased at %d days late: %s < %s", n, fee, prev)
		assert.False(t, fee.IsNegative())
		prev = fee
	}
}

func TestFeeJSONKeepsTwoDecimals(t *testing.T) {
	for _, want := range []string{"19.50", "3.50", "0.00", "1.25"} {
		b, err := json.Marshal(NewFee(decimal.RequireFromString(want)))
		require.NoError(t, err)
		assert.Equal(t, `"`+want+`"`, string(b))
	}

	b, err := json.Marshal(CheckoutRecord{CheckOutDate: NewDate(2024, 1, 1)})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"late_fee":null`)

	_, fee := ComputeLateFee(NewDate(2024, 1, 15), NewDate(2024, 1, 30))
	b, err = json.Marshal(ReturnReceipt{CheckoutRecord: CheckoutRecord{LateFee: NewFee(fee)}, DaysLate: 15})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"late_fee":"19.50"`)

	var back Lending
	require.NoError(t, json.Unmarshal([]byte(`{"late_fee":"19.50"}`), &back))
	assert.True(t, back.LateFee.Valid)
	assert.Equal(t, "19.50", back.LateFee.String())
}
