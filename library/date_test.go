package library

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.February, 29), d)

	for _, bad := range []string{"", "2024-13-01", "2023-02-29", "01/02/2024"} {
		_, err := ParseDate(bad)
		assert.ErrorIsf(t, err, ErrInvalidInput, "input %q", bad)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := MustParseDate("2024-12-25")
	assert.Equal(t, "2025-01-08", d.AddDays(14).String())
	assert.Equal(t, 14, d.AddDays(14).DaysSince(d))
	assert.Equal(t, -3, d.AddDays(-3).DaysSince(d))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.True(t, d.Equal(MustParseDate("2024-12-25")))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-01-15"))
	assert.Equal(t, "2024-01-15", d.String())

	require.NoError(t, d.Scan([]byte("2024-01-16")))
	assert.Equal(t, "2024-01-16", d.String())

	require.NoError(t, d.Scan(time.Date(2024, 1, 17, 13, 45, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-17", d.String())

	require.NoError(t, d.Scan("2024-01-18 00:00:00+00:00"))
	assert.Equal(t, "2024-01-18", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Due Date `json:"due"`
	}{MustParseDate("2024-03-05")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-03-05"}`, string(b))

	var in struct {
		Due Date `json:"due"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-03-06"}`), &in))
	assert.Equal(t, "2024-03-06", in.Due.String())
	assert.Error(t, json.Unmarshal([]byte(`{"due":"tomorrow"}`), &in))
}
