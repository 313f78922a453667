package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsErrorRepeat(t *testing.T) {
	ms := &MYSQLStore{}

	assert.True(t, ms.IsErrorRepeat(&mysql.MySQLError{Number: 1213}), "deadlock retries")
	assert.True(t, ms.IsErrorRepeat(&mysql.MySQLError{Number: 1205}), "lock wait timeout retries")
	assert.True(t, ms.IsErrorRepeat(fmt.Errorf("stock view: %w", &mysql.MySQLError{Number: 1213})),
		"wrapped driver errors still classify")

	assert.False(t, ms.IsErrorRepeat(&mysql.MySQLError{Number: 1062}))
	assert.False(t, ms.IsErrorRepeat(errors.New("connection refused")))
	assert.False(t, ms.IsErrorRepeat(nil))
}

func TestToDecimal(t *testing.T) {
	cases := []struct {
		in   any
		want decimal.Decimal
	}{
		{in: nil, want: decimal.Zero},
		{in: []byte("123.45"), want: decimal.NewFromFloat(123.45)},
		{in: "67.8", want: decimal.NewFromFloat(67.8)},
		{in: int64(42), want: decimal.NewFromInt(42)},
		{in: 3.5, want: decimal.NewFromFloat(3.5)},
	}
	for _, tc := range cases {
		got, err := toDecimal(tc.in)
		require.NoError(t, err, "%v", tc.in)
		assert.True(t, tc.want.Equal(got), "%v: got %s", tc.in, got)
	}

	_, err := toDecimal([]byte("not a number"))
	assert.Error(t, err)

	_, err = toDecimal(struct{}{})
	assert.Error(t, err)
}
