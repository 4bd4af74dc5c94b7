package cart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/gemstore/internal/domain/money"
)

func TestSummarize(t *testing.T) {
	lines := []Line{
		{ItemID: 1, Quantity: 2, UnitPrice: 1999},
		{ItemID: 2, Quantity: 1, UnitPrice: 599},
	}

	s, err := Summarize("sess-1", lines)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, money.Cents(4597), s.Subtotal)
	assert.Equal(t, 3, s.ItemCount)
	assert.Len(t, s.Lines, 2)
}

func TestSummarize_Empty(t *testing.T) {
	s, err := Summarize("sess-1", nil)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), s.Subtotal)
	assert.Zero(t, s.ItemCount)
}

func TestSummarize_Overflow(t *testing.T) {
	_, err := Summarize("sess-1", []Line{{ItemID: 1, Quantity: 3, UnitPrice: math.MaxInt64 / 2}})
	require.ErrorIs(t, err, money.ErrOverflow)
}

func TestValidateSession(t *testing.T) {
	require.ErrorIs(t, ValidateSession(""), ErrInvalidSession)
	require.ErrorIs(t, ValidateSession("  "), ErrInvalidSession)
	require.NoError(t, ValidateSession("abc"))
}

func TestValidateQuantity(t *testing.T) {
	for _, qty := range []int{0, -1, MaxQuantity + 1, math.MaxInt} {
		assert.ErrorIs(t, ValidateQuantity(qty), ErrInvalidQuantity, "qty %d", qty)
	}
	for _, qty := range []int{1, 3, MaxQuantity} {
		assert.NoError(t, ValidateQuantity(qty), "qty %d", qty)
	}
}
