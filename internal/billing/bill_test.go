package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_pos_backend/internal/models"
)

func book(barcode, price string, quantity int) models.Book {
	return models.Book{Barcode: barcode, Name: "Book " + barcode, Price: decimal.RequireFromString(price), Quantity: quantity}
}

func TestAddIsCappedByStock(t *testing.T) {
	for stock := 0; stock <= 5; stock++ {
		for calls := 1; calls <= 7; calls++ {
			var bill Bill
			b := book("A1", "10.00", stock)
			failures := 0
			for i := 0; i < calls; i++ {
				if err := bill.Add(b); err != nil {
					require.ErrorIs(t, err, ErrOutOfStock)
					failures++
				}
			}
			want := calls
			if want > stock {
				want = stock
			}
			assert.Equal(t, want, bill.Quantity("A1"), "stock=%d calls=%d", stock, calls)
			assert.Equal(t, calls-want, failures, "stock=%d calls=%d", stock, calls)
		}
	}
}

func TestAddSnapshotsPrice(t *testing.T) {
	var bill Bill
	b := book("A1", "10.00", 5)
	require.NoError(t, bill.Add(b))

	b.Price = decimal.RequireFromString("12.50")
	require.NoError(t, bill.Add(b))

	lines := bill.Lines()
	require.Len(t, lines, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(lines[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("20.00").Equal(bill.Total()))
}

func TestTotalHasNoDrift(t *testing.T) {
	var bill Bill
	for i := 0; i < 3; i++ {
		require.NoError(t, bill.Add(book("X", "0.10", 10)))
	}
	require.NoError(t, bill.Add(book("Y", "0.20", 10)))
	assert.Equal(t, "0.5", bill.Total().String())

	before := bill.Total()
	require.NoError(t, bill.Add(book("Z", "19.99", 1)))
	bill.Remove("Z")
	assert.True(t, before.Equal(bill.Total()))
}

func TestChangeQuantity(t *testing.T) {
	var bill Bill
	require.NoError(t, bill.Add(book("A1", "10.00", 5)))
	require.NoError(t, bill.Add(book("B2", "3.00", 5)))

	bill.ChangeQuantity("A1", 3)
	assert.Equal(t, 4, bill.Quantity("A1"))

	bill.ChangeQuantity("A1", -1)
	assert.Equal(t, 3, bill.Quantity("A1"))

	bill.ChangeQuantity("A1", -3)
	assert.Equal(t, 0, bill.Quantity("A1"))
	assert.Equal(t, 1, bill.Len())

	bill.ChangeQuantity("B2", -10)
	assert.Equal(t, 0, bill.Len())

	bill.ChangeQuantity("missing", 1)
	assert.Equal(t, 0, bill.Len())
}

func TestRemoveIsIdempotent(t *testing.T) {
	var bill Bill
	require.NoError(t, bill.Add(book("A1", "10.00", 1)))
	bill.Remove("A1")
	bill.Remove("A1")
	assert.Equal(t, 0, bill.Len())
	assert.True(t, bill.Total().IsZero())
}

func TestLinesReturnsCopyInOrder(t *testing.T) {
	var bill Bill
	require.NoError(t, bill.Add(book("B", "1.00", 1)))
	require.NoError(t, bill.Add(book("A", "1.00", 1)))

	lines := bill.Lines()
	assert.Equal(t, "B", lines[0].Barcode)
	assert.Equal(t, "A", lines[1].Barcode)

	lines[0].Quantity = 99
	assert.Equal(t, 1, bill.Quantity("B"))

	bill.Clear()
	assert.Empty(t, bill.Lines())
}
