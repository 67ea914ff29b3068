// Package billing holds the in-progress bill of one operator. It performs no I/O;
// stock is checked against the Book value handed to Add.
package billing

import (
	"errors"

	"github.com/shopspring/decimal"

	"library_pos_backend/internal/models"
)

// ErrOutOfStock is returned when a line would exceed the book's available quantity.
var ErrOutOfStock = errors.New("not enough stock")

// Bill is an ordered list of line items, at most one line per barcode.
// The zero value is an empty bill. Bill is not safe for concurrent use.
type Bill struct {
	lines []models.BillLineItem
}

func (b *Bill) index(barcode string) int {
	for i := range b.lines {
		if b.lines[i].Barcode == barcode {
			return i
		}
	}
	return -1
}

// Add puts one more copy of book on the bill. A new line snapshots the book's
// current price.
func (b *Bill) Add(book models.Book) error {
	i := b.index(book.Barcode)
	if i < 0 {
		if book.Quantity < 1 {
			return ErrOutOfStock
		}
		b.lines = append(b.lines, models.BillLineItem{
			Barcode:   book.Barcode,
			Name:      book.Name,
			UnitPrice: book.Price,
			Quantity:  1,
		})
		return nil
	}
	if b.lines[i].Quantity+1 > book.Quantity {
		return ErrOutOfStock
	}
	b.lines[i].Quantity++
	return nil
}

// ChangeQuantity adds delta to the line for barcode, dropping the line when the
// result is not positive. Unknown barcodes are ignored.
func (b *Bill) ChangeQuantity(barcode string, delta int) {
	i := b.index(barcode)
	if i < 0 {
		return
	}
	if b.lines[i].Quantity+delta <= 0 {
		b.removeAt(i)
		return
	}
	b.lines[i].Quantity += delta
}

// Remove drops the line for barcode if there is one.
func (b *Bill) Remove(barcode string) {
	if i := b.index(barcode); i >= 0 {
		b.removeAt(i)
	}
}

func (b *Bill) removeAt(i int) {
	b.lines = append(b.lines[:i], b.lines[i+1:]...)
}

// Total is the exact sum of unit price × quantity over all lines.
func (b *Bill) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range b.lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// Lines returns a copy of the bill's lines in insertion order.
func (b *Bill) Lines() []models.BillLineItem {
	lines := make([]models.BillLineItem, len(b.lines))
	copy(lines, b.lines)
	return lines
}

// Quantity returns the quantity billed for barcode, 0 when absent.
func (b *Bill) Quantity(barcode string) int {
	if i := b.index(barcode); i >= 0 {
		return b.lines[i].Quantity
	}
	return 0
}

func (b *Bill) Len() int {
	return len(b.lines)
}

func (b *Bill) Clear() {
	b.lines = nil
}
