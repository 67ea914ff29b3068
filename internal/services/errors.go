package services

import (
	"errors"
	"fmt"
	"strings"

	"library_pos_backend/internal/billing"
	"library_pos_backend/internal/models"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrBookNotFound        = errors.New("book not found")
	ErrDuplicateBarcode    = errors.New("a book with this barcode already exists")
	ErrOutOfStock          = billing.ErrOutOfStock
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrEmptyBill           = errors.New("bill is empty")
	ErrMissingCustomer     = errors.New("customer name is required")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// StockShortageError rejects a whole transaction and lists every line that
// could not be satisfied. It matches ErrInsufficientStock with errors.Is.
type StockShortageError struct {
	Shortages []models.StockShortage
}

func (e *StockShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		if s.Missing {
			parts = append(parts, fmt.Sprintf("%s (not in inventory)", s.Barcode))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.Barcode, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *StockShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// FailingBarcodes returns the barcodes of all rejected lines.
func (e *StockShortageError) FailingBarcodes() []string {
	barcodes := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		barcodes = append(barcodes, s.Barcode)
	}
	return barcodes
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
