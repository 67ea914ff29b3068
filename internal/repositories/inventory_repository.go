package repositories

import (
	"context"
	"sort"

	"library_pos_backend/internal/models"
)

// InventoryRepository is the storage contract behind the inventory service.
// Every mutating method returns only after the change is durable.
type InventoryRepository interface {
	ListBooks(ctx context.Context) ([]models.Book, error)
	GetBook(ctx context.Context, barcode string) (*models.Book, error)
	// CreateBook fails with ErrDuplicateKey and leaves the stored book untouched
	// when the barcode is taken.
	CreateBook(ctx context.Context, book *models.Book) error
	SetQuantity(ctx context.Context, barcode string, quantity int) (*models.Book, error)
	// AddQuantity applies delta atomically; ErrNegativeQuantity if the result would be < 0.
	AddQuantity(ctx context.Context, barcode string, delta int) (*models.Book, error)
	DeleteBook(ctx context.Context, barcode string) error

	// CommitSale decrements stock for every line and appends the transaction, or
	// applies nothing and returns the shortages with ErrInsufficientStock.
	CommitSale(ctx context.Context, txn *models.Transaction) ([]models.StockShortage, error)
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
}

// requestedByBarcode sums line quantities per barcode, sorted by barcode so that
// row locks are always taken in the same order.
func requestedByBarcode(items []models.BillLineItem) ([]string, map[string]int) {
	requested := make(map[string]int, len(items))
	for _, item := range items {
		requested[item.Barcode] += item.Quantity
	}
	barcodes := make([]string, 0, len(requested))
	for barcode := range requested {
		barcodes = append(barcodes, barcode)
	}
	sort.Strings(barcodes)
	return barcodes, requested
}

// shortagesFor compares requested quantities with available stock.
// A barcode missing from available is reported as Missing.
func shortagesFor(barcodes []string, requested map[string]int, available map[string]int) []models.StockShortage {
	var shortages []models.StockShortage
	for _, barcode := range barcodes {
		have, ok := available[barcode]
		switch {
		case !ok:
			shortages = append(shortages, models.StockShortage{Barcode: barcode, Requested: requested[barcode], Missing: true})
		case have < requested[barcode]:
			shortages = append(shortages, models.StockShortage{Barcode: barcode, Requested: requested[barcode], Available: have})
		}
	}
	return shortages
}
