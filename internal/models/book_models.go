package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is an inventory record identified by its barcode.
type Book struct {
	Barcode   string          `json:"barcode" db:"barcode"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Details   string          `json:"details" db:"details"`
	DateAdded time.Time       `json:"date_added" db:"date_added"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// InventoryStats summarises the whole inventory.
type InventoryStats struct {
	TotalBooks    int             `json:"total_books"`
	TotalQuantity int             `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// StockShortage describes one line of a sale that the inventory cannot satisfy.
type StockShortage struct {
	Barcode   string `json:"barcode"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Missing   bool   `json:"missing,omitempty"`
}
