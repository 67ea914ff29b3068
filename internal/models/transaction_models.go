package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillLineItem is one line of a bill. UnitPrice is a snapshot taken when the line
// was created, so later price edits in the inventory do not change it.
type BillLineItem struct {
	Barcode   string          `json:"barcode" binding:"required"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
}

// LineTotal is UnitPrice × Quantity.
func (i BillLineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Bill is the read model of an operator's current, uncommitted bill.
type Bill struct {
	Operator string          `json:"operator"`
	Items    []BillLineItem  `json:"items"`
	Total    decimal.Decimal `json:"total"`
}

// Transaction is a committed bill. It is never modified after creation.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	Items        []BillLineItem  `json:"items"`
	Total        decimal.Decimal `json:"total" db:"total"`
	CustomerName string          `json:"customer_name" db:"customer_name"`
	Operator     string          `json:"processed_by" db:"processed_by"`
	CreatedAt    time.Time       `json:"date" db:"created_at"`
}
