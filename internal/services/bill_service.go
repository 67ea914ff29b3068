package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"library_pos_backend/internal/billing"
	"library_pos_backend/internal/models"
	"library_pos_backend/pkg/utils"
)

type CheckoutRequest struct {
	CustomerName string `json:"customer_name"`
}

type AddBillItemRequest struct {
	Barcode string `json:"barcode" binding:"required,barcode"`
}

type ChangeBillQuantityRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// --- BillService Interface ---
type BillService interface {
	GetBill(operator string) models.Bill
	AddItem(ctx context.Context, operator, barcode string) (models.Bill, error)
	ChangeQuantity(operator, barcode string, delta int) models.Bill
	RemoveItem(operator, barcode string) models.Bill
	Clear(operator string) models.Bill
	Checkout(ctx context.Context, operator, customerName string) (*models.Transaction, error)
}

// operatorBill serialises every change to one operator's bill, so rapid
// repeated adds are applied one after another in arrival order.
type operatorBill struct {
	mu   sync.Mutex
	bill billing.Bill
}

// --- billService Implementation ---
type billService struct {
	inventory InventoryService

	mu    sync.Mutex
	bills map[string]*operatorBill
}

// NewBillService creates a new instance of BillService.
func NewBillService(inventory InventoryService) BillService {
	return &billService{inventory: inventory, bills: make(map[string]*operatorBill)}
}

func (s *billService) billFor(operator string) *operatorBill {
	s.mu.Lock()
	defer s.mu.Unlock()
	ob, ok := s.bills[operator]
	if !ok {
		ob = &operatorBill{}
		s.bills[operator] = ob
	}
	return ob
}

func snapshot(operator string, bill *billing.Bill) models.Bill {
	return models.Bill{Operator: operator, Items: bill.Lines(), Total: bill.Total()}
}

func (s *billService) GetBill(operator string) models.Bill {
	ob := s.billFor(operator)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return snapshot(operator, &ob.bill)
}

func (s *billService) AddItem(ctx context.Context, operator, barcode string) (models.Bill, error) {
	ob := s.billFor(operator)
	ob.mu.Lock()
	defer ob.mu.Unlock()

	book, err := s.inventory.FindByBarcode(ctx, barcode)
	if err != nil {
		return snapshot(operator, &ob.bill), err
	}
	if err := ob.bill.Add(*book); err != nil {
		if errors.Is(err, billing.ErrOutOfStock) {
			return snapshot(operator, &ob.bill), fmt.Errorf("%w: only %d of %s available", ErrOutOfStock, book.Quantity, book.Barcode)
		}
		return snapshot(operator, &ob.bill), err
	}
	return snapshot(operator, &ob.bill), nil
}

func (s *billService) ChangeQuantity(operator, barcode string, delta int) models.Bill {
	ob := s.billFor(operator)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bill.ChangeQuantity(utils.NormalizeBarcode(barcode), delta)
	return snapshot(operator, &ob.bill)
}

func (s *billService) RemoveItem(operator, barcode string) models.Bill {
	ob := s.billFor(operator)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bill.Remove(utils.NormalizeBarcode(barcode))
	return snapshot(operator, &ob.bill)
}

func (s *billService) Clear(operator string) models.Bill {
	ob := s.billFor(operator)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bill.Clear()
	return snapshot(operator, &ob.bill)
}

// Checkout commits the bill through the inventory. The bill is cleared only
// when the transaction was recorded. On any error it is left as it was.
func (s *billService) Checkout(ctx context.Context, operator, customerName string) (*models.Transaction, error) {
	ob := s.billFor(operator)
	ob.mu.Lock()
	defer ob.mu.Unlock()

	total := ob.bill.Total()
	txn, err := s.inventory.RecordTransaction(ctx, RecordTransactionRequest{
		Items:        ob.bill.Lines(),
		Total:        &total,
		CustomerName: customerName,
		Operator:     operator,
	})
	if err != nil {
		return nil, err
	}
	ob.bill.Clear()
	return txn, nil
}
