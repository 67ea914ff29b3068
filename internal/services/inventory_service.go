package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"library_pos_backend/internal/models"
	"library_pos_backend/internal/repositories"
	"library_pos_backend/pkg/events"
	"library_pos_backend/pkg/metrics"
	"library_pos_backend/pkg/utils"
)

// --- Data Transfer Objects (DTOs) ---

// AddBookRequest registers a new book. Quantity defaults to 1 when omitted.
type AddBookRequest struct {
	Barcode  string           `json:"barcode" binding:"required,barcode"`
	Name     string           `json:"name" binding:"required"`
	Price    *decimal.Decimal `json:"price" binding:"required"`
	Quantity *int             `json:"quantity" binding:"omitempty,min=0"`
	Details  string           `json:"details"`
}

type UpdateQuantityRequest struct {
	Barcode  string `json:"barcode" binding:"required,barcode"`
	Quantity *int   `json:"quantity" binding:"required,min=0"`
}

type RestockRequest struct {
	Barcode       string `json:"barcode" binding:"required,barcode"`
	QuantityToAdd int    `json:"quantity_to_add" binding:"required,gt=0"`
}

type AdjustQuantityRequest struct {
	Barcode string `json:"barcode" binding:"required,barcode"`
	Delta   int    `json:"delta" binding:"required"`
}

type DeleteBookRequest struct {
	Barcode string `json:"barcode" binding:"required,barcode"`
}

// RecordTransactionRequest commits a bill. When Total is set it must equal the
// exact sum of the lines.
type RecordTransactionRequest struct {
	Items        []models.BillLineItem `json:"items" binding:"required,dive"`
	Total        *decimal.Decimal      `json:"total"`
	CustomerName string                `json:"customer_name"`
	Operator     string                `json:"-"`
}

// CustomerPolicy decides what happens when a bill is committed without a customer.
type CustomerPolicy struct {
	Required bool
	Default  string
}

// Resolve returns the customer name to store.
func (p CustomerPolicy) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		return name, nil
	}
	if p.Required {
		return "", ErrMissingCustomer
	}
	if p.Default == "" {
		return "Walk-in Customer", nil
	}
	return p.Default, nil
}

// EventPublisher receives inventory events. *events.Rabbit satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// --- InventoryService Interface ---
type InventoryService interface {
	ListBooks(ctx context.Context) ([]models.Book, error)
	SearchBooks(ctx context.Context, query string) ([]models.Book, error)
	FindByBarcode(ctx context.Context, barcode string) (*models.Book, error)
	AddBook(ctx context.Context, req AddBookRequest) (*models.Book, error)
	SetQuantity(ctx context.Context, barcode string, quantity int) (*models.Book, error)
	Restock(ctx context.Context, barcode string, quantityToAdd int) (*models.Book, error)
	AdjustQuantity(ctx context.Context, barcode string, delta int) (*models.Book, error)
	DeleteBook(ctx context.Context, barcode string) error

	RecordTransaction(ctx context.Context, req RecordTransactionRequest) (*models.Transaction, error)
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)

	Stats(ctx context.Context) (*models.InventoryStats, error)
	ExportInventoryCSV(ctx context.Context, w io.Writer) error
	ExportTransactionsCSV(ctx context.Context, w io.Writer) error
}

// --- inventoryService Implementation ---
type inventoryService struct {
	repo      repositories.InventoryRepository
	events    EventPublisher
	policy    CustomerPolicy
	checkouts *metrics.CheckoutMetrics
}

// NewInventoryService creates a new instance of InventoryService. publisher and
// checkouts may be nil.
func NewInventoryService(repo repositories.InventoryRepository, publisher EventPublisher, policy CustomerPolicy, checkouts *metrics.CheckoutMetrics) InventoryService {
	return &inventoryService{repo: repo, events: publisher, policy: policy, checkouts: checkouts}
}

func (s *inventoryService) publish(ctx context.Context, eventType string, data interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), eventType, data); err != nil {
		utils.LogError(err, "Failed to publish inventory event", map[string]interface{}{"event": eventType})
	}
}

func (s *inventoryService) ListBooks(ctx context.Context) ([]models.Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

func (s *inventoryService) SearchBooks(ctx context.Context, query string) ([]models.Book, error) {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return books, nil
	}
	matches := []models.Book{}
	for _, book := range books {
		if utils.ContainsFold(book.Name, query) || utils.ContainsFold(book.Barcode, query) || utils.ContainsFold(book.Details, query) {
			matches = append(matches, book)
		}
	}
	return matches, nil
}

func (s *inventoryService) FindByBarcode(ctx context.Context, barcode string) (*models.Book, error) {
	barcode = utils.NormalizeBarcode(barcode)
	if barcode == "" {
		return nil, validationError("barcode is required")
	}
	book, err := s.repo.GetBook(ctx, barcode)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBookNotFound, barcode)
		}
		return nil, fmt.Errorf("failed to get book %s: %w", barcode, err)
	}
	return book, nil
}

func (s *inventoryService) AddBook(ctx context.Context, req AddBookRequest) (*models.Book, error) {
	book := models.Book{
		Barcode:  utils.NormalizeBarcode(req.Barcode),
		Name:     strings.TrimSpace(req.Name),
		Details:  strings.TrimSpace(req.Details),
		Quantity: 1,
	}
	switch {
	case book.Barcode == "":
		return nil, validationError("barcode is required")
	case book.Name == "":
		return nil, validationError("name is required")
	case req.Price == nil:
		return nil, validationError("price is required")
	case req.Price.IsNegative():
		return nil, validationError("price cannot be negative")
	}
	book.Price = utils.RoundMoney(*req.Price)
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return nil, validationError("quantity cannot be negative")
		}
		book.Quantity = *req.Quantity
	}

	if err := s.repo.CreateBook(ctx, &book); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBarcode, book.Barcode)
		}
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	utils.LogInfo("Book added", map[string]interface{}{"barcode": book.Barcode, "quantity": book.Quantity})
	s.publish(ctx, events.BookCreated, book)
	return &book, nil
}

func (s *inventoryService) SetQuantity(ctx context.Context, barcode string, quantity int) (*models.Book, error) {
	if quantity < 0 {
		return nil, validationError("quantity cannot be negative")
	}
	return s.changeQuantity(ctx, barcode, func(barcode string) (*models.Book, error) {
		return s.repo.SetQuantity(ctx, barcode, quantity)
	})
}

func (s *inventoryService) Restock(ctx context.Context, barcode string, quantityToAdd int) (*models.Book, error) {
	if quantityToAdd <= 0 {
		return nil, validationError("quantity to add must be positive")
	}
	return s.changeQuantity(ctx, barcode, func(barcode string) (*models.Book, error) {
		return s.repo.AddQuantity(ctx, barcode, quantityToAdd)
	})
}

func (s *inventoryService) AdjustQuantity(ctx context.Context, barcode string, delta int) (*models.Book, error) {
	if delta == 0 {
		return s.FindByBarcode(ctx, barcode)
	}
	return s.changeQuantity(ctx, barcode, func(barcode string) (*models.Book, error) {
		return s.repo.AddQuantity(ctx, barcode, delta)
	})
}

func (s *inventoryService) changeQuantity(ctx context.Context, barcode string, apply func(string) (*models.Book, error)) (*models.Book, error) {
	barcode = utils.NormalizeBarcode(barcode)
	if barcode == "" {
		return nil, validationError("barcode is required")
	}
	book, err := apply(barcode)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrBookNotFound, barcode)
		case errors.Is(err, repositories.ErrNegativeQuantity):
			return nil, validationError("quantity cannot be negative")
		}
		return nil, fmt.Errorf("failed to update quantity for %s: %w", barcode, err)
	}
	s.publish(ctx, events.BookQuantityChanged, book)
	return book, nil
}

func (s *inventoryService) DeleteBook(ctx context.Context, barcode string) error {
	barcode = utils.NormalizeBarcode(barcode)
	if barcode == "" {
		return validationError("barcode is required")
	}
	if err := s.repo.DeleteBook(ctx, barcode); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBookNotFound, barcode)
		}
		return fmt.Errorf("failed to delete book %s: %w", barcode, err)
	}
	utils.LogInfo("Book deleted", map[string]interface{}{"barcode": barcode})
	s.publish(ctx, events.BookDeleted, map[string]string{"barcode": barcode})
	return nil
}

func (s *inventoryService) RecordTransaction(ctx context.Context, req RecordTransactionRequest) (*models.Transaction, error) {
	txn, err := s.buildTransaction(req)
	if err != nil {
		s.observeCheckout(err)
		return nil, err
	}

	shortages, err := s.repo.CommitSale(ctx, txn)
	if err != nil {
		if errors.Is(err, repositories.ErrInsufficientStock) {
			shortageErr := &StockShortageError{Shortages: shortages}
			utils.LogWarn("Transaction rejected", map[string]interface{}{"operator": txn.Operator, "failing_barcodes": shortageErr.FailingBarcodes()})
			err = shortageErr
		} else {
			err = fmt.Errorf("failed to record transaction: %w", err)
		}
		s.observeCheckout(err)
		return nil, err
	}

	s.observeCheckout(nil)
	utils.LogInfo("Transaction recorded", map[string]interface{}{
		"transaction_id": txn.ID,
		"operator":       txn.Operator,
		"total":          utils.FormatMoney(txn.Total),
		"lines":          len(txn.Items),
	})
	s.publish(ctx, events.TransactionRecorded, txn)
	return txn, nil
}

func (s *inventoryService) buildTransaction(req RecordTransactionRequest) (*models.Transaction, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyBill
	}
	customer, err := s.policy.Resolve(req.CustomerName)
	if err != nil {
		return nil, err
	}

	items := make([]models.BillLineItem, 0, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		item.Barcode = utils.NormalizeBarcode(item.Barcode)
		switch {
		case item.Barcode == "":
			return nil, validationError("item %d: barcode is required", i)
		case item.Quantity <= 0:
			return nil, validationError("item %s: quantity must be positive", item.Barcode)
		case item.UnitPrice.IsNegative():
			return nil, validationError("item %s: price cannot be negative", item.Barcode)
		}
		item.UnitPrice = utils.RoundMoney(item.UnitPrice)
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}
	// totals are compared at cent precision
	if req.Total != nil && !utils.RoundMoney(*req.Total).Equal(total) {
		return nil, validationError("total %s does not match the sum of the items %s", req.Total.String(), utils.FormatMoney(total))
	}

	return &models.Transaction{
		ID:           uuid.NewString(),
		Items:        items,
		Total:        total,
		CustomerName: customer,
		Operator:     req.Operator,
	}, nil
}

func (s *inventoryService) observeCheckout(err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptyBill):
		result = "empty"
	case errors.Is(err, ErrMissingCustomer):
		result = "missing_customer"
	case errors.Is(err, ErrInsufficientStock):
		result = "insufficient_stock"
	case errors.Is(err, ErrValidation):
		result = "invalid"
	default:
		result = "error"
	}
	s.checkouts.Observe(result)
}

func (s *inventoryService) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	txns, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

func (s *inventoryService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return txn, nil
}

func (s *inventoryService) Stats(ctx context.Context) (*models.InventoryStats, error) {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	stats := &models.InventoryStats{TotalBooks: len(books), TotalValue: decimal.Zero}
	for _, book := range books {
		stats.TotalQuantity += book.Quantity
		stats.TotalValue = stats.TotalValue.Add(book.Price.Mul(decimal.NewFromInt(int64(book.Quantity))))
	}
	return stats, nil
}

func (s *inventoryService) ExportInventoryCSV(ctx context.Context, w io.Writer) error {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Barcode", "Name", "Price", "Quantity", "Details", "Date Added"}); err != nil {
		return err
	}
	for _, book := range books {
		if err := cw.Write([]string{
			book.Barcode,
			book.Name,
			utils.FormatMoney(book.Price),
			strconv.Itoa(book.Quantity),
			book.Details,
			book.DateAdded.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *inventoryService) ExportTransactionsCSV(ctx context.Context, w io.Writer) error {
	txns, err := s.ListTransactions(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := []string{"Transaction ID", "Date", "Customer", "Processed By", "Barcode", "Name", "Unit Price", "Quantity", "Line Total", "Transaction Total"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, txn := range txns {
		for _, item := range txn.Items {
			if err := cw.Write([]string{
				txn.ID,
				txn.CreatedAt.Format(time.RFC3339),
				txn.CustomerName,
				txn.Operator,
				item.Barcode,
				item.Name,
				utils.FormatMoney(item.UnitPrice),
				strconv.Itoa(item.Quantity),
				utils.FormatMoney(item.LineTotal()),
				utils.FormatMoney(txn.Total),
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
