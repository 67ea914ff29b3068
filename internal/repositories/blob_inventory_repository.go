package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"library_pos_backend/internal/models"
)

// ErrKeyMissing is returned by a KeyValueStore when the key has never been written.
var ErrKeyMissing = errors.New("key not present")

// KeyValueStore is the document store behind the blob inventory.
// SetMany must write all values or none of them.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetMany(ctx context.Context, values map[string]string) error
}

// blobInventoryRepository keeps the whole inventory and the transaction log as two
// JSON documents. All access goes through one mutex, so a single process owns the keys.
type blobInventoryRepository struct {
	mu       sync.Mutex
	store    KeyValueStore
	booksKey string
	txnsKey  string
	now      func() time.Time
}

// NewBlobInventoryRepository creates an InventoryRepository persisting to
// "<prefix>:books" and "<prefix>:transactions".
func NewBlobInventoryRepository(store KeyValueStore, prefix string) InventoryRepository {
	return &blobInventoryRepository{
		store:    store,
		booksKey: prefix + ":books",
		txnsKey:  prefix + ":transactions",
		now:      time.Now,
	}
}

func (r *blobInventoryRepository) loadBooks(ctx context.Context) ([]models.Book, error) {
	books := []models.Book{}
	if err := r.load(ctx, r.booksKey, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *blobInventoryRepository) loadTransactions(ctx context.Context) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	if err := r.load(ctx, r.txnsKey, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *blobInventoryRepository) load(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyMissing) {
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", ErrDatabaseError, key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrDatabaseError, key, err)
	}
	return nil
}

func (r *blobInventoryRepository) save(ctx context.Context, docs map[string]interface{}) error {
	values := make(map[string]string, len(docs))
	for key, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: encoding %s: %v", ErrDatabaseError, key, err)
		}
		values[key] = string(raw)
	}
	if err := r.store.SetMany(ctx, values); err != nil {
		return fmt.Errorf("%w: writing inventory: %v", ErrDatabaseError, err)
	}
	return nil
}

func findBook(books []models.Book, barcode string) int {
	for i := range books {
		if books[i].Barcode == barcode {
			return i
		}
	}
	return -1
}

func (r *blobInventoryRepository) ListBooks(ctx context.Context) ([]models.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadBooks(ctx)
}

func (r *blobInventoryRepository) GetBook(ctx context.Context, barcode string) (*models.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	books, err := r.loadBooks(ctx)
	if err != nil {
		return nil, err
	}
	i := findBook(books, barcode)
	if i < 0 {
		return nil, ErrNotFound
	}
	book := books[i]
	return &book, nil
}

func (r *blobInventoryRepository) CreateBook(ctx context.Context, book *models.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	books, err := r.loadBooks(ctx)
	if err != nil {
		return err
	}
	if findBook(books, book.Barcode) >= 0 {
		return ErrDuplicateKey
	}
	now := r.now().UTC()
	if book.DateAdded.IsZero() {
		book.DateAdded = now
	}
	book.UpdatedAt = now
	books = append(books, *book)
	return r.save(ctx, map[string]interface{}{r.booksKey: books})
}

func (r *blobInventoryRepository) SetQuantity(ctx context.Context, barcode string, quantity int) (*models.Book, error) {
	if quantity < 0 {
		return nil, ErrNegativeQuantity
	}
	return r.mutateQuantity(ctx, barcode, func(int) int { return quantity })
}

func (r *blobInventoryRepository) AddQuantity(ctx context.Context, barcode string, delta int) (*models.Book, error) {
	return r.mutateQuantity(ctx, barcode, func(current int) int { return current + delta })
}

func (r *blobInventoryRepository) mutateQuantity(ctx context.Context, barcode string, next func(int) int) (*models.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	books, err := r.loadBooks(ctx)
	if err != nil {
		return nil, err
	}
	i := findBook(books, barcode)
	if i < 0 {
		return nil, ErrNotFound
	}
	quantity := next(books[i].Quantity)
	if quantity < 0 {
		return nil, ErrNegativeQuantity
	}
	books[i].Quantity = quantity
	books[i].UpdatedAt = r.now().UTC()
	if err := r.save(ctx, map[string]interface{}{r.booksKey: books}); err != nil {
		return nil, err
	}
	book := books[i]
	return &book, nil
}

func (r *blobInventoryRepository) DeleteBook(ctx context.Context, barcode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	books, err := r.loadBooks(ctx)
	if err != nil {
		return err
	}
	i := findBook(books, barcode)
	if i < 0 {
		return ErrNotFound
	}
	books = append(books[:i], books[i+1:]...)
	return r.save(ctx, map[string]interface{}{r.booksKey: books})
}

func (r *blobInventoryRepository) CommitSale(ctx context.Context, txn *models.Transaction) ([]models.StockShortage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	books, err := r.loadBooks(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := r.loadTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for _, existing := range txns {
		if existing.ID == txn.ID {
			return nil, ErrDuplicateKey
		}
	}

	barcodes, requested := requestedByBarcode(txn.Items)
	available := make(map[string]int, len(barcodes))
	for _, barcode := range barcodes {
		if i := findBook(books, barcode); i >= 0 {
			available[barcode] = books[i].Quantity
		}
	}
	if shortages := shortagesFor(barcodes, requested, available); len(shortages) > 0 {
		return shortages, ErrInsufficientStock
	}

	now := r.now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	for _, barcode := range barcodes {
		i := findBook(books, barcode)
		books[i].Quantity -= requested[barcode]
		books[i].UpdatedAt = now
	}
	txns = append(txns, *txn)

	if err := r.save(ctx, map[string]interface{}{r.booksKey: books, r.txnsKey: txns}); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *blobInventoryRepository) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadTransactions(ctx)
}

func (r *blobInventoryRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txns, err := r.loadTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range txns {
		if txns[i].ID == id {
			txn := txns[i]
			return &txn, nil
		}
	}
	return nil, ErrNotFound
}
