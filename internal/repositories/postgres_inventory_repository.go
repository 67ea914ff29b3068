package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"library_pos_backend/internal/models"
)

const bookColumns = `barcode, name, price, quantity, details, date_added, updated_at`

type pgInventoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresInventoryRepository creates an InventoryRepository backed by PostgreSQL.
func NewPostgresInventoryRepository(db *sql.DB) InventoryRepository {
	return &pgInventoryRepository{db: db, now: time.Now}
}

func scanBook(row scanner) (*models.Book, error) {
	var book models.Book
	if err := row.Scan(&book.Barcode, &book.Name, &book.Price, &book.Quantity,
		&book.Details, &book.DateAdded, &book.UpdatedAt); err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *pgInventoryRepository) ListBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY date_added, barcode`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing books: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	books := []models.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning book: %v", ErrDatabaseError, err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating books: %v", ErrDatabaseError, err)
	}
	return books, nil
}

func (r *pgInventoryRepository) GetBook(ctx context.Context, barcode string) (*models.Book, error) {
	return getBook(ctx, r.db, barcode)
}

func getBook(ctx context.Context, executor SQLExecutor, barcode string) (*models.Book, error) {
	book, err := scanBook(executor.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE barcode = $1`, barcode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting book %s: %v", ErrDatabaseError, barcode, err)
	}
	return book, nil
}

func (r *pgInventoryRepository) CreateBook(ctx context.Context, book *models.Book) error {
	now := r.now().UTC()
	if book.DateAdded.IsZero() {
		book.DateAdded = now
	}
	book.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		book.Barcode, book.Name, book.Price, book.Quantity, book.Details, book.DateAdded, book.UpdatedAt)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("%w: creating book: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *pgInventoryRepository) SetQuantity(ctx context.Context, barcode string, quantity int) (*models.Book, error) {
	if quantity < 0 {
		return nil, ErrNegativeQuantity
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE books SET quantity = $1, updated_at = $2 WHERE barcode = $3 RETURNING `+bookColumns,
		quantity, r.now().UTC(), barcode)
	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: setting quantity for %s: %v", ErrDatabaseError, barcode, err)
	}
	return book, nil
}

func (r *pgInventoryRepository) AddQuantity(ctx context.Context, barcode string, delta int) (*models.Book, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE books SET quantity = quantity + $1, updated_at = $2 WHERE barcode = $3 RETURNING `+bookColumns,
		delta, r.now().UTC(), barcode)
	book, err := scanBook(row)
	if err == nil {
		return book, nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case isPQCode(err, pqCheckViolation):
		return nil, ErrNegativeQuantity
	default:
		return nil, fmt.Errorf("%w: adjusting quantity for %s: %v", ErrDatabaseError, barcode, err)
	}
}

func (r *pgInventoryRepository) DeleteBook(ctx context.Context, barcode string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE barcode = $1`, barcode)
	if err != nil {
		return fmt.Errorf("%w: deleting book %s: %v", ErrDatabaseError, barcode, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: checking rows affected for book delete: %v", ErrDatabaseError, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgInventoryRepository) CommitSale(ctx context.Context, txn *models.Transaction) ([]models.StockShortage, error) {
	barcodes, requested := requestedByBarcode(txn.Items)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning sale transaction: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT barcode, quantity FROM books WHERE barcode = ANY($1) ORDER BY barcode FOR UPDATE`,
		pq.Array(barcodes))
	if err != nil {
		return nil, fmt.Errorf("%w: locking books for sale: %v", ErrDatabaseError, err)
	}
	available := make(map[string]int, len(barcodes))
	for rows.Next() {
		var barcode string
		var quantity int
		if err := rows.Scan(&barcode, &quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scanning locked book: %v", ErrDatabaseError, err)
		}
		available[barcode] = quantity
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating locked books: %v", ErrDatabaseError, err)
	}

	if shortages := shortagesFor(barcodes, requested, available); len(shortages) > 0 {
		return shortages, ErrInsufficientStock
	}

	now := r.now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	for _, barcode := range barcodes {
		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET quantity = quantity - $1, updated_at = $2 WHERE barcode = $3`,
			requested[barcode], now, barcode); err != nil {
			return nil, fmt.Errorf("%w: decrementing stock for %s: %v", ErrDatabaseError, barcode, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, total, customer_name, processed_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
		txn.ID, txn.Total, txn.CustomerName, txn.Operator, txn.CreatedAt); err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("%w: inserting transaction: %v", ErrDatabaseError, err)
	}
	for i, item := range txn.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_items (transaction_id, position, barcode, name, unit_price, quantity) VALUES ($1, $2, $3, $4, $5, $6)`,
			txn.ID, i, item.Barcode, item.Name, item.UnitPrice, item.Quantity); err != nil {
			return nil, fmt.Errorf("%w: inserting transaction item %s: %v", ErrDatabaseError, item.Barcode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing sale: %v", ErrDatabaseError, err)
	}
	return nil, nil
}

func (r *pgInventoryRepository) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, total, customer_name, processed_by, created_at FROM transactions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing transactions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	index := make(map[string]int)
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(&txn.ID, &txn.Total, &txn.CustomerName, &txn.Operator, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning transaction: %v", ErrDatabaseError, err)
		}
		txn.Items = []models.BillLineItem{}
		index[txn.ID] = len(transactions)
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating transactions: %v", ErrDatabaseError, err)
	}
	if len(transactions) == 0 {
		return transactions, nil
	}

	itemRows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id, barcode, name, unit_price, quantity FROM transaction_items ORDER BY transaction_id, position`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing transaction items: %v", ErrDatabaseError, err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var txnID string
		var item models.BillLineItem
		if err := itemRows.Scan(&txnID, &item.Barcode, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("%w: scanning transaction item: %v", ErrDatabaseError, err)
		}
		if i, ok := index[txnID]; ok {
			transactions[i].Items = append(transactions[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating transaction items: %v", ErrDatabaseError, err)
	}
	return transactions, nil
}

func (r *pgInventoryRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.QueryRowContext(ctx,
		`SELECT id, total, customer_name, processed_by, created_at FROM transactions WHERE id = $1`, id).
		Scan(&txn.ID, &txn.Total, &txn.CustomerName, &txn.Operator, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting transaction %s: %v", ErrDatabaseError, id, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT barcode, name, unit_price, quantity FROM transaction_items WHERE transaction_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: getting items for transaction %s: %v", ErrDatabaseError, id, err)
	}
	defer rows.Close()
	txn.Items = []models.BillLineItem{}
	for rows.Next() {
		var item models.BillLineItem
		if err := rows.Scan(&item.Barcode, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("%w: scanning transaction item: %v", ErrDatabaseError, err)
		}
		txn.Items = append(txn.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating transaction items: %v", ErrDatabaseError, err)
	}
	return &txn, nil
}
