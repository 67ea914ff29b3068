package handlers

import (
	"bytes"
	"net/http"

	"library_pos_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// TransactionHandler records and lists committed bills.
type TransactionHandler struct {
	inventoryService services.InventoryService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(is services.InventoryService) *TransactionHandler {
	return &TransactionHandler{inventoryService: is}
}

// ProcessBill commits a client-side bill. Stock for every line is checked and
// decremented atomically; on any shortage nothing is changed and the failing
// barcodes are returned.
func (h *TransactionHandler) ProcessBill(c *gin.Context) {
	var req services.RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "ProcessBill")
		return
	}
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	req.Operator = operator

	txn, err := h.inventoryService.RecordTransaction(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "Failed to process bill.")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction_id": txn.ID, "transaction": txn})
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	txns, err := h.inventoryService.ListTransactions(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve transactions.")
		return
	}
	c.JSON(http.StatusOK, txns)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	txn, err := h.inventoryService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve transaction.")
		return
	}
	c.JSON(http.StatusOK, txn)
}

// ExportTransactions downloads all transactions as CSV, one row per line item.
func (h *TransactionHandler) ExportTransactions(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.inventoryService.ExportTransactionsCSV(c.Request.Context(), &buf); err != nil {
		respondServiceError(c, err, "Failed to export transactions.")
		return
	}
	sendCSV(c, "transactions.csv", buf.Bytes())
}
