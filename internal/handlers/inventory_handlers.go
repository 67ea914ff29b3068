package handlers

import (
	"bytes"
	"net/http"

	"library_pos_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// InventoryHandler serves books, stock changes, stats and exports.
type InventoryHandler struct {
	inventoryService services.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(is services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: is}
}

// ListBooks returns all books, or those matching ?q= in name, barcode or details.
func (h *InventoryHandler) ListBooks(c *gin.Context) {
	books, err := h.inventoryService.SearchBooks(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve books.")
		return
	}
	c.JSON(http.StatusOK, books)
}

// GetBook looks a book up by barcode.
func (h *InventoryHandler) GetBook(c *gin.Context) {
	book, err := h.inventoryService.FindByBarcode(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve book.")
		return
	}
	c.JSON(http.StatusOK, book)
}

// AddBook registers a new book.
func (h *InventoryHandler) AddBook(c *gin.Context) {
	var req services.AddBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "AddBook")
		return
	}
	book, err := h.inventoryService.AddBook(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "Failed to add book.")
		return
	}
	c.JSON(http.StatusCreated, book)
}

// UpdateQuantity sets the stock of a book to an absolute value.
func (h *InventoryHandler) UpdateQuantity(c *gin.Context) {
	var req services.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "UpdateQuantity")
		return
	}
	book, err := h.inventoryService.SetQuantity(c.Request.Context(), req.Barcode, *req.Quantity)
	if err != nil {
		respondServiceError(c, err, "Failed to update quantity.")
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *InventoryHandler) Restock(c *gin.Context) {
	var req services.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "Restock")
		return
	}
	book, err := h.inventoryService.Restock(c.Request.Context(), req.Barcode, req.QuantityToAdd)
	if err != nil {
		respondServiceError(c, err, "Failed to restock book.")
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *InventoryHandler) AdjustQuantity(c *gin.Context) {
	var req services.AdjustQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "AdjustQuantity")
		return
	}
	book, err := h.inventoryService.AdjustQuantity(c.Request.Context(), req.Barcode, req.Delta)
	if err != nil {
		respondServiceError(c, err, "Failed to adjust quantity.")
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *InventoryHandler) DeleteBook(c *gin.Context) {
	var req services.DeleteBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "DeleteBook")
		return
	}
	if err := h.inventoryService.DeleteBook(c.Request.Context(), req.Barcode); err != nil {
		respondServiceError(c, err, "Failed to delete book.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Book deleted successfully", "barcode": req.Barcode})
}

// GetStats returns distinct titles, total copies and stock value.
func (h *InventoryHandler) GetStats(c *gin.Context) {
	stats, err := h.inventoryService.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "Failed to compute inventory stats.")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportInventory downloads the inventory as CSV.
func (h *InventoryHandler) ExportInventory(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.inventoryService.ExportInventoryCSV(c.Request.Context(), &buf); err != nil {
		respondServiceError(c, err, "Failed to export inventory.")
		return
	}
	sendCSV(c, "inventory.csv", buf.Bytes())
}

func sendCSV(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
