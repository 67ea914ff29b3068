package handlers

import (
	"errors"
	"net/http"

	"library_pos_backend/internal/services"
	"library_pos_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// BillHandler edits the signed-in operator's bill.
type BillHandler struct {
	billService services.BillService
}

func NewBillHandler(bs services.BillService) *BillHandler {
	return &BillHandler{billService: bs}
}

func (h *BillHandler) GetBill(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.billService.GetBill(operator))
}

// AddItem adds one copy of a book. When stock is exhausted the bill is
// returned unchanged alongside the error.
func (h *BillHandler) AddItem(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	var req services.AddBillItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "AddBillItem")
		return
	}
	bill, err := h.billService.AddItem(c.Request.Context(), operator, req.Barcode)
	if errors.Is(err, services.ErrOutOfStock) {
		utils.LogWarn("AddBillItem: out of stock", map[string]interface{}{"operator": operator, "barcode": req.Barcode})
		utils.RespondWithErrorAndData(c,
			utils.NewAPIError(http.StatusConflict, utils.ErrCodeOutOfStock, "Not enough stock for this book.", err.Error()),
			gin.H{"bill": bill})
		return
	}
	if err != nil {
		respondServiceError(c, err, "Failed to add item to bill.")
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (h *BillHandler) ChangeQuantity(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	var req services.ChangeBillQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "ChangeBillQuantity")
		return
	}
	c.JSON(http.StatusOK, h.billService.ChangeQuantity(operator, c.Param("barcode"), req.Delta))
}

func (h *BillHandler) RemoveItem(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.billService.RemoveItem(operator, c.Param("barcode")))
}

func (h *BillHandler) ClearBill(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.billService.Clear(operator))
}

// Checkout commits the bill. The bill is kept when the commit fails.
func (h *BillHandler) Checkout(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	var req services.CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err, "Checkout")
			return
		}
	}
	txn, err := h.billService.Checkout(c.Request.Context(), operator, req.CustomerName)
	if err != nil {
		respondServiceError(c, err, "Failed to check out bill.")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction_id": txn.ID, "transaction": txn})
}
