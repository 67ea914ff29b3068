package handlers

import (
	"errors"
	"net/http"

	"library_pos_backend/internal/capture"
	"library_pos_backend/internal/services"
	"library_pos_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// respondServiceError logs err and maps it to the standard error body.
// message is what the client sees for unexpected failures.
func respondServiceError(c *gin.Context, err error, message string) {
	utils.LogError(err, message, map[string]interface{}{"path": c.FullPath()})

	var shortage *services.StockShortageError
	switch {
	case errors.As(err, &shortage):
		utils.RespondWithErrorAndData(c,
			utils.NewAPIError(http.StatusConflict, utils.ErrCodeInsufficientStock, "Insufficient stock for one or more items.", err.Error()),
			gin.H{"failing_barcodes": shortage.FailingBarcodes(), "shortages": shortage.Shortages})
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrMissingCustomer):
		utils.RespondValidationFailed(c, err.Error())
	case errors.Is(err, services.ErrBookNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Book not found.", err.Error()))
	case errors.Is(err, services.ErrTransactionNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Transaction not found.", err.Error()))
	case errors.Is(err, services.ErrDuplicateBarcode):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "A book with this barcode already exists.", err.Error()))
	case errors.Is(err, services.ErrOutOfStock):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeOutOfStock, "Not enough stock for this book.", err.Error()))
	case errors.Is(err, services.ErrEmptyBill):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeEmptyBill, "The bill is empty.", err.Error()))
	case errors.Is(err, capture.ErrUnknownTarget):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Unknown scan target.", err.Error()))
	case errors.Is(err, capture.ErrNotStreaming), errors.Is(err, capture.ErrNoSession), errors.Is(err, capture.ErrAlreadyAttached):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "The scanner is not in the expected state.", err.Error()))
	case errors.Is(err, capture.ErrManagerClosed):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusServiceUnavailable, utils.ErrCodeInternalServerError, "The scanner is shutting down.", err.Error()))
	default:
		utils.RespondInternal(c, message)
	}
}

// respondBindError answers a request whose body failed binding or validation.
func respondBindError(c *gin.Context, err error, where string) {
	utils.LogError(err, where+": Failed to bind JSON")
	utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
}
