package router

import (
	"library_pos_backend/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupBookRoutes sets up the inventory routes.
func SetupBookRoutes(authenticatedGroup *gin.RouterGroup, inventoryHandler *handlers.InventoryHandler) {
	bookRoutes := authenticatedGroup.Group("/books")
	{
		bookRoutes.GET("", inventoryHandler.ListBooks)
		bookRoutes.GET("/:barcode", inventoryHandler.GetBook)
		bookRoutes.POST("", inventoryHandler.AddBook)
		bookRoutes.POST("/update_quantity", inventoryHandler.UpdateQuantity)
		bookRoutes.POST("/restock", inventoryHandler.Restock)
		bookRoutes.POST("/adjust_quantity", inventoryHandler.AdjustQuantity)
		bookRoutes.POST("/delete", inventoryHandler.DeleteBook)
	}
	authenticatedGroup.GET("/stats", inventoryHandler.GetStats)
}

// SetupTransactionRoutes sets up bill commits, the transaction log and the CSV exports.
func SetupTransactionRoutes(authenticatedGroup *gin.RouterGroup, transactionHandler *handlers.TransactionHandler, inventoryHandler *handlers.InventoryHandler) {
	authenticatedGroup.POST("/process_bill", transactionHandler.ProcessBill)

	transactionRoutes := authenticatedGroup.Group("/transactions")
	{
		transactionRoutes.GET("", transactionHandler.ListTransactions)
		transactionRoutes.GET("/:id", transactionHandler.GetTransaction)
	}

	exportRoutes := authenticatedGroup.Group("/export")
	{
		exportRoutes.GET("/inventory", inventoryHandler.ExportInventory)
		exportRoutes.GET("/transactions", transactionHandler.ExportTransactions)
	}
}

// SetupBillRoutes sets up the server-side bill of the signed-in operator.
func SetupBillRoutes(authenticatedGroup *gin.RouterGroup, billHandler *handlers.BillHandler) {
	billRoutes := authenticatedGroup.Group("/bill")
	{
		billRoutes.GET("", billHandler.GetBill)
		billRoutes.DELETE("", billHandler.ClearBill)
		billRoutes.POST("/items", billHandler.AddItem)
		billRoutes.PATCH("/items/:barcode", billHandler.ChangeQuantity)
		billRoutes.DELETE("/items/:barcode", billHandler.RemoveItem)
		billRoutes.POST("/checkout", billHandler.Checkout)
	}
}

// SetupScanRoutes sets up capture sessions and the decode endpoint.
func SetupScanRoutes(authenticatedGroup *gin.RouterGroup, scanHandler *handlers.ScanHandler) {
	scanRoutes := authenticatedGroup.Group("/scan")
	{
		scanRoutes.POST("/stop_all", scanHandler.StopAll)
		scanRoutes.GET("/:target", scanHandler.GetScan)
		scanRoutes.POST("/:target/start", scanHandler.StartScan)
		scanRoutes.POST("/:target/stop", scanHandler.StopScan)
		scanRoutes.POST("/:target/camera", scanHandler.AttachCamera)
		scanRoutes.POST("/:target/frames", scanHandler.PushFrame)
		scanRoutes.POST("/:target/torch", scanHandler.ToggleTorch)
		scanRoutes.POST("/:target/manual", scanHandler.ManualScan)
	}
	authenticatedGroup.POST("/scan_barcode", scanHandler.ScanBarcode)
}
