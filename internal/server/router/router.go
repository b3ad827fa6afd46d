package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/server/handlers"
)

// Handlers groups the HTTP adapters mounted by the router.
type Handlers struct {
	Ledger    *handlers.LedgerHandler
	Inventory *handlers.InventoryHandler
	Batches   *handlers.BatchHandler
	Reports   *handlers.ReportHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/products", h.Ledger.CreateProduct)
	r.GET("/products", h.Ledger.ListProducts)
	r.PUT("/products/:id", h.Ledger.UpdateProduct)
	r.POST("/production", h.Ledger.LogProduction)
	r.POST("/sales", h.Ledger.RecordSale)
	r.DELETE("/sales", h.Reports.ClearSales)
	r.PUT("/remaining", h.Ledger.SetRemaining)
	r.GET("/remaining", h.Ledger.ListRemaining)
	r.GET("/shift", h.Ledger.GetShift)
	r.PUT("/shift", h.Ledger.SetShift)
	r.POST("/shift/toggle", h.Ledger.ToggleShift)

	r.GET("/inventory", h.Inventory.GetInventory)

	r.POST("/batches", h.Batches.Create)
	r.GET("/batches", h.Batches.List)
	r.POST("/batches/tick", h.Batches.Tick)
	r.GET("/batches/:id", h.Batches.Get)
	r.POST("/batches/:id/transitions", h.Batches.Transition)

	r.POST("/reports", h.Reports.Save)
	r.GET("/reports", h.Reports.Get)
	r.POST("/shifts/end", h.Reports.EndShift)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
