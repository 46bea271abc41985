package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"bistrobooks/internal/config"
	"bistrobooks/internal/handler"
	"bistrobooks/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	corsCfg *config.CORSConfig,
	txnH *handler.TransactionHandler,
	reportH *handler.ReportHandler,
	adminH *handler.AdminHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(corsCfg.AllowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")

	// Transaction ingestion and queries
	txns := v1.Group("/transactions")
	txns.POST("/text", txnH.ProcessText)
	txns.POST("/receipt", txnH.ProcessReceipt)
	txns.GET("", txnH.List)
	txns.GET("/:id", txnH.GetByID)

	// Reports
	reports := v1.Group("/reports")
	reports.GET("/ledger.xlsx", reportH.LedgerXLSX)

	// Operator endpoints
	admin := v1.Group("/admin")
	admin.POST("/templates/reload", adminH.ReloadTemplates)
	admin.GET("/models", adminH.ListModels)

	return r
}
