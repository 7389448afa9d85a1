package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"kassenwart/internal/auth"
	"kassenwart/internal/config"
	"kassenwart/internal/email"
	"kassenwart/internal/fee"
	"kassenwart/internal/lastschrift"
	"kassenwart/internal/ledger"
	"kassenwart/internal/persona"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	db     *sqlx.DB
	config *config.Config
	email  *email.Service
}

func New(db *sqlx.DB, cfg *config.Config, emailService *email.Service) *Server {
	router := gin.Default()
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())

	personaRepo := persona.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	mandateRepo := lastschrift.NewRepository(db, ledgerRepo)

	ledgerService := ledger.NewService(ledgerRepo, personaRepo, mandateRepo, emailService)
	mandateService := lastschrift.NewService(mandateRepo, personaRepo, emailService, cfg)

	personaHandler := persona.NewHandler(db, cfg.JWTSecret)
	feeHandler := fee.NewHandler(db)
	ledgerHandler := ledger.NewHandler(ledgerService, cfg)
	mandateHandler := lastschrift.NewHandler(mandateService)

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(5, 10))
	{
		public.POST("/register", personaHandler.Register)
		public.POST("/login", personaHandler.Login)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", personaHandler.GetMe)
		protected.GET("/me/balance", personaHandler.GetMyBalance)
		protected.GET("/me/log", ledgerHandler.ListMyLog)
	}

	orga := router.Group("/")
	orga.Use(authMiddleware, auth.RequireAnyRole(auth.RoleOrga, auth.RoleAdmin))
	{
		orga.GET("/events/:eventID/fees", feeHandler.ListDefinitions)
		orga.POST("/events/:eventID/fees", feeHandler.CreateDefinition)
		orga.PUT("/fees/:feeID", feeHandler.UpdateDefinition)
		orga.DELETE("/fees/:feeID", feeHandler.DeleteDefinition)
		orga.POST("/events/:eventID/fees/preview", feeHandler.Preview)
		orga.GET("/events/:eventID/fee-stats", feeHandler.FeeStats)
		orga.POST("/events/:eventID/recompute", feeHandler.RecomputeEvent)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/personas/:personaID/payments", ledgerHandler.BookPayment)
		admin.POST("/semester/bill", ledgerHandler.BillSemester)
		admin.GET("/finance-log", ledgerHandler.ListLog)

		admin.POST("/mandates", mandateHandler.CreateMandate)
		admin.GET("/mandates", mandateHandler.ListMandates)
		admin.POST("/mandates/:mandateID/revoke", mandateHandler.RevokeMandate)
		admin.POST("/lastschrift/generate", mandateHandler.GenerateTransactions)
		admin.GET("/lastschrift/sepapain", mandateHandler.ExportPain)
		admin.POST("/lastschrift/finalize", mandateHandler.FinalizeTransactions)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	router.GET("/test-email", TestEmail(emailService))
	SetupSwagger(router)

	return &Server{
		router: router,
		db:     db,
		config: cfg,
		email:  emailService,
	}
}

func (s *Server) Start(port string) error {
	s.srv = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
