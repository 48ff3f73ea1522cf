package serve

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rushteam/nextcart/catalog"
	"github.com/rushteam/nextcart/core"
)

// Server 是 HTTP 接入层，把 InferenceService 与 Catalog 暴露为 REST 接口。
//
// 路由：
//   - GET  /                 存活探针
//   - GET  /health           就绪状态（模型/词表是否装载）
//   - POST /predict          预测
//   - GET  /stats            模型统计
//   - GET  /products         目录搜索/分页
//   - GET  /products/popular 热门商品
type Server struct {
	svc     *InferenceService
	catalog *catalog.Catalog
	logger  *slog.Logger
	engine  *gin.Engine
}

// NewServer 装配路由。catalog 可为 nil，此时 /products 相关接口返回 503。
func NewServer(svc *InferenceService, cat *catalog.Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware())

	s := &Server{svc: svc, catalog: cat, logger: logger, engine: engine}

	engine.GET("/", s.handleRoot)
	engine.GET("/health", s.handleHealth)
	engine.POST("/predict", s.handlePredict)
	engine.GET("/stats", s.handleStats)
	engine.GET("/products", s.handleProducts)
	engine.GET("/products/popular", s.handlePopular)
	return s
}

// Handler 返回底层 http.Handler，便于测试与自定义装配。
func (s *Server) Handler() http.Handler { return s.engine }

// Run 启动服务并阻塞，ctx 取消时优雅关停。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "nextcart",
		"status":  "ok",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	if !s.svc.Ready() {
		status = "degraded"
	}
	body := gin.H{
		"status":       status,
		"model_loaded": s.svc.Ready(),
	}
	if s.svc.Ready() {
		body["vocabulary_size"] = s.svc.Vocabulary().Size
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	resp, err := s.svc.Predict(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.Stats()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleProducts(c *gin.Context) {
	if s.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog not configured"})
		return
	}
	q := catalog.Query{
		Search:     c.Query("search"),
		Department: c.Query("department"),
		Aisle:      c.Query("aisle"),
		Page:       intQuery(c, "page", 1),
		PageSize:   intQuery(c, "page_size", 50),
	}
	page, err := s.catalog.List(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handlePopular(c *gin.Context) {
	if s.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog not configured"})
		return
	}
	products, err := s.catalog.TopPopular(c.Request.Context(), intQuery(c, "n", 10))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// writeError 把领域错误映射为 HTTP 状态码：
// top-k 越界/输入无效 → 400，模型未加载 → 503，其余 → 500。
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case core.IsInvalidTopK(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case core.IsModelNotLoaded(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.Status(http.StatusRequestTimeout)
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
