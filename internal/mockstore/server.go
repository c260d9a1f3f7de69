// Package mockstore is a local Store API backend for development and
// end-to-end tests. It keeps one cart per Cart-Token, honors the
// Checkout-Hint payment method when adding the COD fee, and answers with the
// same wire shapes and escaped notices as a real commerce backend.
package mockstore

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront/internal/model"
	"storefront/internal/storeapi"
)

// Config configures a Server. Zero pricing values take the defaults below.
type Config struct {
	Catalog    []Product
	Promotions []Promotion

	// All amounts are minor units.
	CODFee                int64
	FreeShippingThreshold int64
	FlatRate              int64
	ExpressRate           int64

	// APIKey, when set, is required in the X-Store-Key header.
	APIKey string
	Logger *slog.Logger
}

const (
	defaultCODFee       = 2000
	defaultFreeShipping = 50000
	defaultFlatRate     = 7900
	defaultExpressRate  = 14900
)

// Server is an in-memory pricing backend.
type Server struct {
	catalog map[int]Product
	promos  map[string]Promotion
	pricing pricing
	apiKey  string
	logger  *slog.Logger
	engine  *gin.Engine

	mu    sync.Mutex
	carts map[string]*cart
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := cfg.Catalog
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	promos := cfg.Promotions
	if len(promos) == 0 {
		promos = DefaultPromotions()
	}

	s := &Server{
		catalog: make(map[int]Product, len(catalog)),
		promos:  make(map[string]Promotion, len(promos)),
		pricing: pricing{
			codFee:       withDefault(cfg.CODFee, defaultCODFee),
			freeShipping: withDefault(cfg.FreeShippingThreshold, defaultFreeShipping),
			rates: []rate{
				{id: "flat_rate:1", name: "Standard", methodID: "flat_rate", delivery: "3-5 days", price: withDefault(cfg.FlatRate, defaultFlatRate)},
				{id: "flat_rate:2", name: "Express", methodID: "flat_rate", delivery: "1-2 days", price: withDefault(cfg.ExpressRate, defaultExpressRate)},
			},
			currencyCode: "INR",
			symbol:       "₹",
		},
		apiKey: cfg.APIKey,
		logger: logger,
		carts:  make(map[string]*cart),
	}
	for _, p := range catalog {
		s.catalog[p.ID] = p
	}
	for _, p := range promos {
		s.promos[strings.ToUpper(p.Code)] = p
	}
	s.engine = s.buildRouter()
	return s
}

func withDefault(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

// Handler returns the HTTP handler serving the Store API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Carts returns the number of live cart sessions.
func (s *Server) Carts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:    []string{"Content-Type", "Cart-Token", "X-Store-Key", storeapi.HintHeader},
		ExposeHeaders:   []string{"Cart-Token"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/config", s.handleConfig)

	store := router.Group("/store", s.requireKey())
	{
		store.GET("/coupons", s.handlePromoCoupons)

		carts := store.Group("/cart", s.session())
		carts.GET("", s.handleGetCart)
		carts.POST("/sync", s.handleSync)
		carts.POST("/update-customer", s.handleUpdateCustomer)
		carts.POST("/select-shipping-rate", s.handleSelectRate)
		carts.POST("/coupons", s.handleApplyCoupon)
		carts.DELETE("/coupons/:code", s.handleRemoveCoupon)
	}
	return router
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.DebugContext(c.Request.Context(), "mockstore request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) requireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey != "" && c.GetHeader("X-Store-Key") != s.apiKey {
			abort(c, http.StatusUnauthorized, "store_rest_unauthorized", "Invalid store key.")
			return
		}
		c.Next()
	}
}

const (
	ctxToken = "cart_token"
	ctxHint  = "payment_hint"
)

// session resolves the Cart-Token, minting one when absent, and parses the
// payment hint.
func (s *Server) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Cart-Token")
		if token == "" {
			token = uuid.NewString()
		}
		c.Header("Cart-Token", token)

		hint, err := storeapi.ParseHint(c.GetHeader(storeapi.HintHeader))
		if err != nil {
			abort(c, http.StatusBadRequest, "store_rest_invalid_hint", err.Error())
			return
		}
		c.Set(ctxToken, token)
		c.Set(ctxHint, hint)
		c.Next()
	}
}

// withCart runs f on the caller's cart under the server lock and renders it.
// A non-nil *storeapi.ErrorResponse from f aborts with that error.
func (s *Server) withCart(c *gin.Context, f func(*cart) *storeapi.ErrorResponse) {
	token := c.GetString(ctxToken)
	hint, _ := c.Get(ctxHint)

	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.carts[token]
	if !ok {
		sc = &cart{paymentMethod: model.PaymentCOD}
		s.carts[token] = sc
	}
	if pm, _ := hint.(model.PaymentMethod); pm != "" {
		sc.paymentMethod = pm
	}
	if f != nil {
		if errResp := f(sc); errResp != nil {
			c.AbortWithStatusJSON(errResp.Data.Status, errResp)
			return
		}
	}
	c.JSON(http.StatusOK, s.pricing.render(sc, s.catalog, s.promos))
}

func (s *Server) handleGetCart(c *gin.Context) {
	s.withCart(c, nil)
}

func (s *Server) handleSync(c *gin.Context) {
	var req storeapi.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "store_rest_invalid_body", "Invalid request body.")
		return
	}
	s.withCart(c, func(sc *cart) *storeapi.ErrorResponse {
		for _, item := range req.Items {
			if _, ok := s.catalog[item.ProductID]; !ok {
				return errorResponse(http.StatusBadRequest, "store_rest_invalid_product",
					escaped("Product #%d is not available for purchase.", item.ProductID))
			}
		}
		sc.items = merge(req.Items)
		if len(sc.items) == 0 {
			sc.selectedRate = ""
		}
		return nil
	})
}

func (s *Server) handleUpdateCustomer(c *gin.Context) {
	var req storeapi.CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "store_rest_invalid_body", "Invalid request body.")
		return
	}
	s.withCart(c, func(sc *cart) *storeapi.ErrorResponse {
		if strings.TrimSpace(req.ShippingAddress.Country) == "" {
			return errorResponse(http.StatusBadRequest, "store_rest_invalid_address",
				"Please enter a valid shipping country.")
		}
		addr := req.ShippingAddress
		sc.address = &addr
		// New destination, new rates
		sc.selectedRate = ""
		return nil
	})
}

func (s *Server) handleSelectRate(c *gin.Context) {
	var req storeapi.SelectRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "store_rest_invalid_body", "Invalid request body.")
		return
	}
	s.withCart(c, func(sc *cart) *storeapi.ErrorResponse {
		if len(s.pricing.offered(sc, s.pricing.subtotal(sc, s.catalog))) == 0 || !s.pricing.hasRate(req.RateID) {
			return errorResponse(http.StatusBadRequest, "store_rest_invalid_rate",
				escaped("Shipping rate %q is not available.", req.RateID))
		}
		sc.selectedRate = req.RateID
		return nil
	})
}

func (s *Server) handleApplyCoupon(c *gin.Context) {
	var req storeapi.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "store_rest_invalid_body", "Invalid request body.")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	s.withCart(c, func(sc *cart) *storeapi.ErrorResponse {
		if _, ok := s.promos[code]; !ok {
			return errorResponse(http.StatusBadRequest, "woocommerce_rest_cart_coupon_error",
				escaped("Coupon %q does not exist!", req.Code))
		}
		if _, ok := hasCoupon(sc, code); ok {
			return errorResponse(http.StatusBadRequest, "woocommerce_rest_cart_coupon_error",
				escaped("Coupon code %q already applied!", req.Code))
		}
		if len(sc.items) == 0 {
			return errorResponse(http.StatusBadRequest, "woocommerce_rest_cart_coupon_error",
				"<strong>Your cart is empty.</strong> Add items before applying a coupon.")
		}
		sc.coupons = append(sc.coupons, code)
		return nil
	})
}

func (s *Server) handleRemoveCoupon(c *gin.Context) {
	code := c.Param("code")
	s.withCart(c, func(sc *cart) *storeapi.ErrorResponse {
		i, ok := hasCoupon(sc, code)
		if !ok {
			return errorResponse(http.StatusNotFound, "woocommerce_rest_cart_coupon_invalid_code",
				escaped("Coupon %q has not been applied.", code))
		}
		sc.coupons = append(sc.coupons[:i], sc.coupons[i+1:]...)
		return nil
	})
}

func (s *Server) handlePromoCoupons(c *gin.Context) {
	c.JSON(http.StatusOK, promoted(s.promos))
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, storeapi.ConfigResponse{
		CODFee:                model.FormatMinor(s.pricing.codFee),
		FreeShippingThreshold: model.FormatMinor(s.pricing.freeShipping),
		ShippingCost:          model.FormatMinor(s.pricing.rates[0].price),
	})
}

func errorResponse(status int, code, message string) *storeapi.ErrorResponse {
	resp := &storeapi.ErrorResponse{Code: code, Message: message}
	resp.Data.Status = status
	return resp
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse(status, code, message))
}
