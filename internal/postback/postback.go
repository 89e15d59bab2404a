// Package postback receives partner callbacks that confirm registrations and
// deposits.
package postback

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/funnelbot/core/logger"
)

// Handler applies confirmed events to the funnel.
type Handler interface {
	ConfirmRegistration(ctx context.Context, userID int64) error
	ConfirmDeposit(ctx context.Context, userID int64, amount decimal.NullDecimal, country string) error
}

// SecretHeader may carry the shared secret instead of the query.
const SecretHeader = "X-Postback-Secret"

type request struct {
	UserID  string `form:"user_id"`
	Sub1    string `form:"sub1"`
	Amount  string `form:"amount"`
	Country string `form:"country"`
	Secret  string `form:"secret"`
}

func (r request) userID() (int64, error) {
	raw := strings.TrimSpace(r.UserID)
	if raw == "" {
		raw = strings.TrimSpace(r.Sub1)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func (r request) amount() (decimal.NullDecimal, error) {
	raw := strings.TrimSpace(r.Amount)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	return decimal.NewNullDecimal(d), nil
}

type routes struct {
	h      Handler
	secret string
}

// NewRouter builds the gin engine. An empty secret accepts every caller;
// config loading refuses one when the receiver is enabled.
func NewRouter(h Handler, secret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	rt := &routes{h: h, secret: secret}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := r.Group("/postback")
	g.Use(rt.authorize)
	{
		g.GET("/registration", rt.registration)
		g.POST("/registration", rt.registration)
		g.GET("/deposit", rt.deposit)
		g.POST("/deposit", rt.deposit)
	}
	return r
}

func (rt *routes) authorize(c *gin.Context) {
	if rt.secret == "" {
		c.Next()
		return
	}
	got := c.GetHeader(SecretHeader)
	if got == "" {
		got = c.Query("secret")
	}
	if got == "" {
		got = c.PostForm("secret")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(rt.secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (rt *routes) registration(c *gin.Context) {
	var req request
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	id, err := req.userID()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := rt.h.ConfirmRegistration(c.Request.Context(), id); err != nil {
		rt.fail(c, "postback.registration", id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (rt *routes) deposit(c *gin.Context) {
	var req request
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	id, err := req.userID()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := req.amount()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if err := rt.h.ConfirmDeposit(c.Request.Context(), id, amount, country); err != nil {
		rt.fail(c, "postback.deposit", id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (rt *routes) fail(c *gin.Context, event string, id int64, err error) {
	logger.Error(c.Request.Context(), logger.CompPostback, event,
		slog.String("status", "fail"),
		slog.Int64("target_id", id),
		slog.String("err", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithRID(c.Request.Context(), logger.NewRID("postback")))
		c.Next()
		logger.Info(c.Request.Context(), logger.CompPostback, "http.request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("code", c.Writer.Status()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
}

// Server runs the router on its own listener.
type Server struct {
	srv *http.Server
}

// NewServer prepares a server on addr.
func NewServer(addr string, h Handler, secret string) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h, secret),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("postback listen %s: %w", s.srv.Addr, err)
	}
	logger.Info(ctx, logger.CompPostback, "http.start", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, logger.CompPostback, "http.serve",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
