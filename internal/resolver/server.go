// Package resolver exposes the prompt-token lookup API consumed by the
// external prompt bot.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"promptika-bot/internal/database"

	"github.com/gin-gonic/gin"
)

// Server serves prompt-token lookups over HTTP.
type Server struct {
	tokens database.PromptTokenRepository
	apiKey string
	addr   string
	http   *http.Server
}

// New creates a resolver Server bound to bind:port. An empty apiKey disables
// authentication.
func New(tokens database.PromptTokenRepository, apiKey, bind string, port int) (*Server, error) {
	if tokens == nil {
		return nil, fmt.Errorf("resolver: token repository is required")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("resolver: invalid port %d", port)
	}
	s := &Server{
		tokens: tokens,
		apiKey: apiKey,
		addr:   bind + ":" + strconv.Itoa(port),
	}
	return s, nil
}

// Handler builds the Gin engine with all routes attached.
func (s *Server) Handler() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/v1", s.requireAPIKey)
	v1.GET("/prompt/:token", s.handlePrompt)

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Resolver] Listening on %s", s.addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("resolver shutdown: %w", err)
		}
		log.Println("[Resolver] Stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("resolver serve: %w", err)
	}
}

// requireAPIKey rejects requests without the configured X-Resolver-Key header.
func (s *Server) requireAPIKey(c *gin.Context) {
	if s.apiKey == "" {
		return
	}
	if c.GetHeader("X-Resolver-Key") != s.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePrompt resolves a prompt token. With consume=true the token is
// deleted after a successful read; a failed delete still returns the prompt.
func (s *Server) handlePrompt(c *gin.Context) {
	token := c.Param("token")

	prompt, err := s.tokens.Get(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, database.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		log.Printf("[Resolver] Failed to read token %q: %v", token, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if consume, _ := strconv.ParseBool(c.Query("consume")); consume {
		if err := s.tokens.Delete(c.Request.Context(), token); err != nil {
			log.Printf("[Resolver] Failed to consume token %q: %v", token, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "prompt": prompt})
}
