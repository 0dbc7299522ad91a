package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server exposes a Gateway over the REST contract:
//
//	POST   /:collection        -> {id}
//	GET    /:collection        -> {items, hasMore, totalPages, total}
//	GET    /:collection/:id    -> record
//	PUT    /:collection/:id    -> updated record
//	PATCH  /:collection/:id    -> updated record
//	DELETE /:collection/:id    -> 204
type Server struct {
	Backend Gateway
	Logger  *slog.Logger
}

// NewServer wraps backend. logger may be nil.
func NewServer(backend Gateway, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Backend: backend, Logger: logger}
}

// Register mounts the gateway routes on r. Callers add authentication
// middleware to r beforehand.
func (s *Server) Register(r gin.IRoutes) {
	r.POST("/:collection", s.create)
	r.GET("/:collection", s.query)
	r.GET("/:collection/:id", s.get)
	r.PUT("/:collection/:id", s.update)
	r.PATCH("/:collection/:id", s.update)
	r.DELETE("/:collection/:id", s.delete)
}

func (s *Server) create(c *gin.Context) {
	var doc Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		s.fail(c, "create", ErrInvalid)
		return
	}
	id, err := s.Backend.Create(c.Request.Context(), c.Param("collection"), doc)
	if err != nil {
		s.fail(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) query(c *gin.Context) {
	q, err := DecodeQuery(c.Request.URL.Query())
	if err != nil {
		s.fail(c, "query", err)
		return
	}
	res, err := s.Backend.Query(c.Request.Context(), c.Param("collection"), q)
	if err != nil {
		s.fail(c, "query", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) get(c *gin.Context) {
	raw, err := s.Backend.Get(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		s.fail(c, "get", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (s *Server) update(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, "update", ErrInvalid)
		return
	}
	ctx := c.Request.Context()
	collection, id := c.Param("collection"), c.Param("id")
	if err := s.Backend.Update(ctx, collection, id, patch); err != nil {
		s.fail(c, "update", err)
		return
	}
	raw, err := s.Backend.Get(ctx, collection, id)
	if err != nil {
		s.fail(c, "update", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", json.RawMessage(raw))
}

func (s *Server) delete(c *gin.Context) {
	if err := s.Backend.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		s.fail(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, ErrInvalid):
		status, code = http.StatusBadRequest, "invalid"
	case errors.Is(err, ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}
	if status >= 500 {
		s.Logger.Error("gateway request failed",
			"op", op, "collection", c.Param("collection"), "id", c.Param("id"), "error", err)
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
