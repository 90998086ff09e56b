package experts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sessionvault/internal/logging"
	"github.com/mbd888/sessionvault/internal/validation"
)

// Handler provides HTTP endpoints for the expert registry.
type Handler struct {
	service *Service
}

// NewHandler creates an expert registry handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the registry under /experts.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/experts")
	g.POST("/initialize", h.Initialize)
	g.GET("", h.List)
	g.GET("/:address", validation.AddressParamMiddleware(), h.GetStatus)
	g.POST("/:address/verify", validation.AddressParamMiddleware(), h.Verify)
	g.POST("/:address/ban", validation.AddressParamMiddleware(), h.Ban)
}

// Initialize handles POST /v1/experts/initialize
func (h *Handler) Initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "admin is required",
		})
		return
	}
	if errs := validation.Validate(validation.Address("admin", req.Admin)); len(errs) > 0 {
		validation.Respond(c, errs)
		return
	}

	if err := h.service.Initialize(c.Request.Context(), req.Admin); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"admin": validation.NormalizeAddress(req.Admin)})
}

// GetStatus handles GET /v1/experts/:address
func (h *Handler) GetStatus(c *gin.Context) {
	addr := validation.NormalizeAddress(c.Param("address"))
	status, err := h.service.Status(c.Request.Context(), addr)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expert": addr, "status": status})
}

// List handles GET /v1/experts
func (h *Handler) List(c *gin.Context) {
	status := Status(c.Query("status"))
	switch status {
	case "", StatusUnverified, StatusVerified, StatusBanned:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "status must be unverified, verified or banned",
		})
		return
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.service.List(c.Request.Context(), status, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []*Record{}
	}
	c.JSON(http.StatusOK, gin.H{"experts": records, "count": len(records)})
}

// Verify handles POST /v1/experts/:address/verify
func (h *Handler) Verify(c *gin.Context) {
	addr := validation.NormalizeAddress(c.Param("address"))
	if err := h.service.Verify(c.Request.Context(), addr); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expert": addr, "status": StatusVerified})
}

// Ban handles POST /v1/experts/:address/ban
func (h *Handler) Ban(c *gin.Context) {
	addr := validation.NormalizeAddress(c.Param("address"))
	if err := h.service.Ban(c.Request.Context(), addr); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expert": addr, "status": StatusBanned})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, ErrNotInitialized):
		status, code = http.StatusConflict, "not_initialized"
	case errors.Is(err, ErrAlreadyInitialized):
		status, code = http.StatusConflict, "already_initialized"
	case errors.Is(err, ErrNotAuthorized):
		status, code = http.StatusForbidden, "not_authorized"
	case errors.Is(err, ErrAlreadyVerified):
		status, code = http.StatusConflict, "already_verified"
	case errors.Is(err, ErrAlreadyBanned):
		status, code = http.StatusConflict, "already_banned"
	case errors.Is(err, ErrInvalidAddress):
		status, code = http.StatusBadRequest, "invalid_address"
	default:
		logging.L(c.Request.Context()).Error("expert request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal error"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
