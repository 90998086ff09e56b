package vault

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sessionvault/internal/amount"
	"github.com/mbd888/sessionvault/internal/logging"
	"github.com/mbd888/sessionvault/internal/validation"
)

// Handler provides HTTP endpoints for the vault.
type Handler struct {
	service *Service
}

// NewHandler creates a vault handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the vault routes. Mutating routes expect the
// signature middleware to have run on the group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/vault", h.GetConfig)
	r.POST("/vault/initialize", h.Initialize)

	r.POST("/bookings", h.CreateBooking)
	r.GET("/bookings/:id", h.GetBooking)
	r.POST("/bookings/:id/finalize", h.FinalizeSession)
	r.POST("/bookings/:id/reclaim", h.ReclaimStaleSession)

	r.GET("/agents/:address/bookings", validation.AddressParamMiddleware(), h.ListBookings)
}

// BookingResponse is the wire form of a booking. Amounts are base-unit strings.
type BookingResponse struct {
	ID             uint64     `json:"id"`
	Payer          string     `json:"payer"`
	Payee          string     `json:"payee"`
	Rate           string     `json:"rate"`
	BookedDuration uint64     `json:"bookedDuration"`
	Deposit        string     `json:"deposit"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	ActualDuration *uint64    `json:"actualDuration,omitempty"`
	Payout         string     `json:"payout,omitempty"`
	Refund         string     `json:"refund,omitempty"`
	SettledAt      *time.Time `json:"settledAt,omitempty"`
}

// NewBookingResponse converts a booking for the API.
func NewBookingResponse(b *Booking) BookingResponse {
	resp := BookingResponse{
		ID:             b.ID,
		Payer:          b.Payer,
		Payee:          b.Payee,
		Rate:           amount.Format(b.Rate),
		BookedDuration: b.BookedDuration,
		Deposit:        amount.Format(b.Deposit),
		Status:         b.Status,
		CreatedAt:      b.CreatedAt,
		ActualDuration: b.ActualDuration,
		SettledAt:      b.SettledAt,
	}
	if b.Payout != nil {
		resp.Payout = amount.Format(b.Payout)
	}
	if b.Refund != nil {
		resp.Refund = amount.Format(b.Refund)
	}
	return resp
}

// GetConfig handles GET /v1/vault
func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.service.Config(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vault": cfg, "custody": h.service.Custody()})
}

// Initialize handles POST /v1/vault/initialize
func (h *Handler) Initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Address("admin", req.Admin),
		validation.Address("oracle", req.Oracle),
		validation.MaxLength("token", req.Token, validation.MaxTokenIDLength),
	); len(errs) > 0 {
		validation.Respond(c, errs)
		return
	}

	cfg, err := h.service.Initialize(c.Request.Context(), req.Admin, req.Token, req.Oracle)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"vault": cfg})
}

// CreateBooking handles POST /v1/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Address("payer", req.Payer),
		validation.Address("payee", req.Payee),
	); len(errs) > 0 {
		validation.Respond(c, errs)
		return
	}

	rate, ok := amount.Parse(req.Rate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_rate",
			"message": "rate must be an integer amount in base units",
		})
		return
	}

	ctx := c.Request.Context()
	id, err := h.service.CreateBooking(ctx, req.Payer, req.Payee, rate, req.BookedDuration)
	if err != nil {
		h.writeError(c, err)
		return
	}

	booking, err := h.service.GetBooking(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bookingId": id, "booking": NewBookingResponse(booking)})
}

// GetBooking handles GET /v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	booking, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": NewBookingResponse(booking)})
}

// FinalizeSession handles POST /v1/bookings/:id/finalize
func (h *Handler) FinalizeSession(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "actualDuration is required",
		})
		return
	}

	booking, err := h.service.FinalizeSession(c.Request.Context(), id, *req.ActualDuration)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": NewBookingResponse(booking)})
}

// ReclaimStaleSession handles POST /v1/bookings/:id/reclaim
func (h *Handler) ReclaimStaleSession(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req ReclaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "caller is required",
		})
		return
	}
	if errs := validation.Validate(validation.Address("caller", req.Caller)); len(errs) > 0 {
		validation.Respond(c, errs)
		return
	}

	booking, err := h.service.ReclaimStaleSession(c.Request.Context(), req.Caller, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": NewBookingResponse(booking)})
}

// ListBookings handles GET /v1/agents/:address/bookings
func (h *Handler) ListBookings(c *gin.Context) {
	limit := DefaultListLimit
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	bookings, err := h.service.ListByParty(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, NewBookingResponse(b))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out, "count": len(out)})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	code := ErrorCode(err)
	status := HTTPStatus(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.L(c.Request.Context()).Error("vault request failed", "path", c.Request.URL.Path, "error", err)
		msg = "Internal error"
	}
	c.JSON(status, gin.H{"error": code, "message": msg})
}

func bookingID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_booking_id",
			"message": "booking id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}
