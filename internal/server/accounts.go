package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sessionvault/internal/amount"
	"github.com/mbd888/sessionvault/internal/authz"
	"github.com/mbd888/sessionvault/internal/logging"
	"github.com/mbd888/sessionvault/internal/token"
	"github.com/mbd888/sessionvault/internal/validation"
	"github.com/mbd888/sessionvault/internal/vault"
)

// tokenFor picks the ?token= query parameter, falling back to the vault's
// payment token.
func (s *Server) tokenFor(c *gin.Context) (string, bool) {
	if t := c.Query("token"); t != "" {
		if len(t) > validation.MaxTokenIDLength {
			validation.Respond(c, validation.Errors{{Field: "token", Message: "exceeds maximum length"}})
			return "", false
		}
		return t, true
	}
	t, err := s.vault.Token(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return "", false
	}
	return t, true
}

// balanceHandler handles GET /v1/balances/:address
func (s *Server) balanceHandler(c *gin.Context) {
	tok, ok := s.tokenFor(c)
	if !ok {
		return
	}
	addr := validation.NormalizeAddress(c.Param("address"))

	bal, err := s.ledger.Balance(c.Request.Context(), tok, addr)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"token":   tok,
		"balance": amount.Format(bal),
	})
}

// transfersHandler handles GET /v1/balances/:address/transfers
func (s *Server) transfersHandler(c *gin.Context) {
	tok, ok := s.tokenFor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	transfers, err := s.ledger.History(c.Request.Context(), tok, c.Param("address"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if transfers == nil {
		transfers = []*token.Transfer{}
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers, "count": len(transfers)})
}

// MintRequest is the body of POST /v1/dev/mint
type MintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// mintHandler handles POST /v1/dev/mint. Development only; the caller must
// be the vault admin.
func (s *Server) mintHandler(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
		return
	}
	if errs := validation.Validate(
		validation.Required("to", req.To),
		validation.Address("to", req.To),
		validation.Required("amount", req.Amount),
		validation.Units("amount", req.Amount),
		validation.MaxLength("token", req.Token, validation.MaxTokenIDLength),
	); len(errs) > 0 {
		validation.Respond(c, errs)
		return
	}

	ctx := c.Request.Context()
	cfg, err := s.vault.Config(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := authz.Require(ctx, cfg.Admin); err != nil {
		s.writeError(c, err)
		return
	}

	tok := req.Token
	if tok == "" {
		tok = cfg.Token
	}
	amt, _ := amount.Parse(req.Amount)
	to := validation.NormalizeAddress(req.To)
	if err := s.ledger.Mint(ctx, tok, to, amt); err != nil {
		s.writeError(c, err)
		return
	}

	bal, err := s.ledger.Balance(ctx, tok, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	logging.L(ctx).Info("dev mint", "to", to, "token", tok, "amount", req.Amount)
	c.JSON(http.StatusOK, gin.H{"to": to, "token": tok, "minted": req.Amount, "balance": amount.Format(bal)})
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := vault.ErrorCode(err)
	status := vault.HTTPStatus(code)
	msg := err.Error()
	if errors.Is(err, token.ErrInvalidAmount) {
		code, status = "invalid_amount", http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logging.L(c.Request.Context()).Error("request failed", "path", c.Request.URL.Path, "error", err)
		msg = "Internal error"
	}
	c.JSON(status, gin.H{"error": code, "message": msg})
}
