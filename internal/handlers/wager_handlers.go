package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rps-backend/internal/commitment"
	"rps-backend/internal/escrow"
	"rps-backend/internal/game"
	"rps-backend/internal/models"
	"rps-backend/internal/repository"
	"rps-backend/internal/services"
)

// ============================================================================
// Wager Handlers
// ============================================================================
// Lifecycle endpoints:
// - CreateEscrowHandler:  provision a single-use escrow address
// - CreateWagerHandler:   record a funded wager with the maker's commitment
// - TakeWagerHandler:     one-taker-only conditional take
// - ResolveWagerHandler:  decide phase, no fund movement
// - CompleteWagerHandler: payout + finalize
// ============================================================================

// WagerHandler exposes the wager lifecycle over HTTP.
type WagerHandler struct {
	wagerService *services.WagerService
	resolver     *services.ResolverService
}

func NewWagerHandler(wagerService *services.WagerService, resolver *services.ResolverService) *WagerHandler {
	return &WagerHandler{wagerService: wagerService, resolver: resolver}
}

type createWagerRequest struct {
	MakerAddress     string `json:"maker_address" binding:"required"`
	MakerChoice      string `json:"maker_choice" binding:"required"`
	Amount           string `json:"amount" binding:"required"`
	FundingSignature string `json:"funding_signature" binding:"required"`
	EscrowAddress    string `json:"escrow_address" binding:"required"`
	TokenMint        string `json:"token_mint"`
	TokenDecimals    int    `json:"token_decimals"`
}

type takeWagerRequest struct {
	TakerAddress     string `json:"taker_address" binding:"required"`
	TakerChoice      string `json:"taker_choice" binding:"required"`
	FundingSignature string `json:"funding_signature" binding:"required"`
}

type completeWagerRequest struct {
	Winner string `json:"winner" binding:"required"`
	Rule   string `json:"rule" binding:"required"`
}

// CreateEscrowHandler provisions a fresh escrow address.
// POST /api/escrows
func (h *WagerHandler) CreateEscrowHandler(c *gin.Context) {
	account, err := h.wagerService.CreateEscrow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":             account.ID,
		"escrow_address": account.Address,
	})
}

// CreateWagerHandler records a new wager. The maker's funding transfer
// must already be confirmed; this endpoint does not move funds.
// POST /api/wagers
func (h *WagerHandler) CreateWagerHandler(c *gin.Context) {
	var req createWagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	wager, err := h.wagerService.Create(c.Request.Context(), services.CreateWagerInput{
		MakerAddress:     req.MakerAddress,
		MakerChoice:      req.MakerChoice,
		Amount:           req.Amount,
		FundingSignature: req.FundingSignature,
		EscrowAddress:    req.EscrowAddress,
		TokenMint:        req.TokenMint,
		TokenDecimals:    req.TokenDecimals,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"wager": wager})
}

// TakeWagerHandler assigns the taker side of an open wager.
// POST /api/wagers/:id/take
func (h *WagerHandler) TakeWagerHandler(c *gin.Context) {
	var req takeWagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	wager, err := h.wagerService.Take(c.Request.Context(), c.Param("id"), services.TakeWagerInput{
		TakerAddress:     req.TakerAddress,
		TakerChoice:      req.TakerChoice,
		FundingSignature: req.FundingSignature,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wager": wager})
}

// ResolveWagerHandler runs the decide phase and returns the decision
// without moving funds, so a UI can show the winner before payout.
// POST /api/wagers/:id/resolve
func (h *WagerHandler) ResolveWagerHandler(c *gin.Context) {
	decision, err := h.resolver.Decide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": decision})
}

// CompleteWagerHandler executes the payout for a decided wager.
// POST /api/wagers/:id/complete
func (h *WagerHandler) CompleteWagerHandler(c *gin.Context) {
	var req completeWagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	err := h.resolver.Complete(c.Request.Context(), &services.Decision{
		WagerID: c.Param("id"),
		Winner:  req.Winner,
		Rule:    game.PayoutRule(req.Rule),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResolveAndCompleteHandler re-runs the full resolution for a wager in
// one call. Used by operators after a disbursement failure; the stored
// winner, if any, is replayed rather than recomputed, so repeating it
// is safe.
// POST /api/admin/wagers/:id/complete
func (h *WagerHandler) ResolveAndCompleteHandler(c *gin.Context) {
	decision, err := h.resolver.Decide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.resolver.Complete(c.Request.Context(), decision); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "decision": decision})
}

// GetWagerHandler returns one wager.
// GET /api/wagers/:id
func (h *WagerHandler) GetWagerHandler(c *gin.Context) {
	wager, err := h.wagerService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wager": wager})
}

// ListWagersHandler lists wagers by lifecycle status or participant
// address, newest first.
// GET /api/wagers?status=open&address=...&limit=50
func (h *WagerHandler) ListWagersHandler(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit", "received": raw})
			return
		}
		limit = parsed
	}

	if address := c.Query("address"); address != "" {
		wagers, err := h.wagerService.ListByAddress(c.Request.Context(), address, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wagers": wagers, "count": len(wagers)})
		return
	}

	status := models.WagerStatus(c.DefaultQuery("status", string(models.WagerStatusOpen)))
	wagers, err := h.wagerService.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wagers": wagers, "count": len(wagers)})
}

// respondError translates component errors into caller-facing
// responses. AlreadyTaken and NotReady are expected, frequent outcomes;
// decode and disbursement failures imply stuck funds or corrupted state
// and are logged loudly.
func respondError(c *gin.Context, err error) {
	var decodeErr *commitment.DecodeError
	var disbErr *services.DisbursementError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Wager not found", "code": "NOT_FOUND"})
	case errors.Is(err, repository.ErrAlreadyTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Wager already taken", "code": "ALREADY_TAKEN"})
	case errors.Is(err, services.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "Wager is not ready to be resolved", "code": "NOT_READY"})
	case errors.Is(err, services.ErrDecisionMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "Submitted decision does not match the wager outcome", "code": "DECISION_MISMATCH"})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_INPUT"})
	case errors.As(err, &decodeErr):
		logrus.WithError(err).Error("Commitment decode failure surfaced to API")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored commitment is corrupted", "code": "DECODE_ERROR"})
	case errors.Is(err, escrow.ErrSecretCorrupted):
		logrus.WithError(err).Error("Custodial secret corruption surfaced to API")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Escrow secret is corrupted", "code": "SECRET_CORRUPTED"})
	case errors.As(err, &disbErr):
		logrus.WithError(err).Error("Disbursement exhausted retries")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payout failed, wager can be completed again later", "code": "DISBURSEMENT_FAILED"})
	case errors.Is(err, escrow.ErrProvisioning):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Escrow provisioning failed, retry creation", "code": "PROVISIONING_ERROR"})
	default:
		// Anything unclassified is a server fault; never echo internals
		// back to the caller.
		logrus.WithError(err).Error("Unexpected error surfaced to API")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "INTERNAL_ERROR"})
	}
}
