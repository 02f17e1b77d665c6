// Package handlers exposes the attribution pipeline over HTTP. The calling
// layer passes session tokens opaquely; these handlers neither set nor read
// cookies.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/commercetrack/attribution/internal/collab"
	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/session"
	"github.com/commercetrack/attribution/internal/store"
)

// SessionService is the lifecycle surface the handlers drive.
type SessionService interface {
	Create(ctx context.Context, params session.CreateParams) (*models.Session, error)
	Resume(ctx context.Context, token string) (*models.Session, error)
	LinkCart(ctx context.Context, token, cartID string) (*models.CartLinkage, error)
	RecordConversion(ctx context.Context, token, orderID string) (*models.Session, error)
}

type SessionHandler struct {
	sessions SessionService
	carts    collab.CartService
	orders   collab.OrderService
	logger   logger.Logger
}

func NewSessionHandler(sessions SessionService, carts collab.CartService, orders collab.OrderService, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		carts:    carts,
		orders:   orders,
		logger:   log,
	}
}

type createSessionRequest struct {
	PageID   string `json:"page_id" binding:"required"`
	Token    string `json:"token"`
	Query    string `json:"query"`
	Referrer string `json:"referrer"`
}

type linkCartRequest struct {
	CartID string `json:"cart_id"`
}

type convertRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// Create starts or resumes a session. The rendering layer forwards the raw
// query string and referrer; attribution resolves from them only when a new
// session is actually minted. Responds 201 for a new session, 200 for a
// resumed one.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	rawQuery, err := url.ParseQuery(req.Query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query string", "details": err.Error()})
		return
	}

	referrer := req.Referrer
	if referrer == "" {
		referrer = c.Request.Referer()
	}

	created, err := h.sessions.Create(c.Request.Context(), session.CreateParams{
		PageID:             req.PageID,
		PresentedToken:     req.Token,
		RawQuery:           rawQuery,
		Referrer:           referrer,
		VisitorFingerprint: fingerprint(c.ClientIP(), c.Request.UserAgent()),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if created.Token == req.Token {
		status = http.StatusOK
	}
	c.JSON(status, created)
}

// Resume refreshes the activity clock for a known token.
func (h *SessionHandler) Resume(c *gin.Context) {
	resumed, err := h.sessions.Resume(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resumed)
}

// LinkCart attaches a cart to the session. Without an explicit cart_id the
// cart collaborator supplies (or creates) one for the session. A session
// already linked to a different cart answers 200 with the original linkage;
// the first write stays authoritative.
func (h *SessionHandler) LinkCart(c *gin.Context) {
	// cart_id is optional; an empty body means "let the cart service decide".
	var req linkCartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	tok := c.Param("token")

	cartID := req.CartID
	if cartID == "" {
		// Provisioning a cart is an outward call to the cart collaborator.
		// Make sure the token still resolves to a live session first, or an
		// unknown token would leave an orphan cart behind.
		if _, err := h.sessions.Resume(c.Request.Context(), tok); err != nil {
			h.respondError(c, err)
			return
		}
		cart, err := h.carts.GetOrCreateCart(c.Request.Context(), tok)
		if err != nil {
			h.logger.Error("Cart collaborator unavailable",
				logger.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Cart service unavailable"})
			return
		}
		cartID = cart.ID
	}

	linkage, err := h.sessions.LinkCart(c.Request.Context(), tok, cartID)
	if errors.Is(err, session.ErrSessionAlreadyLinked) {
		c.JSON(http.StatusOK, gin.H{"linkage": linkage, "already_linked": true})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"linkage": linkage})
}

// Convert records an order against the session. Duplicate delivery of the
// same notification returns the converted session again without error. The
// order record, when visible, is attached for display only.
func (h *SessionHandler) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	converted, err := h.sessions.RecordConversion(c.Request.Context(), c.Param("token"), req.OrderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"session": converted}
	if order, orderErr := h.orders.GetOrder(c.Request.Context(), req.OrderID); orderErr == nil {
		resp["order"] = order
	}
	c.JSON(http.StatusOK, resp)
}

// respondError maps lifecycle errors onto the HTTP surface.
func (h *SessionHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, session.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Session expired"})
	case errors.Is(err, session.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Conversion cannot be attributed to this session"})
	case errors.Is(err, store.ErrCartAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "Cart is already linked to another session"})
	case errors.Is(err, store.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable, retry with backoff"})
	default:
		h.logger.Error("Session operation failed",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// fingerprint derives the weak correlation key from client address and
// user agent. Never an identity guarantee, only a hint for reconciliation.
func fingerprint(ip, userAgent string) *string {
	if ip == "" && userAgent == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	fp := hex.EncodeToString(sum[:])
	return &fp
}
