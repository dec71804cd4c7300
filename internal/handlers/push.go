package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coursebeat/coursebeat/internal/models"
)

type PushSubscribeKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type PushSubscribeRequest struct {
	Endpoint string            `json:"endpoint" binding:"required"`
	Keys     PushSubscribeKeys `json:"keys" binding:"required"`
}

func (h *Handlers) GetVAPIDPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"publicKey": h.config.VAPIDKeys.PublicKey,
	})
}

// SubscribePush registers a delivery target. Browsers send real encryption
// keys; the mobile app sends its provider token as the endpoint with the
// sentinel "expo" keys.
func (h *Handlers) SubscribePush(c *gin.Context) {
	userID := currentUserID(c)

	var req PushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := &models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256DH:   req.Keys.P256DH,
		Auth:     req.Keys.Auth,
	}
	if err := h.subscriptions.Save(c.Request.Context(), sub); err != nil {
		h.logger.Error("failed to save subscription", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, sub)
}

func (h *Handlers) UnsubscribePush(c *gin.Context) {
	userID := currentUserID(c)

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.subscriptions.DeleteByUserEndpoint(c.Request.Context(), userID, req.Endpoint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Unsubscribed"})
}
