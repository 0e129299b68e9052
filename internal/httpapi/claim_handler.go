package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casefunnel/lead-intake/internal/reqctx"
	"github.com/casefunnel/lead-intake/internal/usecase"
)

// ClaimHandler exposes the exclusive lead claim.
type ClaimHandler struct {
	claims *usecase.ClaimService
}

// NewClaimHandler creates the handler.
func NewClaimHandler(claims *usecase.ClaimService) *ClaimHandler {
	return &ClaimHandler{claims: claims}
}

// HandleClaim is POST /api/leads/:id/claim. The acting user and firm come
// from the verified token, never from the request body.
func (h *ClaimHandler) HandleClaim(c *gin.Context) {
	leadID := c.Param("id")
	ctx := c.Request.Context()

	userID, err := reqctx.UserIDFromContext(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	firmID, err := reqctx.FirmIDFromContext(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "user is not associated with a firm"})
		return
	}

	lead, err := h.claims.Claim(ctx, leadID, firmID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}
