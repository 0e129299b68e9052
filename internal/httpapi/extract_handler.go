package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casefunnel/lead-intake/internal/usecase"
)

// ExtractHandler triggers re-extraction for a stored conversation. It sits
// behind the internal token: operations use it after prompt or taxonomy
// changes, or to repair a conversation whose fan-out failed.
type ExtractHandler struct {
	intake *usecase.IntakeService
}

// NewExtractHandler creates the handler.
func NewExtractHandler(intake *usecase.IntakeService) *ExtractHandler {
	return &ExtractHandler{intake: intake}
}

type extractRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Transcript     string `json:"transcript"`
}

// HandleExtract is POST /internal/extract. A transcript in the body is stored
// before extraction; without one the stored transcript is reused.
func (h *ExtractHandler) HandleExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "conversation_id is required"})
		return
	}

	var (
		result *usecase.IntakeResult
		err    error
	)
	if req.Transcript != "" {
		result, err = h.intake.IngestTranscript(c.Request.Context(), req.ConversationID, req.Transcript)
	} else {
		result, err = h.intake.Reextract(c.Request.Context(), req.ConversationID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Extraction completed",
		"result":  result,
	})
}
