package handlers

import (
	"net/http"

	"ideabox/internal/services"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// Create POST /api/comments {ideaId, content}. userId is optional and must be the caller.
func (h *CommentHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in struct {
		IdeaID  uint   `json:"ideaId"`
		UserID  *uint  `json:"userId"`
		Content string `json:"content"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if in.IdeaID == 0 {
		badRequest(c, "ideaId", "is required")
		return
	}
	if in.UserID != nil && *in.UserID != actor.UserID {
		respondError(c, services.ErrForbidden)
		return
	}

	comment, err := h.comments.Add(c.Request.Context(), actor, in.IdeaID, in.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// Transfer POST /api/comments/transfer {userId}
func (h *CommentHandler) Transfer(c *gin.Context) {
	userID, ok := transferTarget(c)
	if !ok {
		return
	}
	moved, err := h.comments.TransferToOwner(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transferred": moved})
}
