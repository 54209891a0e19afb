package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"ideabox/internal/services"
	"ideabox/internal/utils"

	"github.com/gin-gonic/gin"
)

type IdeaHandler struct {
	ideas     *services.IdeaService
	comments  *services.CommentService
	media     *services.MediaService
	decisions *services.DecisionService
}

func NewIdeaHandler(ideas *services.IdeaService, comments *services.CommentService, media *services.MediaService, decisions *services.DecisionService) *IdeaHandler {
	return &IdeaHandler{ideas: ideas, comments: comments, media: media, decisions: decisions}
}

// parseDeadline accepts RFC 3339 or a bare YYYY-MM-DD date (midnight UTC).
func parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("deadline %q is neither RFC 3339 nor YYYY-MM-DD", s)
}

// List GET /api/ideas?user_id=&statut=&sort=recent&toValidate=1
func (h *IdeaHandler) List(c *gin.Context) {
	verr := &services.ValidationError{}
	userID, err := utils.ParseOptionalID(c.Query("user_id"))
	if err != nil {
		verr.Add("user_id", "must be a positive integer")
	}
	statusID, err := utils.ParseOptionalID(c.Query("statut"))
	if err != nil {
		verr.Add("statut", "must be a positive integer")
	}
	var toValidate bool
	switch c.Query("toValidate") {
	case "", "0", "false":
	case "1", "true":
		toValidate = true
	default:
		verr.Add("toValidate", "must be 1, 0, true or false")
	}
	if err := verr.Err(); err != nil {
		respondError(c, err)
		return
	}

	cards, err := h.ideas.List(c.Request.Context(), services.ListQuery{
		UserID:     userID,
		StatusID:   statusID,
		Sort:       c.Query("sort"),
		ToValidate: toValidate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

// History GET /api/ideas/history
func (h *IdeaHandler) History(c *gin.Context) {
	ideas, err := h.decisions.History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ideas)
}

// Get GET /api/ideas/:id
func (h *IdeaHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.ideas.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type createIdeaInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Deadline     string `json:"deadline"`
	Categories   []uint `json:"categories"`
	Participants []uint `json:"participants"`
	CreatorID    *uint  `json:"creatorId"`
}

// Create POST /api/ideas
func (h *IdeaHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in createIdeaInput
	if !bindJSON(c, &in) {
		return
	}
	deadline, err := parseDeadline(in.Deadline)
	if err != nil {
		badRequest(c, "deadline", err.Error())
		return
	}

	idea, err := h.ideas.Create(c.Request.Context(), actor, services.NewIdea{
		Title:          in.Title,
		Description:    in.Description,
		Deadline:       deadline,
		CategoryIDs:    in.Categories,
		ParticipantIDs: in.Participants,
		CreatorID:      in.CreatorID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, idea)
}

// Creator GET /api/ideas/:id/creator
func (h *IdeaHandler) Creator(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	creator, err := h.ideas.Creator(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, creator)
}

// Categories GET /api/ideas/:id/categories
func (h *IdeaHandler) Categories(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cats, err := h.ideas.Categories(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

// Participants GET /api/ideas/:id/participants
func (h *IdeaHandler) Participants(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	participants, err := h.ideas.Participants(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participants)
}

// Workflow GET /api/ideas/:id/workflow. The timeline is null when the idea's dates
// cannot be split into phases.
func (h *IdeaHandler) Workflow(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	tl, err := h.ideas.Timeline(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": tl})
}

// Comments GET /api/ideas/:id/comments
func (h *IdeaHandler) Comments(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	comments, err := h.comments.ListForIdea(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// Medias GET /api/ideas/:id/medias
func (h *IdeaHandler) Medias(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	media, err := h.media.List(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, media)
}

// UploadMedias POST /api/ideas/:id/medias, multipart field "files".
func (h *IdeaHandler) UploadMedias(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "files", "multipart form expected")
		return
	}

	media, err := h.media.Upload(c.Request.Context(), actor, id, form.File["files"])
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, media)
}

// Transfer POST /api/ideas/transfer {userId}
func (h *IdeaHandler) Transfer(c *gin.Context) {
	userID, ok := transferTarget(c)
	if !ok {
		return
	}
	moved, err := h.ideas.TransferToOwner(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transferred": moved})
}

// transferTarget reads {userId} and checks the caller may act for that user.
func transferTarget(c *gin.Context) (uint, bool) {
	actor, ok := currentActor(c)
	if !ok {
		return 0, false
	}
	var in struct {
		UserID uint `json:"userId"`
	}
	if !bindJSON(c, &in) {
		return 0, false
	}
	if in.UserID == 0 {
		badRequest(c, "userId", "is required")
		return 0, false
	}
	if !actor.CanActFor(in.UserID) {
		respondError(c, services.ErrForbidden)
		return 0, false
	}
	return in.UserID, true
}
