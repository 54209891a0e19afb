package handlers

import (
	"net/http"
	"strings"

	"ideabox/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the decision routes. They are mounted behind AdminRequired.
type AdminHandler struct {
	decisions *services.DecisionService
}

func NewAdminHandler(decisions *services.DecisionService) *AdminHandler {
	return &AdminHandler{decisions: decisions}
}

// decisionInput is the admin form. The verdict comes either as a status id
// (statusId, or statut_id from older clients) or as a word in status.
type decisionInput struct {
	StatusID      *uint   `json:"statusId"`
	StatutID      *uint   `json:"statut_id"`
	Status        string  `json:"status"`
	Justification string  `json:"justification"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Deadline      *string `json:"deadline"`
}

func (in decisionInput) verdict() (services.Verdict, bool) {
	id := in.StatusID
	if id == nil {
		id = in.StatutID
	}
	if id != nil {
		return services.VerdictForStatus(*id)
	}
	switch strings.ToLower(strings.TrimSpace(in.Status)) {
	case "validate", "validated":
		return services.VerdictValidate, true
	case "reject", "rejected":
		return services.VerdictReject, true
	case "delete":
		return services.VerdictDelete, true
	}
	return "", false
}

// Record PUT /api/ideas/:id
func (h *AdminHandler) Record(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in decisionInput
	if !bindJSON(c, &in) {
		return
	}
	verdict, ok := in.verdict()
	if !ok {
		badRequest(c, "status", "must be validated (2) or rejected (3)")
		return
	}

	d := services.Decision{
		Verdict:       verdict,
		Title:         in.Title,
		Description:   in.Description,
		Justification: in.Justification,
	}
	if in.Deadline != nil && *in.Deadline != "" {
		deadline, err := parseDeadline(*in.Deadline)
		if err != nil {
			badRequest(c, "deadline", err.Error())
			return
		}
		d.Deadline = &deadline
	}

	if err := h.decisions.Record(c.Request.Context(), id, d); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete DELETE /api/ideas/:id
func (h *AdminHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.decisions.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
