package handlers

import (
	"net/http"

	"ideabox/internal/services"
	"ideabox/internal/utils"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	votes *services.VoteService
}

func NewVoteHandler(votes *services.VoteService) *VoteHandler {
	return &VoteHandler{votes: votes}
}

// UpsertVoteInput accepts ideaId as an alias of proposalId.
type UpsertVoteInput struct {
	ProposalID uint  `json:"proposalId"`
	IdeaID     uint  `json:"ideaId"`
	VoterID    uint  `json:"voterId"`
	Agree      *bool `json:"agree"`
	Disagree   *bool `json:"disagree"`
}

func (in UpsertVoteInput) ideaID() uint {
	if in.ProposalID != 0 {
		return in.ProposalID
	}
	return in.IdeaID
}

// Aggregate GET /api/ideas/:id/votes?voter_id=
func (h *VoteHandler) Aggregate(c *gin.Context) {
	ideaID, ok := idParam(c, "id")
	if !ok {
		return
	}
	raw := c.Query("voter_id")
	if raw == "" {
		// 旧客户端用 user_id
		raw = c.Query("user_id")
	}
	voterID, err := utils.ParseOptionalID(raw)
	if err != nil {
		badRequest(c, "voter_id", "must be a positive integer")
		return
	}

	agg, err := h.votes.Aggregate(c.Request.Context(), ideaID, voterID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Upsert POST /api/votes/upsert
func (h *VoteHandler) Upsert(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in UpsertVoteInput
	if !bindJSON(c, &in) {
		return
	}

	verr := &services.ValidationError{}
	if in.ideaID() == 0 {
		verr.Add("proposalId", "is required")
	}
	if in.Agree == nil {
		verr.Add("agree", "is required")
	}
	if in.Disagree == nil {
		verr.Add("disagree", "is required")
	}
	if err := verr.Err(); err != nil {
		respondError(c, err)
		return
	}

	voterID := in.VoterID
	if voterID == 0 {
		voterID = actor.UserID
	}
	if !actor.CanActFor(voterID) {
		respondError(c, services.ErrForbidden)
		return
	}

	_, created, err := h.votes.Upsert(c.Request.Context(), in.ideaID(), voterID, *in.Agree, *in.Disagree)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{})
}

// DeleteVoterVotes POST /api/votes/delete-voter-votes
func (h *VoteHandler) DeleteVoterVotes(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in struct {
		VoterID uint `json:"voterId"`
		UserID  uint `json:"userId"`
	}
	if !bindJSON(c, &in) {
		return
	}
	voterID := in.VoterID
	if voterID == 0 {
		voterID = in.UserID
	}
	if voterID == 0 {
		badRequest(c, "voterId", "is required")
		return
	}
	if !actor.CanActFor(voterID) {
		respondError(c, services.ErrForbidden)
		return
	}

	deleted, err := h.votes.DeleteAllForVoter(c.Request.Context(), voterID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
