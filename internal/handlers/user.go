package handlers

import (
	"log"
	"net/http"

	"ideabox/internal/services"
	"ideabox/internal/session"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users    *services.UserService
	sessions *session.Manager
}

func NewUserHandler(users *services.UserService, sessions *session.Manager) *UserHandler {
	return &UserHandler{users: users, sessions: sessions}
}

// List GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Get GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateUserInput struct {
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Mail      *string `json:"mail"`
	Password  *string `json:"password"`
	ServiceID *uint   `json:"serviceId"`
}

// Update PUT /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in updateUserInput
	if !bindJSON(c, &in) {
		return
	}

	user, err := h.users.Update(c.Request.Context(), actor, id, services.UserUpdate{
		Firstname: in.Firstname,
		Lastname:  in.Lastname,
		Mail:      in.Mail,
		Password:  in.Password,
		ServiceID: in.ServiceID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Delete DELETE /api/users/:id. Every session of the account is ended afterwards.
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessions.EndAll(c.Request.Context(), id); err != nil {
		log.Printf("end sessions of deleted user %d: %v", id, err)
	}
	c.Status(http.StatusNoContent)
}

// Service GET /api/users/:id/service
func (h *UserHandler) Service(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	svc, err := h.users.Service(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

// SetService PATCH /api/users/:id/service with {"serviceId": n|null}
func (h *UserHandler) SetService(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		ServiceID *uint `json:"serviceId"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if err := h.users.SetService(c.Request.Context(), actor, id, in.ServiceID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetPicture PATCH /api/users/:id/picture, multipart field "picture".
func (h *UserHandler) SetPicture(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("picture")
	if err != nil {
		badRequest(c, "picture", "a picture file is required")
		return
	}
	user, err := h.users.SetPicture(c.Request.Context(), actor, id, fh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"picture": user.Picture})
}
