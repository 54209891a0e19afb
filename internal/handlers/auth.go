package handlers

import (
	"log"
	"net/http"

	"ideabox/internal/middleware"
	"ideabox/internal/services"
	"ideabox/internal/session"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	users    *services.UserService
	sessions *session.Manager
}

func NewAuthHandler(users *services.UserService, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions}
}

type registerInput struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Mail      string `json:"mail"`
	Password  string `json:"password"`
	ServiceID *uint  `json:"serviceId"`
}

// Register POST /api/users
func (h *AuthHandler) Register(c *gin.Context) {
	var in registerInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.users.Register(c.Request.Context(), services.RegisterInput{
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
	c.JSON(http.StatusCreated, user)
}

// Login POST /api/users/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in struct {
		Mail     string `json:"mail"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &in) {
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), in.Mail, in.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	_, token, err := h.sessions.Start(c.Request.Context(), user.ID, user.IsAdmin)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("user %d logged in", user.ID)
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// Logout POST /api/users/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.sessions.End(c.Request.Context(), s); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Session GET /api/session returns the caller's session and profile.
func (h *AuthHandler) Session(c *gin.Context) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: "missing bearer token"})
		return
	}
	user, err := h.users.Get(c.Request.Context(), s.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s, "user": user})
}
