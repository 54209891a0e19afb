package handlers

import (
	"errors"
	"log"
	"net/http"

	"ideabox/internal/middleware"
	"ideabox/internal/services"
	"ideabox/internal/utils"

	"github.com/gin-gonic/gin"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error            string                `json:"error"`
	Message          string                `json:"message"`
	ValidationErrors []services.FieldError `json:"validationErrors,omitempty"`
}

func mapError(err error) (int, errorBody) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: "validation", Message: "invalid request", ValidationErrors: verr.Fields}
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not_found", Message: "not found"}
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "forbidden", Message: "not allowed to act on this resource"}
	case errors.Is(err, services.ErrPhaseClosed):
		return http.StatusConflict, errorBody{Error: "phase_closed", Message: "this phase of the idea is over"}
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, errorBody{Error: "conflict", Message: "already exists"}
	case errors.Is(err, services.ErrBadLogin):
		return http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: err.Error()}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal", Message: "server error"}
}

// respondError writes the mapped status and body. Unexpected errors are logged.
func respondError(c *gin.Context, err error) {
	status, body := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest is used for bodies and parameters that cannot even be decoded.
func badRequest(c *gin.Context, field, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
		Error:            "validation",
		Message:          "invalid request",
		ValidationErrors: []services.FieldError{{Field: field, Message: message}},
	})
}

// idParam reads a positive id path parameter, answering 400 when it is not one.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		badRequest(c, name, "must be a positive integer")
		return 0, false
	}
	return id, true
}

// currentActor builds the service-level actor from the request session.
// Routes using it always sit behind middleware.Authenticate.
func currentActor(c *gin.Context) (services.Actor, bool) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: "missing bearer token"})
		return services.Actor{}, false
	}
	return services.Actor{UserID: s.UserID, IsAdmin: s.IsAdmin}, true
}

// bindJSON decodes the body, answering 400 on malformed input.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "body", err.Error())
		return false
	}
	return true
}
