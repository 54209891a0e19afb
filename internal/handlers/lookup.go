package handlers

import (
	"net/http"

	"ideabox/internal/services"

	"github.com/gin-gonic/gin"
)

// LookupHandler serves categories, statuses, services and the statistics banner.
type LookupHandler struct {
	lookups *services.LookupService
	stats   *services.StatisticsService
}

func NewLookupHandler(lookups *services.LookupService, stats *services.StatisticsService) *LookupHandler {
	return &LookupHandler{lookups: lookups, stats: stats}
}

func (h *LookupHandler) Categories(c *gin.Context) {
	cats, err := h.lookups.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (h *LookupHandler) Category(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cat, err := h.lookups.Category(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (h *LookupHandler) Statuses(c *gin.Context) {
	statuses, err := h.lookups.Statuses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

func (h *LookupHandler) Status(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	st, err := h.lookups.Status(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *LookupHandler) Services(c *gin.Context) {
	svcs, err := h.lookups.Services(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, svcs)
}

func (h *LookupHandler) Service(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	svc, err := h.lookups.Service(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

type serviceInput struct {
	Name string `json:"name"`
}

// CreateService POST /api/services (admin)
func (h *LookupHandler) CreateService(c *gin.Context) {
	var in serviceInput
	if !bindJSON(c, &in) {
		return
	}
	svc, err := h.lookups.CreateService(c.Request.Context(), in.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, svc)
}

// RenameService PUT /api/services/:id (admin)
func (h *LookupHandler) RenameService(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in serviceInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.lookups.RenameService(c.Request.Context(), id, in.Name); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteService DELETE /api/services/:id (admin)
func (h *LookupHandler) DeleteService(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.lookups.DeleteService(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Statistics GET /api/statistics
func (h *LookupHandler) Statistics(c *gin.Context) {
	st, err := h.stats.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
