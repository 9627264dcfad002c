package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/http/middleware"
	"github.com/mnemos-app/mnemos-backend/internal/services"
)

type EntryHandler struct {
	entries *services.EntryService
}

func NewEntryHandler(entries *services.EntryService) *EntryHandler {
	return &EntryHandler{entries: entries}
}

func (h *EntryHandler) Create(c *gin.Context) {
	userID, ok := middleware.AuthedUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var input services.EntryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	view, err := h.entries.Create(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *EntryHandler) Get(c *gin.Context) {
	userID, entryID, ok := h.authedEntryID(c)
	if !ok {
		return
	}
	view, err := h.entries.Get(c.Request.Context(), userID, entryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *EntryHandler) List(c *gin.Context) {
	userID, ok := middleware.AuthedUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.entries.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

func (h *EntryHandler) Update(c *gin.Context) {
	userID, entryID, ok := h.authedEntryID(c)
	if !ok {
		return
	}

	var input services.EntryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	entry, err := h.entries.Update(c.Request.Context(), userID, entryID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (h *EntryHandler) Delete(c *gin.Context) {
	userID, entryID, ok := h.authedEntryID(c)
	if !ok {
		return
	}
	if err := h.entries.Delete(c.Request.Context(), userID, entryID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EntryHandler) Relink(c *gin.Context) {
	userID, entryID, ok := h.authedEntryID(c)
	if !ok {
		return
	}

	var opts services.RelinkOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
			return
		}
	}

	result, err := h.entries.Relink(c.Request.Context(), userID, entryID, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *EntryHandler) Search(c *gin.Context) {
	userID, ok := middleware.AuthedUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	results, err := h.entries.Search(c.Request.Context(), userID, q, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *EntryHandler) Graph(c *gin.Context) {
	userID, ok := middleware.AuthedUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	view, err := h.entries.Graph(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *EntryHandler) authedEntryID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.AuthedUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, uuid.Nil, false
	}
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, entryID, true
}
