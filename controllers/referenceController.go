package controllers

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"github.com/gin-gonic/gin"
)

// GET /api/locations
func (h *Handler) ListLocations(c *gin.Context) {
	locations, err := h.store.ListLocations(c.Request.Context())
	if err != nil {
		h.respondError(c, "ListLocations", err)
		return
	}
	c.JSON(http.StatusOK, locations)
}

// POST /api/locations
func (h *Handler) CreateLocation(c *gin.Context) {
	var input models.NewLocation
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	location, err := h.directory.CreateLocation(c.Request.Context(), &input)
	if err != nil {
		h.respondError(c, "CreateLocation", err)
		return
	}
	c.JSON(http.StatusCreated, location)
}

// POST /api/packagings
func (h *Handler) CreatePackaging(c *gin.Context) {
	var input models.NewPackaging
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	packaging, err := h.directory.CreatePackaging(c.Request.Context(), &input)
	if err != nil {
		h.respondError(c, "CreatePackaging", err)
		return
	}
	c.JSON(http.StatusCreated, packaging)
}

// GET /api/outturns
func (h *Handler) ListOutturns(c *gin.Context) {
	outturns, err := h.store.ListOutturns(c.Request.Context())
	if err != nil {
		h.respondError(c, "ListOutturns", err)
		return
	}
	c.JSON(http.StatusOK, outturns)
}

// POST /api/outturns
func (h *Handler) CreateOutturn(c *gin.Context) {
	var input models.NewOutturn
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	outturn, err := h.directory.CreateOutturn(c.Request.Context(), &input)
	if err != nil {
		h.respondError(c, "CreateOutturn", err)
		return
	}
	c.JSON(http.StatusCreated, outturn)
}

// DELETE /api/outturns/:id
func (h *Handler) DeleteOutturn(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	outturn, err := h.directory.DeleteOutturn(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "DeleteOutturn", err)
		return
	}
	c.JSON(http.StatusOK, outturn)
}

// GET /api/outturns/candidates?variety=
// Scores free-text variety against every outturn for the mapping screen.
func (h *Handler) OutturnCandidates(c *gin.Context) {
	text := strings.TrimSpace(c.Query("variety"))
	if text == "" {
		badRequest(c, "variety is required")
		return
	}
	outturns, err := h.store.ListOutturns(c.Request.Context())
	if err != nil {
		h.respondError(c, "OutturnCandidates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"variety":    inventory.NormalizeText(text),
		"candidates": inventory.ScoreOutturnCandidates(text, outturns),
	})
}
