package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"bitbucket.org/mmdatafocus/ricemill_stock/workflow"
	"github.com/gin-gonic/gin"
)

// writeDate parses the body date; a missing date stays zero so input validation reports it.
func writeDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return utils.ParseDate(value)
}

type stockMovementRequest struct {
	workflow.NewStockMovement
	Date string `json:"date"`
}

type productionRequest struct {
	workflow.NewProduction
	Date string `json:"date"`
}

type paltiRequest struct {
	workflow.NewPalti
	Date string `json:"date"`
}

// POST /api/movements/purchase
func (h *Handler) CreatePurchase(c *gin.Context) {
	h.createMovement(c, "CreatePurchase", h.ledger.CreatePurchase)
}

// POST /api/movements/sale
func (h *Handler) CreateSale(c *gin.Context) {
	h.createMovement(c, "CreateSale", h.ledger.CreateSale)
}

func (h *Handler) createMovement(c *gin.Context, funcName string, create func(ctx context.Context, input *workflow.NewStockMovement) (*models.Movement, error)) {
	var req stockMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	var err error
	if req.NewStockMovement.Date, err = writeDate(req.Date); err != nil {
		badRequest(c, err.Error())
		return
	}
	movement, err := create(c.Request.Context(), &req.NewStockMovement)
	if err != nil {
		h.respondError(c, funcName, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

// POST /api/productions
func (h *Handler) CreateProduction(c *gin.Context) {
	var req productionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	var err error
	if req.NewProduction.Date, err = writeDate(req.Date); err != nil {
		badRequest(c, err.Error())
		return
	}
	production, err := h.ledger.CreateProduction(c.Request.Context(), &req.NewProduction)
	if err != nil {
		h.respondError(c, "CreateProduction", err)
		return
	}
	c.JSON(http.StatusCreated, production)
}

// POST /api/movements/palti
func (h *Handler) RecordPalti(c *gin.Context) {
	var req paltiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	var err error
	if req.NewPalti.Date, err = writeDate(req.Date); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.ledger.RecordPalti(c.Request.Context(), &req.NewPalti)
	if err != nil {
		h.respondError(c, "RecordPalti", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// POST /api/movements/:id/approve
func (h *Handler) ApproveMovement(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	movement, err := h.ledger.ApproveMovement(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "ApproveMovement", err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

// POST /api/movements/:id/reject
func (h *Handler) RejectMovement(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	movement, err := h.ledger.RejectMovement(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "RejectMovement", err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

// POST /api/productions/:id/approve
func (h *Handler) ApproveProduction(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	production, err := h.ledger.ApproveProduction(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "ApproveProduction", err)
		return
	}
	c.JSON(http.StatusOK, production)
}

// POST /api/productions/:id/reject
func (h *Handler) RejectProduction(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	production, err := h.ledger.RejectProduction(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "RejectProduction", err)
		return
	}
	c.JSON(http.StatusOK, production)
}
