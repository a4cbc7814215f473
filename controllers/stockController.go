package controllers

import (
	"bytes"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/models/reports"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/gin-gonic/gin"
)

// GET /api/stock/balance
func (h *Handler) GetBalance(c *gin.Context) {
	b, err := bucketFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	asOf, err := utils.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	balance, err := h.engine(c.Request.Context()).GetBalance(c.Request.Context(), b, asOf)
	if err != nil {
		h.respondError(c, "GetBalance", err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// GET /api/stock/opening
func (h *Handler) GetOpeningBalances(c *gin.Context) {
	asOf, err := utils.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := reports.GetOpeningBalanceReport(c.Request.Context(), h.engine(c.Request.Context()), asOf)
	if err != nil {
		h.respondError(c, "GetOpeningBalances", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/stock/bifurcation
func (h *Handler) GetBifurcation(c *gin.Context) {
	q, err := breakdownFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := reports.GetBifurcationReport(c.Request.Context(), h.engine(c.Request.Context()), q)
	if err != nil {
		h.respondError(c, "GetBifurcation", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/stock/bifurcation/hierarchy
func (h *Handler) GetHierarchicalBifurcation(c *gin.Context) {
	q, err := breakdownFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := reports.GetHierarchicalBifurcationReport(c.Request.Context(), h.engine(c.Request.Context()), q)
	if err != nil {
		h.respondError(c, "GetHierarchicalBifurcation", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/stock/bifurcation/export
func (h *Handler) ExportBifurcation(c *gin.Context) {
	q, err := breakdownFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := reports.GetBifurcationReport(c.Request.Context(), h.engine(c.Request.Context()), q)
	if err != nil {
		h.respondError(c, "ExportBifurcation", err)
		return
	}
	var buf bytes.Buffer
	if err := reports.ExportBifurcationExcel(&buf, report); err != nil {
		h.respondError(c, "ExportBifurcation", err)
		return
	}
	filename := "bifurcation-" + q.AsOf.Format(utils.DateLayout) + ".xlsx"
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// GET /api/packaging/resolve
func (h *Handler) ResolvePackaging(c *gin.Context) {
	q, err := packagingFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	match, err := h.engine(c.Request.Context()).ResolvePackaging(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, "ResolvePackaging", err)
		return
	}
	c.JSON(http.StatusOK, match)
}

// GET /api/locations/:code/direct-load
func (h *Handler) IsDirectLoad(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	direct, err := h.engine(c.Request.Context()).IsDirectLoad(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, "IsDirectLoad", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": code, "is_direct_load": direct})
}

type paltiCheckRequest struct {
	Source            inventory.Bucket   `json:"source"`
	TargetProductType string             `json:"target_product_type"`
	Requested         inventory.Quantity `json:"requested"`
	Date              string             `json:"date"`
}

// POST /api/stock/validate/palti
func (h *Handler) ValidatePalti(c *gin.Context) {
	var req paltiCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.engine(c.Request.Context()).ValidatePaltiSufficiency(c.Request.Context(), inventory.PaltiRequest{
		Source:            req.Source,
		TargetProductType: req.TargetProductType,
		Requested:         req.Requested,
		Date:              date,
	})
	if err != nil {
		h.respondError(c, "ValidatePalti", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type saleCheckRequest struct {
	inventory.Bucket
	Bags int64  `json:"bags"`
	Date string `json:"date"`
}

// POST /api/stock/validate/sale
func (h *Handler) ValidateSale(c *gin.Context) {
	var req saleCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.engine(c.Request.Context()).ValidateSaleAfterPalti(c.Request.Context(), req.Bucket, req.Bags, date)
	if err != nil {
		h.respondError(c, "ValidateSale", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
