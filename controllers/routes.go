package controllers

import "github.com/gin-gonic/gin"

func RegisterRoutes(r gin.IRouter, h *Handler) {
	api := r.Group("/api")

	stock := api.Group("/stock")
	stock.GET("/balance", h.GetBalance)
	stock.GET("/opening", h.GetOpeningBalances)
	stock.GET("/bifurcation", h.GetBifurcation)
	stock.GET("/bifurcation/hierarchy", h.GetHierarchicalBifurcation)
	stock.GET("/bifurcation/export", h.ExportBifurcation)
	stock.POST("/validate/palti", h.ValidatePalti)
	stock.POST("/validate/sale", h.ValidateSale)

	api.GET("/packaging/resolve", h.ResolvePackaging)
	api.POST("/packagings", h.CreatePackaging)

	api.GET("/locations", h.ListLocations)
	api.POST("/locations", h.CreateLocation)
	api.GET("/locations/:code/direct-load", h.IsDirectLoad)

	api.GET("/outturns", h.ListOutturns)
	api.GET("/outturns/candidates", h.OutturnCandidates)
	api.POST("/outturns", h.CreateOutturn)
	api.DELETE("/outturns/:id", h.DeleteOutturn)

	movements := api.Group("/movements")
	movements.POST("/purchase", h.CreatePurchase)
	movements.POST("/sale", h.CreateSale)
	movements.POST("/palti", h.RecordPalti)
	movements.POST("/:id/approve", h.ApproveMovement)
	movements.POST("/:id/reject", h.RejectMovement)

	productions := api.Group("/productions")
	productions.POST("", h.CreateProduction)
	productions.POST("/:id/approve", h.ApproveProduction)
	productions.POST("/:id/reject", h.RejectProduction)
}
