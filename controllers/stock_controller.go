package controllers

import (
	"errors"
	"net/http"

	"stockscore/services"
	"stockscore/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StockControllerI interface {
	GetQuote(ctx *gin.Context)
	GetDCF(ctx *gin.Context)
	GetNews(ctx *gin.Context)
}

type stockController struct {
	service services.ScoreServiceI
}

func NewStockController(service services.ScoreServiceI) StockControllerI {
	return &stockController{service: service}
}

func (s *stockController) GetQuote(ctx *gin.Context) {
	symbol := ctx.Param("symbol")
	quote, err := s.service.Quote(ctx.Request.Context(), symbol)
	if err != nil {
		zap.L().Error("Error fetching quote", zap.String("symbol", symbol), zap.Error(err))
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, quote)
}

func (s *stockController) GetDCF(ctx *gin.Context) {
	symbol := ctx.Param("symbol")
	dcf, err := s.service.DCF(ctx.Request.Context(), symbol)
	if errors.Is(err, types.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "DCF data not found for symbol"})
		return
	}
	if err != nil {
		zap.L().Error("DCF fetch error", zap.String("symbol", symbol), zap.Error(err))
		ctx.JSON(statusFor(err), gin.H{"error": "Failed to fetch DCF data"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"dcf": dcf})
}

func (s *stockController) GetNews(ctx *gin.Context) {
	company := ctx.Param("company")
	articles, err := s.service.News(ctx.Request.Context(), company)
	if err != nil {
		zap.L().Error("News fetch error", zap.String("company", company), zap.Error(err))
		ctx.JSON(statusFor(err), gin.H{"error": "Failed to fetch news"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"articles": articles, "totalResults": len(articles)})
}

// statusFor maps upstream errors onto response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
