package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"stockscore/scoring"
	"stockscore/services"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ScoreControllerI interface {
	GetScore(ctx *gin.Context)
	StreamScore(ctx *gin.Context)
	ExportScore(ctx *gin.Context)
	GetSectors(ctx *gin.Context)
}

type scoreController struct {
	service services.ScoreServiceI
}

func NewScoreController(service services.ScoreServiceI) ScoreControllerI {
	return &scoreController{service: service}
}

func symbolParam(ctx *gin.Context) (string, bool) {
	symbol := scoring.NormalizeTicker(ctx.Param("symbol"))
	if symbol == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return "", false
	}
	return symbol, true
}

func (s *scoreController) GetScore(ctx *gin.Context) {
	defer sentry.Recover()
	span := sentry.StartSpan(ctx.Request.Context(), "[GIN] GetScore", sentry.WithTransactionName("GetScore"))
	defer span.Finish()

	symbol, ok := symbolParam(ctx)
	if !ok {
		return
	}

	report, err := s.service.Score(span.Context(), symbol)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// the partial state is still useful to the caller
		zap.L().Warn("Returning unsettled score", zap.String("symbol", symbol), zap.Error(err))
		ctx.JSON(http.StatusGatewayTimeout, report)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// StreamScore writes newline-delimited JSON snapshots as the pipeline moves.
func (s *scoreController) StreamScore(ctx *gin.Context) {
	defer sentry.Recover()
	span := sentry.StartSpan(ctx.Request.Context(), "[GIN] StreamScore", sentry.WithTransactionName("StreamScore"))
	defer span.Finish()

	symbol, ok := symbolParam(ctx)
	if !ok {
		return
	}

	ctx.Writer.Header().Set("Content-Type", "application/x-ndjson")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Status(http.StatusOK)

	err := s.service.Stream(span.Context(), symbol, func(report services.ScoreReport) error {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		// Send each report as JSON with a newline separator
		if _, err := ctx.Writer.Write(append(data, '\n')); err != nil {
			return err
		}
		ctx.Writer.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("Score stream ended early", zap.String("symbol", symbol), zap.Error(err))
		span.Status = sentry.SpanStatusInternalError
		data, _ := json.Marshal(gin.H{"error": err.Error()})
		ctx.Writer.Write(append(data, '\n'))
		ctx.Writer.Flush()
	}
}

func (s *scoreController) ExportScore(ctx *gin.Context) {
	defer sentry.Recover()
	span := sentry.StartSpan(ctx.Request.Context(), "[GIN] ExportScore", sentry.WithTransactionName("ExportScore"))
	defer span.Finish()

	symbol, ok := symbolParam(ctx)
	if !ok {
		return
	}

	report, err := s.service.Score(span.Context(), symbol)
	if errors.Is(err, context.Canceled) {
		return
	}
	// an unsettled score still exports, with pending cells marked

	buf, err := services.ScoreWorkbook(span.Context(), report.PipelineState)
	if err != nil {
		sentry.CaptureException(err)
		zap.L().Error("Error building workbook", zap.String("symbol", symbol), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error building workbook"})
		return
	}

	filename := fmt.Sprintf("%s-score.xlsx", strings.ToLower(symbol))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *scoreController) GetSectors(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"sectors": s.service.Sectors()})
}
