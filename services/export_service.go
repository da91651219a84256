package services

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"stockscore/scoring"

	"github.com/getsentry/sentry-go"
	"github.com/xuri/excelize/v2"
)

const (
	scoreSheet     = "Score"
	pendingCellTxt = "Loading..."
)

var scoreHeader = []interface{}{"Metric", "Value", "Weight", "Contribution"}

// ScoreWorkbook renders the score table of state as an XLSX workbook.
func ScoreWorkbook(sentryCtx context.Context, state scoring.PipelineState) (*bytes.Buffer, error) {
	span := sentry.StartSpan(sentryCtx, "[Export] ScoreWorkbook")
	defer span.Finish()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", scoreSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Symbol", state.Ticker},
		{"Company", state.Company.Name()},
		{"Sector", state.Peers.Sector},
		{"Stage", state.Stage.String()},
		{},
		scoreHeader,
	}
	for _, m := range state.Score.Breakdown() {
		if m.Pending {
			rows = append(rows, []interface{}{m.Name, pendingCellTxt, m.Weight, pendingCellTxt})
			continue
		}
		rows = append(rows, []interface{}{m.Name, round(m.Value, 4), m.Weight, round(m.Contribution, 2)})
	}
	rows = append(rows,
		[]interface{}{"Total", nil, nil, round(state.Score.Total, 2)},
		[]interface{}{"Out of", nil, nil, scoring.NominalMaxScore},
	)
	if state.Explanation != "" {
		rows = append(rows, []interface{}{}, []interface{}{"Explanation", state.Explanation})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(scoreSheet, cell, &row); err != nil {
			span.Status = sentry.SpanStatusInternalError
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(scoreSheet, headerRow, headerRow, bold)
	}
	_ = f.SetColWidth(scoreSheet, "A", "A", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

// headerRow is the 1-based row of scoreHeader.
const headerRow = 6

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
