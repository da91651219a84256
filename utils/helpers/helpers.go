package helpers

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	zeroWidthRe  = regexp.MustCompile("[\u200B\u200C\u200D\uFEFF]")
)

// NormalizeWhitespace collapses runs of whitespace into one space.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func RemoveZeroWidthChars(s string) string {
	return zeroWidthRe.ReplaceAllString(s, "")
}

// CleanHTMLText returns the visible text of an HTML fragment with zero-width
// characters removed and whitespace collapsed. News descriptions often carry
// markup; plain text passes through unchanged apart from whitespace.
func CleanHTMLText(fragment string) string {
	fragment = RemoveZeroWidthChars(fragment)
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return NormalizeWhitespace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		zap.L().Warn("Failed to parse HTML fragment, using raw text", zap.Error(err))
		return NormalizeWhitespace(fragment)
	}
	doc.Find("script, style").Remove()
	return NormalizeWhitespace(doc.Text())
}

// ToFloat converts JSON-ish values to float64. Strings may contain commas
// and a trailing percent sign, which divides by 100. ok is false when the
// value is missing or not numeric.
func ToFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		clean := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if clean == "" {
			return 0, false
		}
		percent := strings.HasSuffix(clean, "%")
		clean = strings.TrimSuffix(clean, "%")
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			zap.L().Debug("Error converting to float64", zap.String("value", v), zap.Error(err))
			return 0, false
		}
		if percent {
			f /= 100
		}
		return f, true
	}
	return 0, false
}

// FormatFixed formats v with the given number of decimals, like JavaScript's toFixed.
func FormatFixed(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return string(r[:n])
	}
	return fmt.Sprintf("%s…", string(r[:n-1]))
}
