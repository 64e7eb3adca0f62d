package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"saldo/internal/core"
)

// parseMonthParam reads the "month" value. An empty value returns "" and no
// error so callers can fall back to the selected month.
func parseMonthParam(values url.Values) (core.MonthKey, error) {
	v := strings.TrimSpace(values.Get("month"))
	if v == "" {
		return "", nil
	}
	return core.ParseMonthKey(v)
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
