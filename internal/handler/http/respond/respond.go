// Package respond writes the admin surface's JSON responses. Error
// responses pass through a safety gate so infrastructure detail (DSNs,
// API keys, webhook tokens) never reaches a caller.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"newsriver/internal/domain/entity"
)

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// Headers are already on the wire; logging is all that is left
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// safeVocabulary lists message fragments that mark a plain error as fit
// for a caller: the admin handlers' own 4xx messages all land here.
// Domain validation errors are recognized by type instead, because their
// curated messages ("url must not exceed ...") share no fixed wording.
var safeVocabulary = []string{
	"required",
	"invalid",
	"not found",
	"rate limit",
}

// SafeError writes a JSON error response, masking anything that is not
// known to be safe. A safe error's own message goes out verbatim; every
// other error is logged (sanitized) and replaced with a generic message.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	// 500エラーは常に内部エラーとして扱う
	if code < 500 && isSafe(err) {
		JSON(w, code, map[string]string{"error": err.Error()})
		return
	}

	// 内部エラーはログに出力し、汎用メッセージを返す
	// 機密情報をマスクしてログ出力
	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, map[string]string{"error": "internal server error"})
}

// isSafe reports whether an error's message may reach a caller verbatim.
func isSafe(err error) bool {
	var verr *entity.ValidationError
	if errors.As(err, &verr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, safe := range safeVocabulary {
		if strings.Contains(msg, safe) {
			return true
		}
	}
	return false
}
