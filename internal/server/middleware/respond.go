package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/gophstorage/pkg/api"
)

// writeError отправляет JSON ответ с ошибкой
func writeError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Error: message}); err != nil {
		logger.Error("failed to encode error response", slog.Any("error", err))
	}
}
