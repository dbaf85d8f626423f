package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/registry/internal/registry"
)

// writeError renders err in the same shape as the handlers' error responses.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := registry.MapError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg.Message,
		"message": msg.Message,
		"action":  msg.Action,
		"code":    msg.Code,
	})
}
