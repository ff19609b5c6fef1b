package tools

import (
	"encoding/json"
	"net/http"

	"github.com/patchpilot/patchpilot/internal/tools"
)

// SchemaHandler serves the tool catalog as JSON.
type SchemaHandler struct{}

// ServeHTTP renders the catalog.
func (h SchemaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tools.Catalog())
}
