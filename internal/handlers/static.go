package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// HandleUploads serves images written by the disk store.
func (h *Handler) HandleUploads(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		h.writeError(w, "Not found", http.StatusNotFound)
		return
	}
	path, ok := h.uploads.Path(mux.Vars(r)["name"])
	if !ok {
		h.writeError(w, "Invalid file path", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, path)
}
