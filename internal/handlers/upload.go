package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BikramMondal5/MediVerify/internal/media"
	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/BikramMondal5/MediVerify/internal/records"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// MaxVerifyBytes caps uploads to the verify endpoint.
const MaxVerifyBytes = 5 * 1000 * 1000

var allowedImageTypes = regexp.MustCompile(`jpeg|jpg|png|webp`)

// HandleVerify analyzes an uploaded medicine photo and stores the result
// for the caller.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	data, header, ok := h.readImage(w, r, "image", MaxVerifyBytes)
	if !ok {
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	mimeType := header.Header.Get("Content-Type")
	if !allowedImageTypes.MatchString(ext) || !allowedImageTypes.MatchString(mimeType) {
		h.writeError(w, "Images only (JPG, PNG, WEBP)", http.StatusBadRequest)
		return
	}

	var metadata models.MedicationMetadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			h.writeError(w, "Invalid metadata: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	v, err := h.analyzer.Evaluate(r.Context(), media.EncodeDataURI(mimeType, data))
	if err != nil {
		slog.Error("Verification failed", "user", userID, "err", err)
		h.writeError(w, "Server error", http.StatusInternalServerError)
		return
	}

	imageURL, err := h.images.Put(r.Context(), header.Filename, data, mimeType)
	if err != nil {
		slog.Error("Failed to store image", "user", userID, "err", err)
		h.writeError(w, "Server error", http.StatusInternalServerError)
		return
	}

	now := h.now().UTC()
	result := models.VerificationResult{
		IsAuthentic: v.IsAuthentic(),
		Confidence:  v.Confidence,
		Timestamp:   now,
		ImageURL:    imageURL,
	}
	rec := models.VerificationRecord{
		ID:                 uuid.New(),
		UserID:             userID,
		VerificationResult: result,
		Metadata:           metadata,
		CreatedAt:          now,
	}
	if err := h.records.Save(r.Context(), rec); err != nil {
		slog.Error("Failed to save verification", "user", userID, "err", err)
		h.writeError(w, "Server error", http.StatusInternalServerError)
		return
	}

	slog.Info("Medication verified", "id", rec.ID, "user", userID, "authentic", result.IsAuthentic, "confidence", result.Confidence)
	h.writeJSONStatus(w, http.StatusCreated, result)
}

// readImage reads a single multipart file field, rejecting bodies larger
// than limit.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, "File too large", http.StatusRequestEntityTooLarge)
			return nil, nil, false
		}
		if errors.Is(err, http.ErrNotMultipart) {
			h.writeError(w, "No image provided", http.StatusBadRequest)
			return nil, nil, false
		}
		h.writeError(w, "Failed to read upload: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		h.writeError(w, "No image provided", http.StatusBadRequest)
		return nil, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return nil, nil, false
	}
	if int64(len(data)) > limit {
		h.writeError(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, nil, false
	}
	return data, header, true
}

// HandleMedicationHistory lists the caller's verifications, newest first.
func (h *Handler) HandleMedicationHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	list, err := h.records.ListByUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list verifications", "user", userID, "err", err)
		h.writeError(w, "Server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, list)
}

// HandleMedicationDetail returns one verification owned by the caller.
func (h *Handler) HandleMedicationDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, "Medication not found", http.StatusNotFound)
		return
	}
	rec, err := h.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			h.writeError(w, "Medication not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load verification", "id", id, "err", err)
		h.writeError(w, "Server error", http.StatusInternalServerError)
		return
	}
	if rec.UserID != userID {
		h.writeError(w, "Not authorized", http.StatusForbidden)
		return
	}
	h.writeJSON(w, rec)
}
