package acquisition

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/barcode-scanner/internal/capture"
	"github.com/zombor/barcode-scanner/internal/scanning"
)

// maxUploadSize caps image uploads (high-resolution phone photos fit comfortably)
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body like {"error": "..."}
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleGetState returns the current acquisition state
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.State())
}

// handleStateEvents streams state changes as Server-Sent Events
func (s *Server) handleStateEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	updates, cancel := s.controller.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.shutdown:
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(state)
			if err != nil {
				slog.Error("Error encoding state", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleBeginLiveScan starts live camera scanning
func (s *Server) handleBeginLiveScan(w http.ResponseWriter, r *http.Request) {
	err := s.controller.BeginLiveScan(r.Context())
	var accessErr *capture.CameraAccessError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.controller.State())
	case errors.Is(err, ErrAlreadyScanning):
		writeError(w, http.StatusConflict, "Live scanning is already running.")
	case errors.As(err, &accessErr):
		writeJSON(w, http.StatusServiceUnavailable, s.controller.State())
	default:
		slog.Error("Error starting live scan", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleEndLiveScan stops live camera scanning
func (s *Server) handleEndLiveScan(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.EndLiveScan(); err != nil {
		slog.Error("Error ending live scan", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

// handleSubmitImage decodes an uploaded image
func (s *Server) handleSubmitImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose an image to upload."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename, data)

	err = s.controller.SubmitImage(r.Context(), data, contentType)
	var decodeErr *scanning.DecodeError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.controller.State())
	case errors.Is(err, scanning.ErrNotFound), errors.As(err, &decodeErr):
		// The failure is already reflected in the state
		writeJSON(w, http.StatusUnprocessableEntity, s.controller.State())
	case errors.Is(err, ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "Scanner is shutting down")
	default:
		slog.Error("Error decoding image", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// detectContentType prefers the part's header, then the file extension, then sniffing
func detectContentType(declared, filename string, data []byte) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return http.DetectContentType(data)
}

// handleRetryLookup repeats a failed lookup
func (s *Server) handleRetryLookup(w http.ResponseWriter, r *http.Request) {
	err := s.controller.RetryLookup()
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.controller.State())
	case errors.Is(err, ErrNothingToRetry):
		writeError(w, http.StatusConflict, "There is no failed lookup to retry.")
	default:
		slog.Error("Error retrying lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleReset returns the scanner to idle
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Reset(); err != nil {
		slog.Error("Error resetting scanner", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

// handlePreview serves the latest camera frame as JPEG
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	snap := s.preview.LatestFrame()
	if snap.Image == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := jpeg.Encode(w, snap.Image, &jpeg.Options{Quality: 80}); err != nil {
		slog.Error("Error encoding preview", "error", err)
	}
}
