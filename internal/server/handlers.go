package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-chat/internal/models"
)

const backendDownMessage = "Failed to get response from the model backend. Please check that Ollama is running."

func (s *Server) routes() {
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /chat-history/{key}", s.handleGetHistory)
	s.mux.HandleFunc("POST /clear-history/{key}", s.handleClearHistory)
	s.mux.HandleFunc("POST /delete-pdf/{key}", s.handleDeletePDF)
	s.mux.HandleFunc("GET /models", s.handleModels)
	s.mux.HandleFunc("GET /pdfs", s.handleListPDFs)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// inputMessage strips the sentinel prefix from an ErrInvalidInput error.
func inputMessage(err error) string {
	return strings.TrimPrefix(err.Error(), models.ErrInvalidInput.Error()+": ")
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Chunks   int    `json:"chunks"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Key      string `json:"key"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.cfg.Server.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// a file part sent with an empty filename is parsed as a plain value
		if _, ok := r.MultipartForm.Value["file"]; ok {
			writeError(w, http.StatusBadRequest, "No selected file")
			return
		}
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	res, err := s.rag.Ingest(r.Context(), header.Filename, data)
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, inputMessage(err))
		return
	case err != nil:
		log.Error().Err(err).Str("filename", header.Filename).Msg("Error processing upload")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		Chunks:   res.Chunks,
		Message:  fmt.Sprintf("PDF uploaded with %d chunks", res.Chunks),
		Filename: res.Filename,
		Key:      res.Key,
	})
}

type chatRequest struct {
	PDFName string          `json:"pdf_name"`
	Message string          `json:"message"`
	Model   json.RawMessage `json:"model"`
}

// model is the requested model name, or "" when absent or not a string.
func (c chatRequest) model() string {
	var name string
	if len(c.Model) == 0 || json.Unmarshal(c.Model, &name) != nil {
		return ""
	}
	return name
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	reply, err := s.rag.Chat(r.Context(), req.PDFName, req.Message, req.model())
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, inputMessage(err))
	case errors.Is(err, models.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "PDF not found")
	case errors.Is(err, models.ErrBackendUnavailable):
		writeError(w, http.StatusInternalServerError, backendDownMessage)
	case err != nil:
		log.Error().Err(err).Str("pdf_name", req.PDFName).Msg("Error in chat endpoint")
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"response": reply})
	}
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.rag.History(r.Context(), r.PathValue("key"))
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, inputMessage(err))
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, turns)
	}
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	err := s.rag.ClearHistory(r.Context(), r.PathValue("key"))
	if err != nil && !errors.Is(err, models.ErrInvalidInput) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeletePDF(w http.ResponseWriter, r *http.Request) {
	err := s.rag.DeleteDocument(r.Context(), r.PathValue("key"))
	if err != nil && !errors.Is(err, models.ErrInvalidInput) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rag.Models(r.Context()))
}

func (s *Server) handleListPDFs(w http.ResponseWriter, r *http.Request) {
	keys, err := s.rag.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": s.rag.BackendReachable(r.Context()),
	})
}
