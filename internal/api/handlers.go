package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"governa.ai/boardroom/internal/core"
	"governa.ai/boardroom/internal/store"
)

const defaultMaxUploadBytes = 32 << 20

type Conversation interface {
	Answer(ctx context.Context, query string) (string, error)
}

type Knowledge interface {
	IngestBatch(ctx context.Context, uploads []core.Upload) []core.IngestResult
	DeleteByFileID(ctx context.Context, fileID string) (string, error)
	List(ctx context.Context) ([]store.FileRecord, error)
}

type Audio interface {
	Transcribe(ctx context.Context, r io.Reader, ext string) (string, error)
	Synthesize(ctx context.Context, text, voice string) (*core.AudioArtifact, error)
	OpenArtifact(name string) (*os.File, error)
	RecordExchange(ctx context.Context, text, filename string)
}

type APIHandler struct {
	conversation   Conversation
	knowledge      Knowledge
	audio          Audio
	logger         *zap.Logger
	jwtSecret      string
	maxUploadBytes int64
}

type HandlerOption func(*APIHandler)

// WithAdminSecret protects the knowledge mutation routes with JWT auth.
func WithAdminSecret(secret string) HandlerOption {
	return func(h *APIHandler) { h.jwtSecret = secret }
}

func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *APIHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func NewAPIHandler(conv Conversation, knowledge Knowledge, audio Audio, logger *zap.Logger, opts ...HandlerOption) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &APIHandler{
		conversation:   conv,
		knowledge:      knowledge,
		audio:          audio,
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// publicErrors are reported to clients by their own text; anything else is
// an internal error.
var publicErrors = []error{
	core.ErrDuplicateName, core.ErrNotFound, core.ErrInvalidFileName,
	core.ErrUpload, core.ErrLink, core.ErrProviderDelete,
	core.ErrContextCreate, core.ErrMessageAppend, core.ErrRunStart, core.ErrRunPoll,
	core.ErrRunFailed, core.ErrRunTimeout, core.ErrNoAssistantReply,
	core.ErrTranscription, core.ErrSynthesis, core.ErrArtifactNotFound,
}

func publicMessage(err error) string {
	for _, known := range publicErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return "internal error"
}

type SearchRequest struct {
	UserQuery string `json:"user_query"`
}

func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.UserQuery) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "user_query is required"})
		return
	}

	answer, err := h.conversation.Answer(r.Context(), req.UserQuery)
	if err != nil {
		h.logger.Error("answer failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": publicMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": answer})
}

func (h *APIHandler) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("audio")
	if tooLarge(err) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"status": false, "message": fmt.Sprintf("Audio exceeds the %d byte limit", h.maxUploadBytes)})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": false, "message": "No audio file provided"})
		return
	}
	defer file.Close()

	ctx := r.Context()
	transcript, err := h.audio.Transcribe(ctx, file, filepath.Ext(header.Filename))
	if err != nil {
		h.audioFailure(w, "Error transcribing audio", err)
		return
	}

	answer, err := h.conversation.Answer(ctx, transcript)
	if err != nil {
		h.audioFailure(w, "Error answering question: "+publicMessage(err), err)
		return
	}

	artifact, err := h.audio.Synthesize(ctx, answer, "")
	if err != nil {
		h.audioFailure(w, "Error generating audio", err)
		return
	}
	h.audio.RecordExchange(ctx, transcript, artifact.Filename)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":               true,
		"filename":             artifact.Filename,
		"output_transcription": answer,
		"input_transcription":  transcript,
	})
}

func (h *APIHandler) audioFailure(w http.ResponseWriter, message string, err error) {
	h.logger.Error("voice exchange failed", zap.String("step", message), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"status": false, "message": message})
}

func (h *APIHandler) AudioResponseHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("aud_path")
	if name == "" {
		http.Error(w, "aud_path is required", http.StatusBadRequest)
		return
	}

	f, err := h.audio.OpenArtifact(name)
	if err != nil {
		if errors.Is(err, core.ErrArtifactNotFound) {
			http.Error(w, "Audio not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to open audio artifact", zap.String("name", name), zap.Error(err))
		http.Error(w, "Failed to read audio", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/mp3")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("audio stream interrupted", zap.String("name", name), zap.Error(err))
	}
}

type fileEntry struct {
	FileName string `json:"file_name"`
	FileID   string `json:"file_id"`
}

func toEntries(records []store.FileRecord) []fileEntry {
	entries := make([]fileEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, fileEntry{FileName: rec.Name, FileID: rec.FileID})
	}
	return entries
}

func (h *APIHandler) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.knowledge.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list files", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": "Failed to list files"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": toEntries(records)})
}

type uploadFailure struct {
	FileName string `json:"file_name"`
	Message  string `json:"message"`
}

func (h *APIHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if tooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"status": "error", "message": fmt.Sprintf("Upload exceeds the %d byte limit", h.maxUploadBytes)})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "No file part"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "No file part"})
		return
	}

	uploads := make([]core.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "No selected file"})
			return
		}
		fh := fh
		uploads = append(uploads, core.Upload{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return openPart(fh) },
		})
	}

	results := h.knowledge.IngestBatch(r.Context(), uploads)

	var (
		ingested []store.FileRecord
		failures []uploadFailure
		firstErr error
	)
	for _, res := range results {
		if res.Err != nil {
			h.logger.Warn("file ingestion failed", zap.String("file_name", res.Name), zap.Error(res.Err))
			failures = append(failures, uploadFailure{FileName: res.Name, Message: publicMessage(res.Err)})
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		ingested = append(ingested, *res.Record)
	}

	if firstErr == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"message": "Files uploaded and linked to the knowledge base successfully!",
			"data":    toEntries(ingested),
		})
		return
	}

	code, status, message := uploadErrorResponse(firstErr)
	writeJSON(w, code, map[string]any{
		"status":  status,
		"message": message,
		"data":    toEntries(ingested),
		"errors":  failures,
	})
}

// uploadErrorResponse maps an ingestion error to an HTTP status, the body
// status field and a message.
func uploadErrorResponse(err error) (int, string, string) {
	switch {
	case errors.Is(err, core.ErrDuplicateName):
		return http.StatusConflict, "error", "A file with this name is already in the knowledge base."
	case errors.Is(err, core.ErrInvalidFileName):
		return http.StatusBadRequest, "error", "Invalid file name."
	case errors.Is(err, core.ErrLink):
		return http.StatusBadGateway, "failure", "Failed to link file to the knowledge base."
	case errors.Is(err, core.ErrUpload):
		return http.StatusBadGateway, "error", "Failed to upload file to the provider."
	default:
		return http.StatusInternalServerError, "error", publicMessage(err)
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func openPart(fh *multipart.FileHeader) (io.ReadCloser, error) {
	return fh.Open()
}

func (h *APIHandler) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if fileID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": false, "message": "File ID is required."})
		return
	}

	name, err := h.knowledge.DeleteByFileID(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"status": false, "message": "File not found in document context."})
			return
		}
		h.logger.Error("file deletion failed", zap.String("file_id", fileID), zap.Error(err))
		message := "Unable to delete file from the provider. Please try again."
		if !errors.Is(err, core.ErrProviderDelete) {
			message = "Unable to delete file: " + publicMessage(err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": false, "message": message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": "Deleted file: " + name})
}
