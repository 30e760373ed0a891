package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(apiHandler.logger))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Conversation and audio
	r.Post("/search-ai-input", apiHandler.SearchHandler)
	r.Post("/upload_audio", apiHandler.UploadAudioHandler)
	r.Get("/response.mp3", apiHandler.AudioResponseHandler)

	// Knowledge base
	r.Get("/list_all_file", apiHandler.ListFilesHandler)
	r.Group(func(r chi.Router) {
		if apiHandler.jwtSecret != "" {
			r.Use(AdminAuthMiddleware(apiHandler.jwtSecret, apiHandler.logger))
		}
		r.Post("/upload_file", apiHandler.UploadFileHandler)
		r.Delete("/delete_file/{fileID}", apiHandler.DeleteFileHandler)
	})

	return r
}
