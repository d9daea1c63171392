package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/avendahl/podium/internal/storage"
)

var outputIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// OutputStore is the read side of saved evaluations for the REST API.
type OutputStore interface {
	ListOutputs(ctx context.Context) ([]storage.Output, error)
	GetOutput(ctx context.Context, id string) (storage.Output, error)
	DeleteOutput(ctx context.Context, id string) error
}

func registerAPIRoutes(mux *http.ServeMux, opts Options) {
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if opts.Warnings != nil {
			warnings = opts.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"outputs_enabled": opts.Outputs != nil,
			"warnings":        warnings,
		})
	})

	mux.HandleFunc("GET /api/outputs", func(w http.ResponseWriter, r *http.Request) {
		if opts.Outputs == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "output storage not configured")
			return
		}

		outputs, err := opts.Outputs.ListOutputs(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list outputs: %v", err))
			return
		}
		if outputs == nil {
			outputs = []storage.Output{}
		}
		writeJSON(w, http.StatusOK, outputs)
	})

	mux.HandleFunc("GET /api/outputs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if opts.Outputs == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "output storage not configured")
			return
		}

		outputID := r.PathValue("id")
		if !validOutputID(outputID) {
			writeJSONError(w, http.StatusForbidden, "invalid output id")
			return
		}

		out, err := opts.Outputs.GetOutput(r.Context(), outputID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get output: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("DELETE /api/outputs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if opts.Outputs == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "output storage not configured")
			return
		}

		outputID := r.PathValue("id")
		if !validOutputID(outputID) {
			writeJSONError(w, http.StatusForbidden, "invalid output id")
			return
		}

		if err := opts.Outputs.DeleteOutput(r.Context(), outputID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("delete output: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func validOutputID(id string) bool {
	return outputIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
