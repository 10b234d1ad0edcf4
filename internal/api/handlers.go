package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fansoftheone/engine/internal/artifact"
	"github.com/fansoftheone/engine/internal/bundle"
	"github.com/fansoftheone/engine/internal/token"
)

type convertRequest struct {
	RawInput string `json:"raw_input"`
	Mode     string `json:"mode"`
}

type convertResponse struct {
	ID               string                    `json:"id"`
	Brand            string                    `json:"brand"`
	StructuredOutput artifact.StructuredOutput `json:"structured_output"`
}

type exportTokenRequest struct {
	ArtifactID string `json:"artifact_id"`
	TTLSeconds *int   `json:"ttl_seconds"`
}

type exportTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"brand":   artifact.Brand,
			"version": deps.Version,
		})
	}
}

func handleConvert(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		if !decodeBody(w, r, &req) {
			return
		}

		a, err := deps.Artifacts.Convert(r.Context(), req.RawInput, req.Mode)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, convertResponse{
			ID:               a.ID,
			Brand:            a.Brand,
			StructuredOutput: a.StructuredOutput,
		})
	}
}

func handleGetArtifact(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Artifacts.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleExportArtifact(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Artifacts.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		data, err := bundle.Build(a)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeArchive(w, bundle.Filename(a), data)
	}
}

func handleCreateExportToken(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exportTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ttl := token.DefaultTTLSeconds
		if req.TTLSeconds != nil {
			ttl = *req.TTLSeconds
		}

		tok, err := deps.Tokens.Issue(r.Context(), req.ArtifactID, ttl)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, exportTokenResponse{
			Token:     tok.Token,
			ExpiresAt: artifact.FormatTimestamp(tok.ExpiresAt),
		})
	}
}

func handleDownload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dl, err := deps.Tokens.Redeem(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeArchive(w, dl.Filename, dl.Archive)
	}
}

// decodeBody decodes the JSON request body into v. On failure it writes a 422
// naming at most the offending field and returns false; decoder detail only
// goes to the log.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	slog.Debug("decoding request body", "path", r.URL.Path, "error", err)

	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "invalid value for field %s", typeErr.Field)
	case errors.As(err, &maxErr):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "request body too large")
	default:
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "invalid request body")
	}
	return false
}

// writeServiceError maps service errors onto status codes. Unexpected errors
// are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *artifact.ValidationError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%s", ve.Error())
	case errors.Is(err, token.ErrInvalidToken):
		httpError(w, http.StatusNotFound, "not_found", "Invalid token")
	case errors.Is(err, token.ErrTokenExpired):
		httpError(w, http.StatusGone, "gone", "Token expired")
	case errors.Is(err, artifact.ErrNotFound), errors.Is(err, token.ErrArtifactMissing):
		httpError(w, http.StatusNotFound, "not_found", "Not found")
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}
