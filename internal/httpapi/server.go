// Package httpapi serves archived mail bodies to the chat web view.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"strconv"
	"strings"

	"mail-relay-bot/internal/archive"
	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/models"
)

const NoTextPlaceholder = "This message has no text"

type MailGetter interface {
	GetMail(ctx context.Context, id int64) (*models.ArchivedMail, error)
}

type Server struct {
	mails MailGetter
}

func NewServer(mails MailGetter) *Server {
	return &Server{mails: mails}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "mail" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}
	s.handleMailShow(w, r, parts[1])
}

func (s *Server) handleMailShow(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "mail id must be a positive integer")
		return
	}

	mail, err := s.mails.GetMail(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "mail not found")
		return
	}
	if err != nil {
		logging.Log.WithError(err).Errorf("Error loading mail %d", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load mail")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RenderBody(mail)))
}

// RenderBody prefers the stored HTML part and falls back to the escaped plain text.
func RenderBody(mail *models.ArchivedMail) string {
	if mail.HTML != "" {
		return mail.HTML
	}
	text := mail.Text
	if text == "" {
		text = NoTextPlaceholder
	}
	return `<p style="font-size: 1rem;">` + html.EscapeString(text) + `</p>`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
