package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ahstewart/signal-snapshot/internal/analytics"
	"github.com/ahstewart/signal-snapshot/internal/audit"
	"github.com/ahstewart/signal-snapshot/internal/config"
	"github.com/ahstewart/signal-snapshot/internal/crypto"
	"github.com/ahstewart/signal-snapshot/internal/export"
	"github.com/ahstewart/signal-snapshot/internal/identity"
	"github.com/ahstewart/signal-snapshot/internal/metrics"
	"github.com/ahstewart/signal-snapshot/internal/session"
	"github.com/ahstewart/signal-snapshot/internal/snapshot"
	"github.com/ahstewart/signal-snapshot/internal/source"
	"github.com/ahstewart/signal-snapshot/internal/summarize"
)

// transcriptLimit bounds how many recent messages feed a summary request.
const transcriptLimit = 200

// Handler handles HTTP requests for snapshot operations.
type Handler struct {
	registry   *session.Registry
	decryptor  *crypto.Decryptor
	aggregator *analytics.Aggregator
	fetcher    source.Fetcher
	summarizer summarize.Summarizer
	auditLog   audit.Logger
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	config     *config.Config
}

// NewHandler creates the API handler. fetcher, summarizer and auditLog may be
// nil; the corresponding endpoints degrade gracefully.
func NewHandler(
	registry *session.Registry,
	decryptor *crypto.Decryptor,
	aggregator *analytics.Aggregator,
	fetcher source.Fetcher,
	summarizer summarize.Summarizer,
	auditLog audit.Logger,
	m *metrics.Metrics,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	if summarizer == nil {
		summarizer = summarize.Noop{}
	}
	return &Handler{
		registry:   registry,
		decryptor:  decryptor,
		aggregator: aggregator,
		fetcher:    fetcher,
		summarizer: summarizer,
		auditLog:   auditLog,
		metrics:    m,
		logger:     logger,
		config:     cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/snapshots", h.handleCreateSnapshot).Methods("POST")
	v1.HandleFunc("/snapshots/{id}", h.handleDeleteSnapshot).Methods("DELETE")
	v1.HandleFunc("/snapshots/{id}/report", h.handleReport).Methods("GET")
	v1.HandleFunc("/snapshots/{id}/export", h.handleExport).Methods("GET")
	v1.HandleFunc("/snapshots/{id}/conversations/{cid}/summary", h.handleSummary).Methods("GET")
	if h.auditLog != nil {
		v1.HandleFunc("/audit/events", h.handleAuditEvents).Methods("GET")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSnapshotRequest is the JSON body form of snapshot creation, used when
// the snapshot lives at a fetchable location instead of in the request body.
type createSnapshotRequest struct {
	Location string `json:"location"`
	Secret   string `json:"secret"`
}

// createSnapshotResponse echoes the opened session.
type createSnapshotResponse struct {
	ID        string    `json:"id"`
	Encrypted bool      `json:"encrypted"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleCreateSnapshot ingests a snapshot, decrypting it if necessary, and
// opens a session for subsequent report requests.
func (h *Handler) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, secret, apiErr := h.readSnapshotInput(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	snap, encrypted, err := h.openSnapshot(ctx, raw, secret)
	if err != nil {
		TranslateError(err).WriteJSON(w)
		return
	}

	sess, err := h.registry.Put(snap, encrypted)
	if err != nil {
		snap.Close()
		TranslateError(err).WriteJSON(w)
		return
	}
	if h.auditLog != nil {
		h.auditLog.LogSession(sess.ID, "open")
	}
	h.updateSessionGauge()

	h.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"encrypted":  encrypted,
		"size_bytes": snap.Size(),
	}).Info("Snapshot opened")

	writeJSON(w, http.StatusCreated, createSnapshotResponse{
		ID:        sess.ID,
		Encrypted: sess.Encrypted,
		SizeBytes: snap.Size(),
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
}

// readSnapshotInput accepts either a multipart upload (fields "snapshot" and
// "secret") or a JSON body naming a location for the source fetcher.
func (h *Handler) readSnapshotInput(r *http.Request) ([]byte, string, *APIError) {
	maxBytes := h.config.Decrypt.MaxSnapshotBytes
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			if maxed := new(http.MaxBytesError); errors.As(err, &maxed) {
				return nil, "", ErrSnapshotTooLarge
			}
			return nil, "", &APIError{
				Code:       "bad_multipart",
				Message:    "could not parse multipart form",
				HTTPStatus: http.StatusBadRequest,
			}
		}
		file, _, err := r.FormFile("snapshot")
		if err != nil {
			return nil, "", ErrMissingSnapshot
		}
		defer file.Close()

		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, "", &APIError{
				Code:       "read_failed",
				Message:    "could not read the uploaded snapshot",
				HTTPStatus: http.StatusBadRequest,
			}
		}
		return raw, r.FormValue("secret"), nil
	}

	var req createSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", ErrMissingSnapshot
	}
	if req.Location == "" {
		return nil, "", ErrMissingSnapshot
	}
	if h.fetcher == nil {
		return nil, "", &APIError{
			Code:       "source_disabled",
			Message:    "fetching by location is not configured on this server",
			HTTPStatus: http.StatusBadRequest,
		}
	}

	raw, err := h.fetcher.Fetch(r.Context(), req.Location)
	if err != nil {
		return nil, "", TranslateError(err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, "", ErrSnapshotTooLarge
	}
	return raw, req.Secret, nil
}

// openSnapshot detects whether raw needs decryption, runs the key search when
// it does, and opens the resulting database.
func (h *Handler) openSnapshot(ctx context.Context, raw []byte, secret string) (*snapshot.Snapshot, bool, error) {
	if snapshot.IsPlaintext(raw) {
		snap, err := snapshot.Open(ctx, raw)
		return snap, false, err
	}

	if strings.TrimSpace(secret) == "" {
		return nil, true, crypto.ErrMissingKey
	}
	secret = h.resolveSecret(secret)

	start := time.Now()
	onProgress := func(percent float64, message string) {
		h.logger.WithField("percent", percent).Debug(message)
	}
	plaintext, err := h.decryptor.Decrypt(ctx, raw, secret, onProgress)
	duration := time.Since(start)

	if h.auditLog != nil {
		h.auditLog.LogDecrypt("", err == nil, err, duration)
	}
	if h.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		h.metrics.RecordDecryptSearch(outcome, duration, int64(len(raw)))
	}
	if err != nil {
		return nil, true, err
	}

	snap, err := snapshot.Open(ctx, plaintext)
	return snap, true, err
}

// resolveSecret treats non-hex secrets as passphrases when a salt is
// configured, stretching them into key material.
func (h *Handler) resolveSecret(secret string) string {
	salt := h.config.Decrypt.PassphraseSalt
	if salt == "" {
		return secret
	}
	normalized := strings.ToLower(strings.Join(strings.Fields(secret), ""))
	if normalized != "" && hexPattern(normalized) {
		return secret
	}
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return secret
	}
	return crypto.DeriveSecretFromPassphrase(secret, saltBytes)
}

func hexPattern(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (h *Handler) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Delete(id); err != nil {
		ErrSessionNotFound.WriteJSON(w)
		return
	}
	if h.auditLog != nil {
		h.auditLog.LogSession(id, "close")
	}
	h.updateSessionGauge()
	w.WriteHeader(http.StatusNoContent)
}

// handleReport computes a fresh report for the session's snapshot. Reports
// are never cached: each call recomputes from the immutable database.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, apiErr := h.computeReport(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, apiErr := h.computeReport(r)
	if apiErr != nil {
		if h.auditLog != nil {
			h.auditLog.LogExport(id, false, apiErr)
		}
		apiErr.WriteJSON(w)
		return
	}

	if r.URL.Query().Get("flat") == "true" {
		flat, err := export.Flatten(report)
		if err != nil {
			TranslateError(err).WriteJSON(w)
			return
		}
		if h.auditLog != nil {
			h.auditLog.LogExport(id, true, nil)
		}
		writeJSON(w, http.StatusOK, flat)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="report.json"`)
	if err := export.Write(w, report); err != nil {
		h.logger.WithError(err).Error("Failed to write export")
	}
	if h.auditLog != nil {
		h.auditLog.LogExport(id, true, nil)
	}
}

func (h *Handler) computeReport(r *http.Request) (*analytics.Report, *APIError) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	sess, ok := h.registry.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	filter := conversationFilter(r)

	start := time.Now()
	report, err := h.aggregator.Aggregate(ctx, sess.Snapshot.DB(), filter, nil)
	duration := time.Since(start)

	if h.auditLog != nil {
		h.auditLog.LogAggregate(id, err == nil, err, duration)
	}
	if h.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		h.metrics.RecordAggregation(outcome, len(filter) > 0, duration)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return report, nil
}

// conversationFilter parses the optional comma-separated conversations query
// parameter. Empty means the whole snapshot.
func conversationFilter(r *http.Request) []string {
	param := r.URL.Query().Get("conversations")
	if param == "" {
		return nil
	}
	var filter []string
	for _, id := range strings.Split(param, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter = append(filter, id)
		}
	}
	return filter
}

// transcriptRow is one message feeding a conversation summary.
type transcriptRow struct {
	Author string `db:"author"`
	Body   string `db:"body"`
}

// handleSummary produces a best-effort natural-language summary of one
// conversation. Summarizer failures yield an empty summary, never an error.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id, cid := vars["id"], vars["cid"]

	sess, ok := h.registry.Get(id)
	if !ok {
		ErrSessionNotFound.WriteJSON(w)
		return
	}

	transcript, err := h.loadTranscript(ctx, sess.Snapshot.DB(), cid)
	if err != nil {
		TranslateError(err).WriteJSON(w)
		return
	}

	summary := summarize.BestEffort(ctx, h.summarizer, transcript)
	if h.metrics != nil {
		outcome := "success"
		if summary == "" {
			outcome = "empty"
		}
		h.metrics.RecordSummary(outcome)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": cid,
		"message_count":   len(transcript),
		"summary":         summary,
	})
}

// loadTranscript pulls the most recent messages of one conversation in
// chronological order, with author ids resolved to display names.
func (h *Handler) loadTranscript(ctx context.Context, db *sqlx.DB, conversationID string) ([]summarize.TranscriptLine, error) {
	index, err := identity.BuildNameIndex(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to build name index: %w", err)
	}

	const query = `
		SELECT COALESCE(sourceServiceId, '') AS author, COALESCE(body, '') AS body
		FROM (
			SELECT sourceServiceId, body, sent_at, rowid
			FROM messages
			WHERE conversationId = ? AND body IS NOT NULL AND body != ''
			ORDER BY sent_at DESC, rowid DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC, rowid ASC`

	var rows []transcriptRow
	if err := db.SelectContext(ctx, &rows, query, conversationID, transcriptLimit); err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	transcript := make([]summarize.TranscriptLine, 0, len(rows))
	for _, row := range rows {
		transcript = append(transcript, summarize.TranscriptLine{
			Author: identity.Lookup(index, row.Author),
			Body:   row.Body,
		})
	}
	return transcript, nil
}

func (h *Handler) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": h.auditLog.Events(),
	})
}

func (h *Handler) updateSessionGauge() {
	if h.metrics != nil {
		h.metrics.SetActiveSessions(h.registry.Stats().Active)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; the connection is the caller's problem.
		return
	}
}
