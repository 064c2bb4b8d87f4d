// ABOUTME: HTTP API handlers exposing the cell's open/read/write/close/stats surface
// ABOUTME: Maps cell and session errors to HTTP statuses and records audit entries

package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/cell-gateway/internal/cell"
	"github.com/2389/cell-gateway/internal/session"
	"github.com/2389/cell-gateway/internal/store"
)

// OpenResponse is the JSON response for POST /api/open.
type OpenResponse struct {
	Handle string `json:"handle"`
}

// ReadRequest is the JSON request body for POST /api/read. Capacity declares
// the caller's receive buffer size; the cell rejects anything below its
// capacity, so callers are expected to send 128.
type ReadRequest struct {
	Handle   string `json:"handle"`
	Capacity int    `json:"capacity"`
}

// ReadResponse is the JSON response for POST /api/read. Data is base64.
type ReadResponse struct {
	Data   string `json:"data"`
	Length int    `json:"length"`
	TX     uint64 `json:"tx"`
}

// WriteRequest is the JSON request body for POST /api/write. Data is base64.
type WriteRequest struct {
	Handle string `json:"handle"`
	Data   string `json:"data"`
}

// WriteResponse is the JSON response for POST /api/write.
type WriteResponse struct {
	Accepted int    `json:"accepted"`
	RX       uint64 `json:"rx"`
}

// CloseRequest is the JSON request body for POST /api/close.
type CloseRequest struct {
	Handle string `json:"handle"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	TX             uint64 `json:"tx"`
	RX             uint64 `json:"rx"`
	Errors         uint64 `json:"errors"`
	Opens          uint64 `json:"opens"`
	Closes         uint64 `json:"closes"`
	ActiveSessions int    `json:"active_sessions"`
}

// AuditEntryResponse is one audit entry in GET /api/audit responses.
type AuditEntryResponse struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	Handle    string `json:"handle,omitempty"`
	Bytes     int    `json:"bytes"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ListAuditResponse is the JSON response for GET /api/audit.
type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

func (g *Gateway) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s := g.sessions.Open()
	g.recordAudit(r.Context(), &store.AuditEntry{Op: store.AuditOpen, Handle: s.Handle})

	g.writeJSON(w, http.StatusOK, OpenResponse{Handle: s.Handle})
}

func (g *Gateway) handleRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ReadRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := g.sessions.Read(req.Handle, req.Capacity)
	if err != nil {
		g.recordAudit(r.Context(), &store.AuditEntry{
			Op:     auditOpForError(store.AuditReadReject, err),
			Handle: req.Handle,
			Bytes:  req.Capacity,
			Error:  err.Error(),
		})
		g.sendJSONError(w, statusForError(err), err.Error())
		return
	}

	g.recordAudit(r.Context(), &store.AuditEntry{
		Op:     store.AuditRead,
		Handle: req.Handle,
		Bytes:  len(data),
	})

	g.writeJSON(w, http.StatusOK, ReadResponse{
		Data:   base64.StdEncoding.EncodeToString(data),
		Length: len(data),
		TX:     g.cell.Stats().TX,
	})
}

func (g *Gateway) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req WriteRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "data must be base64")
		return
	}

	accepted, err := g.sessions.Write(req.Handle, payload)
	if err != nil {
		g.recordAudit(r.Context(), &store.AuditEntry{
			Op:     auditOpForError(store.AuditWriteReject, err),
			Handle: req.Handle,
			Bytes:  len(payload),
			Error:  err.Error(),
		})
		g.sendJSONError(w, statusForError(err), err.Error())
		return
	}

	g.recordAudit(r.Context(), &store.AuditEntry{
		Op:     store.AuditWrite,
		Handle: req.Handle,
		Bytes:  accepted,
	})

	g.writeJSON(w, http.StatusOK, WriteResponse{
		Accepted: accepted,
		RX:       g.cell.Stats().RX,
	})
}

func (g *Gateway) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CloseRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.sessions.Close(req.Handle); err != nil {
		g.recordAudit(r.Context(), &store.AuditEntry{
			Op:     store.AuditSessionDenied,
			Handle: req.Handle,
			Error:  err.Error(),
		})
		g.sendJSONError(w, statusForError(err), err.Error())
		return
	}

	g.recordAudit(r.Context(), &store.AuditEntry{Op: store.AuditClose, Handle: req.Handle})

	g.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := g.cell.Stats()
	counters := g.sessions.Counters()

	g.writeJSON(w, http.StatusOK, StatsResponse{
		TX:             stats.TX,
		RX:             stats.RX,
		Errors:         stats.Errors,
		Opens:          counters.Opens,
		Closes:         counters.Closes,
		ActiveSessions: counters.Active,
	})
}

// handleAudit lists audit entries, filtered by op, handle, since, and limit
// query parameters. With audit disabled the list is always empty.
func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := g.store.ListAudit(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing audit entries", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "listing audit entries failed")
		return
	}

	resp := ListAuditResponse{Entries: make([]AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, AuditEntryResponse{
			ID:        e.ID,
			Op:        string(e.Op),
			Handle:    e.Handle,
			Bytes:     e.Bytes,
			Error:     e.Error,
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		})
	}

	g.writeJSON(w, http.StatusOK, resp)
}

// parseAuditFilter builds an AuditFilter from query parameters.
func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	var filter store.AuditFilter
	q := r.URL.Query()

	if v := q.Get("op"); v != "" {
		op := store.AuditOp(v)
		valid := false
		for _, candidate := range store.ValidAuditOps {
			if op == candidate {
				valid = true
				break
			}
		}
		if !valid {
			return filter, errors.New("unknown audit op")
		}
		filter.Op = &op
	}
	if v := q.Get("handle"); v != "" {
		filter.Handle = &v
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("since must be RFC3339")
		}
		filter.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	return filter, nil
}

// statusForError maps cell and session errors to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, cell.ErrShortBuffer):
		return http.StatusBadRequest
	case errors.Is(err, cell.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, cell.ErrOversize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrSessionNotOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// auditOpForError picks the session-denied op for handle failures and the
// given rejection op for cell-level failures.
func auditOpForError(reject store.AuditOp, err error) store.AuditOp {
	if errors.Is(err, session.ErrSessionNotOpen) {
		return store.AuditSessionDenied
	}
	return reject
}

// recordAudit saves an audit entry, logging instead of failing the request
// when the store misbehaves.
func (g *Gateway) recordAudit(ctx context.Context, e *store.AuditEntry) {
	if err := g.store.AppendAudit(ctx, e); err != nil {
		g.logger.Error("recording audit entry", "op", e.Op, "error", err)
	}
}

// decodeJSON parses a JSON request body into dst.
func decodeJSON(r io.Reader, dst any) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
