// ABOUTME: Tests for the HTTP API handlers of the cell gateway
// ABOUTME: Verifies request handling, error mapping, stats, and the device scenario

package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cell-gateway/internal/cell"
	"github.com/2389/cell-gateway/internal/config"
)

// newTestGateway builds a gateway with audit disabled and the given seed.
func newTestGateway(t *testing.T, initialSecret string) *Gateway {
	t.Helper()
	cfg := config.Default()
	cfg.Cell.InitialSecret = initialSecret

	gw, err := New(cfg, nil)
	require.NoError(t, err)
	return gw
}

// newAuditedGateway builds a gateway with a SQLite audit store in a temp dir.
func newAuditedGateway(t *testing.T, initialSecret string) *Gateway {
	t.Helper()
	cfg := config.Default()
	cfg.Cell.InitialSecret = initialSecret
	cfg.Audit.Enabled = true
	cfg.Database.Path = filepath.Join(t.TempDir(), "audit.db")

	gw, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		gw.store.Close()
	})
	return gw
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func openSession(t *testing.T, gw *Gateway) string {
	t.Helper()
	rec := postJSON(t, gw.handleOpen, "/api/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OpenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Handle)
	return resp.Handle
}

func TestHandleOpen(t *testing.T) {
	gw := newTestGateway(t, "initmsg")

	handle := openSession(t, gw)
	assert.NotEmpty(t, handle)

	// GET is not allowed
	req := httptest.NewRequest(http.MethodGet, "/api/open", nil)
	rec := httptest.NewRecorder()
	gw.handleOpen(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleRead(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data, err := base64.StdEncoding.DecodeString(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte("initmsg"), data)
	assert.Equal(t, 7, resp.Length)
	assert.Equal(t, uint64(7), resp.TX)
}

func TestHandleRead_ShortBuffer(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: 64})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, cell.ErrShortBuffer.Error(), errResp["error"])
}

func TestHandleRead_EmptyCell(t *testing.T) {
	gw := newTestGateway(t, "")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRead_InvalidSession(t *testing.T) {
	gw := newTestGateway(t, "initmsg")

	rec := postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: "bogus", Capacity: cell.MaxBytes})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRead_BadJSON(t *testing.T) {
	gw := newTestGateway(t, "initmsg")

	req := httptest.NewRequest(http.MethodPost, "/api/read", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	gw.handleRead(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWrite(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleWrite, "/api/write", WriteRequest{
		Handle: handle,
		Data:   base64.StdEncoding.EncodeToString([]byte("newsecret")),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WriteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 9, resp.Accepted)
	assert.Equal(t, uint64(9), resp.RX)
}

func TestHandleWrite_Oversize(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleWrite, "/api/write", WriteRequest{
		Handle: handle,
		Data:   base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), cell.MaxBytes)),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Cell content untouched
	readRec := postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})
	require.Equal(t, http.StatusOK, readRec.Code)
	var resp ReadResponse
	require.NoError(t, json.NewDecoder(readRec.Body).Decode(&resp))
	assert.Equal(t, 7, resp.Length)
}

func TestHandleWrite_BadBase64(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleWrite, "/api/write", WriteRequest{Handle: handle, Data: "!!not-base64!!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleClose(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleClose, "/api/close", CloseRequest{Handle: handle})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Every operation after close fails with 409.
	rec = postJSON(t, gw.handleClose, "/api/close", CloseRequest{Handle: handle})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, gw.handleWrite, "/api/write", WriteRequest{
		Handle: handle,
		Data:   base64.StdEncoding.EncodeToString([]byte("x")),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleStats(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})
	postJSON(t, gw.handleWrite, "/api/write", WriteRequest{
		Handle: handle,
		Data:   base64.StdEncoding.EncodeToString([]byte("newsecret")),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	gw.handleStats(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(7), resp.TX)
	assert.Equal(t, uint64(9), resp.RX)
	assert.Equal(t, uint64(0), resp.Errors)
	assert.Equal(t, uint64(1), resp.Opens)
	assert.Equal(t, uint64(0), resp.Closes)
	assert.Equal(t, 1, resp.ActiveSessions)
}

// TestDeviceScenario walks the canonical lifetime: seed "initmsg", open,
// read it back, replace with "newsecret", read again, close. Counter values
// are exact at every step.
func TestDeviceScenario(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)

	rec := postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: 128})
	require.Equal(t, http.StatusOK, rec.Code)
	var readResp ReadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&readResp))
	data, _ := base64.StdEncoding.DecodeString(readResp.Data)
	assert.Equal(t, []byte("initmsg"), data)
	assert.Equal(t, uint64(7), readResp.TX)

	rec = postJSON(t, gw.handleWrite, "/api/write", WriteRequest{
		Handle: handle,
		Data:   base64.StdEncoding.EncodeToString([]byte("newsecret")),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var writeResp WriteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&writeResp))
	assert.Equal(t, 9, writeResp.Accepted)
	assert.Equal(t, uint64(9), writeResp.RX)

	rec = postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: 128})
	require.Equal(t, http.StatusOK, rec.Code)
	readResp = ReadResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&readResp))
	data, _ = base64.StdEncoding.DecodeString(readResp.Data)
	assert.Equal(t, []byte("newsecret"), data)
	assert.Equal(t, uint64(16), readResp.TX)

	rec = postJSON(t, gw.handleClose, "/api/close", CloseRequest{Handle: handle})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAudit(t *testing.T) {
	gw := newAuditedGateway(t, "initmsg")
	handle := openSession(t, gw)

	postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})
	postJSON(t, gw.handleWrite, "/api/write", WriteRequest{
		Handle: handle,
		Data:   base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), cell.MaxBytes)),
	})
	postJSON(t, gw.handleClose, "/api/close", CloseRequest{Handle: handle})

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	rec := httptest.NewRecorder()
	gw.handleAudit(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListAuditResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Entries, 4)

	ops := make(map[string]int)
	for _, e := range resp.Entries {
		ops[e.Op]++
		assert.Equal(t, handle, e.Handle)
	}
	assert.Equal(t, 1, ops["open"])
	assert.Equal(t, 1, ops["read"])
	assert.Equal(t, 1, ops["write_reject"])
	assert.Equal(t, 1, ops["close"])
}

func TestHandleAudit_FilterByOp(t *testing.T) {
	gw := newAuditedGateway(t, "initmsg")
	handle := openSession(t, gw)
	postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})

	req := httptest.NewRequest(http.MethodGet, "/api/audit?op=read", nil)
	rec := httptest.NewRecorder()
	gw.handleAudit(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListAuditResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "read", resp.Entries[0].Op)
	assert.Equal(t, 7, resp.Entries[0].Bytes)
}

func TestHandleAudit_BadFilter(t *testing.T) {
	gw := newTestGateway(t, "initmsg")

	for _, query := range []string{"?op=frobnicate", "?since=yesterday", "?limit=-1", "?limit=ten"} {
		req := httptest.NewRequest(http.MethodGet, "/api/audit"+query, nil)
		rec := httptest.NewRecorder()
		gw.handleAudit(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %s", query)
	}
}

func TestHandleAudit_DisabledIsEmpty(t *testing.T) {
	gw := newTestGateway(t, "initmsg")
	handle := openSession(t, gw)
	postJSON(t, gw.handleRead, "/api/read", ReadRequest{Handle: handle, Capacity: cell.MaxBytes})

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	rec := httptest.NewRecorder()
	gw.handleAudit(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListAuditResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Entries)
}
