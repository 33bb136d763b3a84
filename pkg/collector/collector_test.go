package collector_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/hazyhaar/clarity-agent/pkg/collector"
)

func compress(t *testing.T, payload map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	return enc.EncodeAll(raw, nil)
}

func TestHandleCollect_DecompressesAndInvokesHandler(t *testing.T) {
	var got map[string]any
	srv, err := collector.New("/collect", func(payload map[string]any) { got = payload }, nil)
	if err != nil {
		t.Fatal(err)
	}

	body := compress(t, map[string]any{"events": []any{1, 2, 3}})
	req := httptest.NewRequest(http.MethodPost, "/collect", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d", rec.Code)
	}
	events, _ := got["events"].([]any)
	if len(events) != 3 {
		t.Fatalf("got events %v", got["events"])
	}
}

func TestHandleCollect_RejectsBadPayload(t *testing.T) {
	srv, err := collector.New("/collect", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/collect", bytes.NewReader([]byte("not zstd")))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, err := collector.New("/collect", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
}
