package rpc

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/Orbiter-Finance/OB-Submitter/internal/blocksstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
	"github.com/Orbiter-Finance/OB-Submitter/internal/profitstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/rpcapi"
	"github.com/Orbiter-Finance/OB-Submitter/internal/smt"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txindex"
)

func newTestServer(debug bool) *Server {
	store := kvstore.NewMemoryStore()
	profit := smt.New[profitstate.Data](store, "profit", profitstate.Codec{})
	blocks := smt.New[blocksstate.Data](store, "blocks", blocksstate.Codec{})
	idx := index.New(store)
	txIdx := txindex.New(store)
	api := rpcapi.New(profit, blocks, idx, txIdx, debug)
	return NewServer(api)
}

func doRequest(t *testing.T, s *Server, method string, params interface{}) Response {
	t.Helper()
	var raw []json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		raw = []json.RawMessage{b}
	}
	req := Request{JSONRPC: "2.0", Method: method, Params: raw, ID: json.RawMessage("1")}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", bytes.NewReader(body))
	s.Handler().ServeHTTP(w, r)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v, body=%s", err, w.Body.String())
	}
	return resp
}

func TestGetRootReturnsZeroHashOnEmptyState(t *testing.T) {
	s := newTestServer(false)
	resp := doRequest(t, s, "getRoot", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil {
		t.Fatal("expected a non-nil result")
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(false)
	resp := doRequest(t, s, "bogusMethod", nil)
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Fatalf("got %+v, want ErrCodeMethodNotFound", resp.Error)
	}
}

func TestDebugMethodDisabledReturnsBadParametersCode(t *testing.T) {
	s := newTestServer(false)
	resp := doRequest(t, s, "debug_clearState", nil)
	if resp.Error == nil || resp.Error.Code != 889 {
		t.Fatalf("got %+v, want code 889 (BAD_PARAMETERS) for disabled debug namespace", resp.Error)
	}
}

func TestDebugMethodEnabledSucceeds(t *testing.T) {
	s := newTestServer(true)
	resp := doRequest(t, s, "debug_clearState", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestGetProfitInfoMissingParamsIsInvalidParams(t *testing.T) {
	s := newTestServer(false)
	resp := doRequest(t, s, "getProfitInfo", nil)
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
		t.Fatalf("got %+v, want ErrCodeInvalidParams", resp.Error)
	}
}
