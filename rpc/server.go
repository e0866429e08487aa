package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Orbiter-Finance/OB-Submitter/internal/profitstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/rpcapi"
)

// Server is a JSON-RPC HTTP server dispatching to an rpcapi.API.
type Server struct {
	api *rpcapi.API
	mux *http.ServeMux
}

// NewServer creates a new JSON-RPC server backed by api.
func NewServer(api *rpcapi.API) *Server {
	s := &Server{api: api, mux: http.NewServeMux()}
	s.mux.HandleFunc("/", s.handleRPC)
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, ErrCodeParse, "failed to read request body")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, ErrCodeParse, "invalid JSON")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		writeJSON(w, &Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, &Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

// dispatch routes one JSON-RPC request to the matching rpcapi.API method,
// translating rpcapi.Error into its numeric RPC code and anything else
// into the generic internal-error code.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *RPCError) {
	switch req.Method {
	case "getProfitInfo":
		var p struct {
			User   common.Address      `json:"user"`
			Tokens []rpcapi.TokenQuery `json:"tokens"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return result(s.api.GetProfitInfo(ctx, p.User, p.Tokens))

	case "getAllProfitInfo":
		var p struct {
			User common.Address `json:"user"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return result(s.api.GetAllProfitInfo(ctx, p.User))

	case "getProfitByTxHash":
		var p struct {
			TxHash common.Hash `json:"txHash"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		profit, found, err := s.api.GetProfitByTxHash(ctx, p.TxHash)
		if err != nil {
			return nil, domainError(err)
		}
		if !found {
			return nil, nil
		}
		return profit, nil

	case "getRoot":
		return result(s.api.GetRoot(ctx))

	case "getProfitRootByBlockNum":
		var p struct {
			BlockNum uint64 `json:"blockNum"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return result(s.api.GetProfitRootByBlockNum(ctx, p.BlockNum))

	case "getProfitProof":
		var p struct {
			User   common.Address      `json:"user"`
			Tokens []rpcapi.TokenQuery `json:"tokens"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return result(s.api.GetProfitProof(ctx, p.User, p.Tokens))

	case "verify":
		var p struct {
			ChainID            uint64         `json:"chainId"`
			Token              common.Address `json:"token"`
			User               common.Address `json:"user"`
			CompiledProofBytes []byte         `json:"compiledProofBytes"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return result(s.api.Verify(ctx, p.ChainID, p.Token, p.User, p.CompiledProofBytes))

	case "debug_clearState":
		if err := s.api.ClearState(ctx); err != nil {
			return nil, domainError(err)
		}
		return true, nil

	case "debug_updateProfit":
		var p struct {
			ChainID uint64           `json:"chainId"`
			Token   common.Address   `json:"token"`
			User    common.Address   `json:"user"`
			Data    profitstate.Data `json:"data"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := s.api.UpdateProfit(ctx, p.ChainID, p.Token, p.User, p.Data); err != nil {
			return nil, domainError(err)
		}
		return true, nil

	case "debug_updateProfitByCount":
		var p struct {
			Count uint64 `json:"count"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := s.api.UpdateProfitByCount(ctx, p.Count); err != nil {
			return nil, domainError(err)
		}
		return true, nil

	default:
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

// result adapts a (value, error) rpcapi call into dispatch's return shape.
func result(v interface{}, err error) (interface{}, *RPCError) {
	if err != nil {
		return nil, domainError(err)
	}
	return v, nil
}

// domainError maps an rpcapi.Error to its spec §7 numeric code, falling
// back to the generic internal-error code for anything else.
func domainError(err error) *RPCError {
	var apiErr *rpcapi.Error
	if errors.As(err, &apiErr) {
		return &RPCError{Code: apiErr.Kind.Code(), Message: apiErr.Msg}
	}
	return &RPCError{Code: ErrCodeInternal, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSON(w, &Response{JSONRPC: "2.0", Error: &RPCError{Code: code, Message: message}, ID: id})
}

func unmarshalParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return errors.New("missing params")
	}
	return json.Unmarshal(params[0], v)
}

func invalidParams(err error) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: err.Error()}
}
