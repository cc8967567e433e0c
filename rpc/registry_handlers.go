package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

type registerMerchantParams struct {
	Merchant       string   `json:"merchant"`
	AcceptedTokens []string `json:"acceptedTokens"`
	FallbackToken  string   `json:"fallbackToken"`
}

type merchantResult struct {
	Merchant       string   `json:"merchant"`
	AcceptedTokens []string `json:"acceptedTokens"`
	FallbackToken  string   `json:"fallbackToken"`
	UpdatedAt      int64    `json:"updatedAt"`
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, req *RPCRequest) {
	var params registerMerchantParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	merchant, err := parseAddress(params.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, err := s.node.RegisterMerchant(merchant, params.AcceptedTokens, params.FallbackToken)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, merchantResult{
		Merchant:       formatAddress(record.Address),
		AcceptedTokens: record.AcceptedTokens,
		FallbackToken:  record.FallbackToken,
		UpdatedAt:      record.UpdatedAt,
	})
}

type getMerchantParams struct {
	Merchant string `json:"merchant"`
}

func (s *Server) handleRegistryGet(w http.ResponseWriter, req *RPCRequest) {
	var params getMerchantParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	merchant, err := parseAddress(params.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, err := s.node.Merchant(merchant)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, merchantResult{
		Merchant:       formatAddress(record.Address),
		AcceptedTokens: record.AcceptedTokens,
		FallbackToken:  record.FallbackToken,
		UpdatedAt:      record.UpdatedAt,
	})
}
