package rpc

import (
	"net/http"
)

type feeBalanceParams struct {
	Token string `json:"token"`
}

func (s *Server) handleFeeBalance(w http.ResponseWriter, req *RPCRequest) {
	var params feeBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.FeeSinkBalance(params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"token":   params.Token,
		"balance": formatAmount(balance),
	})
}

type withdrawFeesParams struct {
	Admin  string `json:"admin"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawFeesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	admin, err := parseAddress(params.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.WithdrawFees(admin, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"admin":  params.Admin,
		"token":  params.Token,
		"amount": params.Amount,
	})
}

type fundParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

func (s *Server) handleFund(w http.ResponseWriter, req *RPCRequest) {
	var params fundParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.FundAccount(addr, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	balance, err := s.node.Balance(addr, params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": params.Address,
		"token":   params.Token,
		"balance": formatAmount(balance),
	})
}
