package rpc

import (
	"net/http"

	"splitpay/native/settlement"
)

type splitParam struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type createSessionParams struct {
	Payer          string       `json:"payer"`
	Merchant       string       `json:"merchant"`
	PreferredToken string       `json:"preferredToken"`
	Splits         []splitParam `json:"splits"`
	TotalRequested string       `json:"totalRequested"`
	Nonce          uint64       `json:"nonce"`
}

type sessionResult struct {
	SessionID      string            `json:"sessionId"`
	Payer          string            `json:"payer"`
	Merchant       string            `json:"merchant"`
	PreferredToken string            `json:"preferredToken"`
	Splits         []splitParam      `json:"splits"`
	TotalRequested string            `json:"totalRequested"`
	Status         string            `json:"status"`
	CreatedAt      int64             `json:"createdAt"`
	EscrowBalances map[string]string `json:"escrowBalances,omitempty"`
}

func (s *Server) sessionView(session *settlement.PaymentSession, withBalances bool) (sessionResult, error) {
	view := sessionResult{
		SessionID:      formatSessionID(session.ID),
		Payer:          formatAddress(session.Payer),
		Merchant:       formatAddress(session.Merchant),
		PreferredToken: session.PreferredToken,
		Splits:         make([]splitParam, len(session.SplitTokens)),
		TotalRequested: formatAmount(session.TotalRequested),
		Status:         session.Status.String(),
		CreatedAt:      session.CreatedAt,
	}
	for i, split := range session.SplitTokens {
		view.Splits[i] = splitParam{Token: split.Token, Amount: formatAmount(split.Amount)}
	}
	if withBalances {
		view.EscrowBalances = make(map[string]string)
		for _, token := range session.EscrowTokens() {
			balance, err := s.node.EscrowBalance(session.ID, token)
			if err != nil {
				return sessionResult{}, err
			}
			view.EscrowBalances[token] = formatAmount(balance)
		}
	}
	return view, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, req *RPCRequest) {
	var params createSessionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payer, err := parseAddress(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	merchant, err := parseAddress(params.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	total, err := parseAmount(params.TotalRequested)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	splits := make([]settlement.SplitToken, len(params.Splits))
	for i, split := range params.Splits {
		amount, err := parseAmount(split.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		splits[i] = settlement.SplitToken{Token: split.Token, Amount: amount}
	}
	session, err := s.node.CreateSession(payer, merchant, params.PreferredToken, splits, total, params.Nonce)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	view, err := s.sessionView(session, false)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, view)
}

type depositParams struct {
	SessionID string `json:"sessionId"`
	Caller    string `json:"caller"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseSessionID(params.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Deposit(id, caller, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	balance, err := s.node.EscrowBalance(id, params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"sessionId":     params.SessionID,
		"token":         params.Token,
		"escrowBalance": formatAmount(balance),
	})
}

type routeParam struct {
	Token        string `json:"token"`
	Payload      string `json:"payload"`
	AccountCount int    `json:"accountCount"`
}

type finalizeParams struct {
	SessionID       string       `json:"sessionId"`
	Caller          string       `json:"caller"`
	Merchant        string       `json:"merchant"`
	SettlementToken string       `json:"settlementToken"`
	Routes          []routeParam `json:"routes"`
	VenueAccounts   []string     `json:"venueAccounts"`
}

type receiptResult struct {
	ReceiptID string `json:"receiptId"`
	SessionID string `json:"sessionId"`
	Gross     string `json:"gross"`
	Fee       string `json:"fee"`
	Net       string `json:"net"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params finalizeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseSessionID(params.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	merchant, err := parseAddress(params.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	engineReq := settlement.FinalizeRequest{
		SessionID:          id,
		Caller:             caller,
		Merchant:           merchant,
		SettlementToken:    params.SettlementToken,
		RouteTokens:        make([]string, len(params.Routes)),
		RoutePayloads:      make([][]byte, len(params.Routes)),
		RouteAccountCounts: make([]int, len(params.Routes)),
		VenueAccounts:      params.VenueAccounts,
	}
	for i, route := range params.Routes {
		payload, err := parseHexPayload(route.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		engineReq.RouteTokens[i] = route.Token
		engineReq.RoutePayloads[i] = payload
		engineReq.RouteAccountCounts[i] = route.AccountCount
	}
	receipt, err := s.node.Finalize(r.Context(), engineReq)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receiptResult{
		ReceiptID: receipt.ReceiptID,
		SessionID: formatSessionID(receipt.Session),
		Gross:     formatAmount(receipt.Gross),
		Fee:       formatAmount(receipt.Fee),
		Net:       formatAmount(receipt.Net),
	})
}

type cancelParams struct {
	SessionID string `json:"sessionId"`
	Caller    string `json:"caller"`
}

func (s *Server) handleCancel(w http.ResponseWriter, req *RPCRequest) {
	var params cancelParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseSessionID(params.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Cancel(id, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"sessionId": params.SessionID,
		"status":    settlement.StatusCancelled.String(),
	})
}

type getSessionParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, req *RPCRequest) {
	var params getSessionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseSessionID(params.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	session, err := s.node.Session(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	view, err := s.sessionView(session, true)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, view)
}

type getReceiptParams struct {
	ReceiptID string `json:"receiptId"`
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, req *RPCRequest) {
	var params getReceiptParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	receipt, err := s.node.Receipt(params.ReceiptID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receiptResult{
		ReceiptID: receipt.ReceiptID,
		SessionID: formatSessionID(receipt.Session),
		Gross:     formatAmount(receipt.Gross),
		Fee:       formatAmount(receipt.Fee),
		Net:       formatAmount(receipt.Net),
	})
}
