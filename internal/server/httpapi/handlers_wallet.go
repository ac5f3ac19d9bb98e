package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/subkeeper/internal/common"
)

const defaultTransactionsLimit = 50

type topUpRequest struct {
	AmountCents int64 `json:"amountCents"`
}

type purchaseRequest struct {
	PriceID string `json:"priceId"`
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.svc.Wallet.GetWallet(r.Context(), callerFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWallet(wallet))
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	wallet, err := s.svc.Wallet.TopUp(r.Context(), callerFrom(r.Context()).UserID, req.AmountCents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWallet(wallet))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.svc.Wallet.DebitForSubscription(r.Context(), callerFrom(r.Context()).UserID, req.PriceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"subscription": toUserSubscription(p.Subscription),
		"payment":      toPayment(p.Payment),
		"balance":      p.Balance,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultTransactionsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: limit must be a number", common.ErrValidation))
			return
		}
		limit = n
	}
	list, err := s.svc.Wallet.Transactions(r.Context(), callerFrom(r.Context()).UserID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(list))
	for _, t := range list {
		out = append(out, transactionResponse{ID: t.ID, Amount: t.Amount, Type: string(t.Type), CreatedAt: t.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Wallet.Reconcile(r.Context(), callerFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"walletId": rec.WalletID,
		"balance":  rec.Balance,
		"ledger":   rec.Sum,
		"balanced": rec.Balanced(),
	})
}
