package http

import (
	"net/http"

	"ledger/internal/core"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in core.NewTransaction
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.deps.Ledger.CreateTransaction(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope("Transaction created successfully", "transaction", t))
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var in core.NewTransfer
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.deps.Ledger.CreateTransfer(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope("Transfer completed successfully", "transaction", t))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Ledger.ListTransactions(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.deps.Ledger.GetTransaction(r.Context(), owner(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch core.TransactionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.deps.Ledger.UpdateTransaction(r.Context(), owner(r), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope("Transaction updated successfully", "transaction", t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Ledger.DeleteTransaction(r.Context(), owner(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
