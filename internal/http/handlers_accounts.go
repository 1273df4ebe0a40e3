package http

import (
	"net/http"

	"ledger/internal/core"
)

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var in core.NewAccount
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.deps.Accounts.CreateAccount(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope("Account created successfully", "account", a))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Accounts.ListAccounts(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []core.BankAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.deps.Accounts.GetAccount(r.Context(), owner(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch core.AccountPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.deps.Accounts.UpdateAccount(r.Context(), owner(r), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope("Account updated successfully", "account", a))
}

// handleDeleteAccount answers 409 while transactions still reference the account.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Accounts.DeleteAccount(r.Context(), owner(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var in core.NewCard
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Accounts.CreateCard(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope("Credit card created successfully", "card", c))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.deps.Accounts.ListCards(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cards == nil {
		cards = []core.CreditCard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Accounts.GetCard(r.Context(), owner(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch core.CardPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Accounts.UpdateCard(r.Context(), owner(r), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope("Credit card updated successfully", "card", c))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Accounts.DeleteCard(r.Context(), owner(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
