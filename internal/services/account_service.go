package services

import (
	"context"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// AccountService manages bank accounts and credit cards. Balances and bills
// are set once at creation; afterwards only transactions move them.
type AccountService struct {
	store  storage.Store
	logger *log.Logger
}

func NewAccountService(store storage.Store) *AccountService {
	return &AccountService{store: store, logger: log.For(log.ComponentAccounts)}
}

func (s *AccountService) CreateAccount(ctx context.Context, ownerID int64, in core.NewAccount) (core.BankAccount, error) {
	a := in.Account(ownerID)
	if err := a.Validate(); err != nil {
		return core.BankAccount{}, err
	}

	var created core.BankAccount
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		created, err = tx.InsertAccount(ctx, a)
		return err
	})
	if err != nil {
		return core.BankAccount{}, internal("create account", err)
	}

	s.logger.InfoContext(ctx, "Account created",
		log.FieldOwnerID, ownerID,
		log.FieldAccountID, created.ID,
		log.FieldAmount, core.FormatAmount(created.Balance))
	return created, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, ownerID int64) ([]core.BankAccount, error) {
	accounts, err := s.store.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, internal("list accounts", err)
	}
	if accounts == nil {
		accounts = []core.BankAccount{}
	}
	return accounts, nil
}

func (s *AccountService) GetAccount(ctx context.Context, ownerID, id int64) (core.BankAccount, error) {
	a, err := s.store.GetAccount(ctx, ownerID, id)
	if err != nil {
		return core.BankAccount{}, internal("get account", err)
	}
	return a, nil
}

// UpdateAccount changes name and currency.
func (s *AccountService) UpdateAccount(ctx context.Context, ownerID, id int64, patch core.AccountPatch) (core.BankAccount, error) {
	var updated core.BankAccount
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockAccounts(ctx, ownerID, []int64{id})
		if err != nil {
			return err
		}
		updated = patch.Apply(locked[id])
		if err := updated.Validate(); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, updated)
	})
	if err != nil {
		return core.BankAccount{}, internal("update account", err)
	}
	return updated, nil
}

// DeleteAccount removes an account no transaction references any more.
func (s *AccountService) DeleteAccount(ctx context.Context, ownerID, id int64) error {
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.LockAccounts(ctx, ownerID, []int64{id}); err != nil {
			return err
		}
		refs, err := tx.CountReferences(ctx, ownerID, core.Target{Kind: core.AccountTarget, ID: id})
		if err != nil {
			return err
		}
		if refs > 0 {
			return core.Conflictf("account %d still has %d transactions", id, refs)
		}
		return tx.DeleteAccount(ctx, ownerID, id)
	})
	if err != nil {
		return internal("delete account", err)
	}

	s.logger.InfoContext(ctx, "Account deleted", log.FieldOwnerID, ownerID, log.FieldAccountID, id)
	return nil
}

func (s *AccountService) CreateCard(ctx context.Context, ownerID int64, in core.NewCard) (core.CreditCard, error) {
	c := in.Card(ownerID)
	if err := c.Validate(); err != nil {
		return core.CreditCard{}, err
	}

	var created core.CreditCard
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		created, err = tx.InsertCard(ctx, c)
		return err
	})
	if err != nil {
		return core.CreditCard{}, internal("create credit card", err)
	}

	s.logger.InfoContext(ctx, "Credit card created", log.FieldOwnerID, ownerID, log.FieldCardID, created.ID)
	return created, nil
}

func (s *AccountService) ListCards(ctx context.Context, ownerID int64) ([]core.CreditCard, error) {
	cards, err := s.store.ListCards(ctx, ownerID)
	if err != nil {
		return nil, internal("list credit cards", err)
	}
	if cards == nil {
		cards = []core.CreditCard{}
	}
	return cards, nil
}

func (s *AccountService) GetCard(ctx context.Context, ownerID, id int64) (core.CreditCard, error) {
	c, err := s.store.GetCard(ctx, ownerID, id)
	if err != nil {
		return core.CreditCard{}, internal("get credit card", err)
	}
	return c, nil
}

// UpdateCard changes name and limit. The limit is informational; bills may exceed it.
func (s *AccountService) UpdateCard(ctx context.Context, ownerID, id int64, patch core.CardPatch) (core.CreditCard, error) {
	var updated core.CreditCard
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockCards(ctx, ownerID, []int64{id})
		if err != nil {
			return err
		}
		updated = patch.Apply(locked[id])
		if err := updated.Validate(); err != nil {
			return err
		}
		return tx.UpdateCard(ctx, updated)
	})
	if err != nil {
		return core.CreditCard{}, internal("update credit card", err)
	}
	return updated, nil
}

func (s *AccountService) DeleteCard(ctx context.Context, ownerID, id int64) error {
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.LockCards(ctx, ownerID, []int64{id}); err != nil {
			return err
		}
		refs, err := tx.CountReferences(ctx, ownerID, core.Target{Kind: core.CardTarget, ID: id})
		if err != nil {
			return err
		}
		if refs > 0 {
			return core.Conflictf("credit card %d still has %d transactions", id, refs)
		}
		return tx.DeleteCard(ctx, ownerID, id)
	})
	if err != nil {
		return internal("delete credit card", err)
	}

	s.logger.InfoContext(ctx, "Credit card deleted", log.FieldOwnerID, ownerID, log.FieldCardID, id)
	return nil
}

// DeleteOwner removes all of an owner's transactions, cards and accounts in
// one unit of work.
func (s *AccountService) DeleteOwner(ctx context.Context, ownerID int64) error {
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.PurgeOwner(ctx, ownerID)
	})
	if err != nil {
		return internal("delete owner", err)
	}

	s.logger.InfoContext(ctx, "Owner data deleted", log.FieldOwnerID, ownerID)
	return nil
}
