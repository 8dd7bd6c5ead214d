package lien

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CreateLien mints a lien over the collateral named by the terms and commits
// its stack as the collateral state. It returns the lien id, the new stack and
// the lien slope.
func (e *Engine) CreateLien(caller common.Address, params CreateParams) (common.Hash, *Stack, *big.Int, error) {
	if err := e.guard(); err != nil {
		return common.Hash{}, nil, nil, err
	}
	var (
		created *Stack
		slope   *big.Int
	)
	err := e.execute(func(op *operation) error {
		cfg, err := e.Params()
		if err != nil {
			return err
		}
		if err := e.authorize(caller, CapCreate, cfg); err != nil {
			return err
		}
		if params.Terms.CollateralID == nil {
			return ErrInvalidTerms
		}
		if params.Stack != nil && cloneBigInt(params.Stack.Lien.CollateralID).Cmp(params.Terms.CollateralID) != 0 {
			return ErrInvalidHash
		}
		stored, err := e.assertStack(params.Terms.CollateralID, params.Stack)
		if err != nil {
			return err
		}
		// One committed stack per collateral; the asserted stack matched so the
		// collateral is already encumbered.
		if stored != (common.Hash{}) {
			return ErrMaxLiens
		}
		created, slope, err = e.mint(op, cfg, params.Terms, params.Amount, params.Receiver, e.now())
		return err
	})
	if err != nil {
		return common.Hash{}, nil, nil, err
	}
	return created.Point.LienID, created.Clone(), slope, nil
}

// mint validates the terms, registers the lien to receiver and commits the
// resulting stack hash.
func (e *Engine) mint(op *operation, cfg Params, terms Terms, amount *big.Int, receiver common.Address, now uint64) (*Stack, *big.Int, error) {
	if terms.CollateralID == nil || terms.CollateralID.Sign() < 0 {
		return nil, nil, ErrInvalidTerms
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, nil, ErrAmountZero
	}
	principal, err := safeCastTo88(amount)
	if err != nil {
		return nil, nil, err
	}
	if terms.Details.MaxAmount == nil || principal.Cmp(terms.Details.MaxAmount) > 0 {
		return nil, nil, ErrExceedsMaxAmount
	}
	if terms.Details.Duration < uint64(cfg.MinLoanDuration) {
		return nil, nil, ErrMinDurationNotMet
	}
	ask := terms.Details.LiquidationInitialAsk
	if ask == nil || ask.Sign() == 0 || ask.Cmp(principal) < 0 {
		return nil, nil, ErrInvalidLiquidationInitialAsk
	}
	if receiver == (common.Address{}) {
		return nil, nil, ErrInvalidRecipient
	}
	end, err := safeCastTo40(now + terms.Details.Duration)
	if err != nil || end < now {
		return nil, nil, ErrNarrowing
	}
	count, err := e.state.CollateralLienCount(terms.CollateralID)
	if err != nil {
		return nil, nil, fmt.Errorf("lien engine: load lien count: %w", err)
	}
	if count >= uint64(cfg.MaxLiens) {
		return nil, nil, ErrMaxLiens
	}

	id, err := LienID(terms)
	if err != nil {
		return nil, nil, err
	}
	if _, ok, err := e.state.LienGet(id); err != nil {
		return nil, nil, fmt.Errorf("lien engine: load lien: %w", err)
	} else if ok {
		return nil, nil, ErrLienExists
	}

	stack := &Stack{
		Lien:  terms.Clone(),
		Point: Point{LienID: id, Amount: principal, Last: now, End: end},
	}
	slope, err := Slope(stack)
	if err != nil {
		return nil, nil, err
	}
	maxDebt, err := Owed(stack, end)
	if err != nil {
		return nil, nil, err
	}
	if terms.Details.MaxPotentialDebt == nil || maxDebt.Cmp(terms.Details.MaxPotentialDebt) > 0 {
		return nil, nil, ErrExceedsMaxPotentialDebt
	}
	if err := e.state.LienPut(stack); err != nil {
		return nil, nil, fmt.Errorf("lien engine: store lien: %w", err)
	}
	if err := e.state.LienOwnerPut(id, receiver); err != nil {
		return nil, nil, fmt.Errorf("lien engine: mint lien: %w", err)
	}
	if err := e.state.LienMetaPut(id, &Metadata{}); err != nil {
		return nil, nil, fmt.Errorf("lien engine: store metadata: %w", err)
	}
	if err := e.commitStack(stack); err != nil {
		return nil, nil, fmt.Errorf("lien engine: commit collateral state: %w", err)
	}
	if err := e.state.SetCollateralLienCount(terms.CollateralID, count+1); err != nil {
		return nil, nil, fmt.Errorf("lien engine: store lien count: %w", err)
	}
	if vault, ok := e.publicVault(receiver); ok {
		err := vault.AfterNewLien(NewLienParams{
			LienID:    id,
			Amount:    cloneBigInt(principal),
			LienSlope: cloneBigInt(slope),
			LienEnd:   end,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("lien engine: vault after new lien: %w", err)
		}
	}
	stackHash, err := StackHash(stack)
	if err != nil {
		return nil, nil, err
	}
	op.emit(NewCreatedEvent(stack, receiver, stackHash))
	return stack, slope, nil
}

// ValidateLien returns the id of the terms if a live lien exists for them.
func (e *Engine) ValidateLien(terms Terms) (common.Hash, error) {
	if e == nil || e.state == nil {
		return common.Hash{}, errNilState
	}
	id, err := LienID(terms)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := e.loadLien(id); err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// GetLien returns the registry record for the lien.
func (e *Engine) GetLien(id common.Hash) (*Stack, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stack, err := e.loadLien(id)
	if err != nil {
		return nil, err
	}
	return stack.Clone(), nil
}

// GetMetadata returns the payee override and liquidation latch of the lien.
func (e *Engine) GetMetadata(id common.Hash) (*Metadata, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadLien(id); err != nil {
		return nil, err
	}
	return e.loadMeta(id)
}

// GetOwed returns the debt of the stack at the current time.
func (e *Engine) GetOwed(stack *Stack) (*big.Int, error) {
	return e.GetOwedAt(stack, e.now())
}

// GetOwedAt returns the debt of the stack at timestamp, which must not
// precede point.last.
func (e *Engine) GetOwedAt(stack *Stack, timestamp uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.validateStack(stack)
	if err != nil {
		return nil, err
	}
	return Owed(record, timestamp)
}

// GetInterest returns the interest accrued on the stack at the current time.
func (e *Engine) GetInterest(stack *Stack) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.validateStack(stack)
	if err != nil {
		return nil, err
	}
	return Interest(record, e.now())
}

// CalculateSlope returns the per-second debt growth of the stack.
func (e *Engine) CalculateSlope(stack *Stack) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.validateStack(stack)
	if err != nil {
		return nil, err
	}
	return Slope(record)
}

// GetRemainingInterest projects the interest left to accrue until maturity.
func (e *Engine) GetRemainingInterest(stack *Stack) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.validateStack(stack)
	if err != nil {
		return nil, err
	}
	return RemainingInterest(record, e.now())
}

// GetMaxPotentialDebt returns the debt the stack would carry at maturity
// assuming no payments are made in between.
func (e *Engine) GetMaxPotentialDebt(stack *Stack) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.validateStack(stack)
	if err != nil {
		return nil, err
	}
	return Owed(record, record.Point.End)
}

// OwnerOf returns the holder of the lien's repayment rights.
func (e *Engine) OwnerOf(id common.Hash) (common.Address, error) {
	if e == nil || e.state == nil {
		return common.Address{}, errNilState
	}
	return e.ownerOf(id)
}

// GetPayee returns the payee override if set, otherwise the lien owner.
func (e *Engine) GetPayee(id common.Hash) (common.Address, error) {
	if e == nil || e.state == nil {
		return common.Address{}, errNilState
	}
	if _, err := e.loadLien(id); err != nil {
		return common.Address{}, err
	}
	return e.payeeOf(id)
}

// TransferLien moves the repayment rights from one holder to another. Pooled
// vaults can only be reached through the payee override path.
func (e *Engine) TransferLien(caller, from, to common.Address, id common.Hash) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.execute(func(op *operation) error {
		if to == (common.Address{}) {
			return ErrInvalidRecipient
		}
		owner, err := e.ownerOf(id)
		if err != nil {
			return err
		}
		if _, ok := e.publicVault(to); ok {
			return ErrPublicVaultRecipient
		}
		meta, err := e.loadMeta(id)
		if err != nil {
			return err
		}
		if meta.AtLiquidation {
			return ErrCollateralAuction
		}
		if owner != from || caller != from {
			return ErrNotLienOwner
		}
		meta.Payee = common.Address{}
		if err := e.state.LienMetaPut(id, meta); err != nil {
			return fmt.Errorf("lien engine: store metadata: %w", err)
		}
		if err := e.state.LienOwnerPut(id, to); err != nil {
			return fmt.Errorf("lien engine: store owner: %w", err)
		}
		op.emit(NewTransferredEvent(id, from, to))
		return nil
	})
}

// SetPayee installs a payee override. Lien owners may redirect payments to
// any address other than a pooled vault; callers holding the setPayee
// capability may install any payee.
func (e *Engine) SetPayee(caller common.Address, id common.Hash, payee common.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.execute(func(op *operation) error {
		cfg, err := e.Params()
		if err != nil {
			return err
		}
		record, err := e.loadLien(id)
		if err != nil {
			return err
		}
		stored, err := e.state.CollateralStateGet(record.Lien.CollateralID)
		if err != nil {
			return fmt.Errorf("lien engine: load collateral state: %w", err)
		}
		if stored == ActiveAuction {
			return ErrCollateralAuction
		}
		owner, err := e.ownerOf(id)
		if err != nil {
			return err
		}
		privileged := e.authorize(caller, CapSetPayee, cfg) == nil
		if !privileged {
			if caller != owner {
				return ErrNotAuthorized
			}
			if _, ok := e.publicVault(payee); ok {
				return ErrPublicVaultRecipient
			}
		}
		meta, err := e.loadMeta(id)
		if err != nil {
			return err
		}
		meta.Payee = payee
		if err := e.state.LienMetaPut(id, meta); err != nil {
			return fmt.Errorf("lien engine: store metadata: %w", err)
		}
		op.emit(NewPayeeChangedEvent(id, payee))
		return nil
	})
}
