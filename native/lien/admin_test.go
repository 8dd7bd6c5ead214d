package lien_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/native/lien"
)

func TestFileUpdatesParams(t *testing.T) {
	f := newFixture(t)

	minDuration, _ := lien.EncodeWords(big.NewInt(7200))
	expectErr(t, f.engine.File(stranger, lien.FileRequest{What: lien.FileMinLoanDuration, Data: minDuration}), lien.ErrNotAuthorized)
	// Router is not implicitly allowed to reconfigure the ledger.
	expectErr(t, f.engine.File(router, lien.FileRequest{What: lien.FileMinLoanDuration, Data: minDuration}), lien.ErrNotAuthorized)

	badFee, _ := lien.EncodeWords(big.NewInt(1000), big.NewInt(100))
	expectErr(t, f.engine.File(admin, lien.FileRequest{What: lien.FileBuyoutFee, Data: badFee}), lien.ErrInvalidFeeFraction)
	zeroDen, _ := lien.EncodeWords(big.NewInt(0), big.NewInt(0))
	expectErr(t, f.engine.File(admin, lien.FileRequest{What: lien.FileBuyoutFeeDurationCap, Data: zeroDen}), lien.ErrInvalidFeeFraction)
	zeroFloor, _ := lien.EncodeWords(big.NewInt(0))
	expectErr(t, f.engine.File(admin, lien.FileRequest{What: lien.FileAuctionFloor, Data: zeroFloor}), lien.ErrInvalidAuctionFloor)
	if len(f.events.Events()) != 0 {
		t.Fatalf("rejected updates must not emit events")
	}

	if err := f.engine.File(admin, lien.FileRequest{What: lien.FileMinLoanDuration, Data: minDuration}); err != nil {
		t.Fatalf("file min loan duration: %v", err)
	}
	floor, _ := lien.EncodeWords(big.NewInt(5))
	if err := f.engine.File(admin, lien.FileRequest{What: lien.FileAuctionFloor, Data: floor}); err != nil {
		t.Fatalf("file auction floor: %v", err)
	}
	params, err := f.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.MinLoanDuration != 7200 || params.AuctionFloor.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.BuyoutFeeNumerator != lien.DefaultBuyoutFeeNumerator {
		t.Fatalf("rejected update leaked into params: %+v", params)
	}
	evt := f.events.Events()[0]
	if evt.Type != lien.EventTypeLienFileUpdated || evt.Attributes["what"] != "MinLoanDuration" {
		t.Fatalf("unexpected file event %+v", evt)
	}

	short := testTerms(1)
	short.Details.Duration = 3600
	_, _, _, err = f.engine.CreateLien(router, lien.CreateParams{Terms: short, Amount: big.NewInt(10), Receiver: lender})
	expectErr(t, err, lien.ErrMinDurationNotMet)

	stack := f.create(1, lender)
	auction, err := f.engine.StopLiens(router, big.NewInt(1), 3600, *stack, liquidator)
	if err != nil {
		t.Fatalf("stop liens: %v", err)
	}
	if auction.EndAmount.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("auction must use the configured floor, got %s", auction.EndAmount)
	}
}

func TestRouterFileGrantsImplicitCreate(t *testing.T) {
	f := newFixture(t)
	newRouter := common.HexToAddress("0xa0000000000000000000000000000000000000ff")
	_, _, _, err := f.engine.CreateLien(newRouter, lien.CreateParams{Terms: testTerms(1), Amount: big.NewInt(10), Receiver: lender})
	expectErr(t, err, lien.ErrNotAuthorized)

	if err := f.engine.File(admin, lien.FileRequest{What: lien.FileRouter, Data: lien.EncodeAddressWord(newRouter)}); err != nil {
		t.Fatalf("file router: %v", err)
	}
	if _, _, _, err := f.engine.CreateLien(newRouter, lien.CreateParams{Terms: testTerms(1), Amount: big.NewInt(10), Receiver: lender}); err != nil {
		t.Fatalf("configured router should create liens: %v", err)
	}
}

func TestTransferLien(t *testing.T) {
	f := newFixture(t)
	pool := common.HexToAddress("0xf000000000000000000000000000000000000001")
	f.addVault(pool)
	stack := f.create(1, lender)
	id := stack.Point.LienID

	expectErr(t, f.engine.TransferLien(lender, lender, common.Address{}, id), lien.ErrInvalidRecipient)
	expectErr(t, f.engine.TransferLien(lender, lender, pool, id), lien.ErrPublicVaultRecipient)
	expectErr(t, f.engine.TransferLien(stranger, lender, stranger, id), lien.ErrNotLienOwner)
	expectErr(t, f.engine.TransferLien(borrower, borrower, stranger, id), lien.ErrNotLienOwner)

	if err := f.engine.SetPayee(lender, id, borrower); err != nil {
		t.Fatalf("set payee: %v", err)
	}
	if payee, _ := f.engine.GetPayee(id); payee != borrower {
		t.Fatalf("expected payee override, got %s", payee.Hex())
	}
	if err := f.engine.TransferLien(lender, lender, stranger, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if owner, _ := f.engine.OwnerOf(id); owner != stranger {
		t.Fatalf("unexpected owner %s", owner.Hex())
	}
	if payee, _ := f.engine.GetPayee(id); payee != stranger {
		t.Fatalf("transfer must clear the payee override, got %s", payee.Hex())
	}
	types := f.events.Types()
	if types[len(types)-1] != lien.EventTypeLienTransferred {
		t.Fatalf("unexpected events %v", types)
	}

	// Payments now reach the new owner.
	f.fund(borrower, 10)
	if _, err := f.engine.MakePayment(borrower, big.NewInt(1), *stack); err != nil {
		t.Fatalf("make payment: %v", err)
	}
	if got := f.balance(stranger); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected new owner to receive 10, got %s", got)
	}
}

func TestSetPayeeRules(t *testing.T) {
	f := newFixture(t)
	pool := common.HexToAddress("0xf000000000000000000000000000000000000001")
	f.addVault(pool)
	stack := f.create(1, lender)
	id := stack.Point.LienID

	expectErr(t, f.engine.SetPayee(stranger, id, stranger), lien.ErrNotAuthorized)
	expectErr(t, f.engine.SetPayee(lender, id, pool), lien.ErrPublicVaultRecipient)
	expectErr(t, f.engine.SetPayee(lender, common.HexToHash("0x01"), borrower), lien.ErrInvalidLienID)

	if err := f.engine.SetPayee(router, id, pool); err != nil {
		t.Fatalf("router may route payments to a vault: %v", err)
	}
	if payee, _ := f.engine.GetPayee(id); payee != pool {
		t.Fatalf("unexpected payee %s", payee.Hex())
	}
	evt := f.events.Events()[len(f.events.Events())-1]
	if evt.Type != lien.EventTypeLienPayeeChanged || evt.Attributes["payee"] != pool.Hex() {
		t.Fatalf("unexpected payee event %+v", evt)
	}
}

func refinancedTerms(rate *big.Int, duration uint64) lien.Terms {
	terms := testTerms(1)
	terms.Vault = stranger
	terms.Details.Rate = rate
	terms.Details.Duration = duration
	terms.Details.LiquidationInitialAsk = big.NewInt(200)
	terms.Details.MaxPotentialDebt = big.NewInt(10_000_000)
	return terms
}

func TestBuyoutLien(t *testing.T) {
	f := newFixture(t)
	stack := f.create(1, lender)
	f.now += 100
	f.fund(router, 100_000)

	cheaper := refinancedTerms(big.NewInt(50_000_000_000_000_000), loanDuration)
	ok, err := f.engine.IsValidRefinance(cheaper, stack)
	if err != nil || !ok {
		t.Fatalf("expected a valid refinance, ok=%v err=%v", ok, err)
	}
	owed, price, err := f.engine.GetBuyout(stack)
	if err != nil {
		t.Fatalf("get buyout: %v", err)
	}
	// The fee window is capped at 90% of the duration: 544320 seconds of
	// interest at 1 unit per second, charged at 10%.
	if owed.Cmp(big.NewInt(110)) != 0 || price.Cmp(big.NewInt(110+54_432)) != 0 {
		t.Fatalf("unexpected buyout quote owed=%s price=%s", owed, price)
	}

	newID, created, err := f.engine.BuyoutLien(router, lien.BuyoutParams{Stack: *stack, NewTerms: cheaper, Receiver: stranger})
	if err != nil {
		t.Fatalf("buyout: %v", err)
	}
	if newID == stack.Point.LienID || created.Point.Amount.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("unexpected replacement lien %+v", created.Point)
	}
	if created.Point.Last != uint64(f.now) || created.Point.End != uint64(f.now)+loanDuration {
		t.Fatalf("unexpected replacement point %+v", created.Point)
	}
	if got := f.balance(lender); got.Cmp(price) != 0 {
		t.Fatalf("expected old payee to receive %s, got %s", price, got)
	}
	if owner, _ := f.engine.OwnerOf(newID); owner != stranger {
		t.Fatalf("unexpected new owner %s", owner.Hex())
	}
	if _, err := f.engine.GetLien(stack.Point.LienID); err == nil {
		t.Fatalf("old lien must be retired")
	}
	hash, _ := lien.StackHash(created)
	if stored, _ := f.engine.GetCollateralState(big.NewInt(1)); stored != hash {
		t.Fatalf("collateral state must commit the replacement stack")
	}
	types := f.events.Types()
	want := []string{lien.EventTypeLienCreated, lien.EventTypeLienCreated, lien.EventTypeLienBuyout}
	if len(types) != len(want) {
		t.Fatalf("unexpected events %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("unexpected events %v", types)
		}
	}
}

func TestBuyoutLienRejections(t *testing.T) {
	f := newFixture(t)
	pool := common.HexToAddress("0xf000000000000000000000000000000000000001")
	vault := f.addVault(pool)
	stack := f.create(1, pool)
	f.now += 100
	f.fund(router, 100_000)

	same := refinancedTerms(new(big.Int).Set(testRate), loanDuration)
	ok, err := f.engine.IsValidRefinance(same, stack)
	if err != nil || ok {
		t.Fatalf("same rate and a 100s extension is not a refinance, ok=%v err=%v", ok, err)
	}
	_, _, err = f.engine.BuyoutLien(router, lien.BuyoutParams{Stack: *stack, NewTerms: same, Receiver: stranger})
	expectErr(t, err, lien.ErrInvalidRefinance)

	longer := refinancedTerms(new(big.Int).Set(testRate), loanDuration+6*24*60*60)
	if ok, _ := f.engine.IsValidRefinance(longer, stack); !ok {
		t.Fatalf("a six day extension at the same rate is a refinance")
	}

	cheaper := refinancedTerms(big.NewInt(50_000_000_000_000_000), loanDuration)
	_, _, err = f.engine.BuyoutLien(stranger, lien.BuyoutParams{Stack: *stack, NewTerms: cheaper, Receiver: stranger})
	expectErr(t, err, lien.ErrUnauthorized)

	otherToken := cheaper
	otherToken.Token = stranger
	_, _, err = f.engine.BuyoutLien(router, lien.BuyoutParams{Stack: *stack, NewTerms: otherToken, Receiver: stranger})
	expectErr(t, err, lien.ErrInvalidBuyoutDetails)

	small := refinancedTerms(big.NewInt(50_000_000_000_000_000), loanDuration)
	small.Details.MaxAmount = big.NewInt(50)
	_, _, err = f.engine.BuyoutLien(router, lien.BuyoutParams{Stack: *stack, NewTerms: small, Receiver: stranger})
	expectErr(t, err, lien.ErrInvalidBuyoutDetails)

	if _, _, err := f.engine.BuyoutLien(router, lien.BuyoutParams{Stack: *stack, NewTerms: cheaper, Receiver: stranger}); err != nil {
		t.Fatalf("buyout: %v", err)
	}
	if vault.buyout.Owed.Cmp(big.NewInt(110)) != 0 || vault.buyout.LienEnd != stack.Point.End {
		t.Fatalf("vault must be told about the buyout, got %+v", vault.buyout)
	}

	f.now = int64(stack.Point.End)
	_, _, err = f.engine.BuyoutLien(router, lien.BuyoutParams{Stack: *stack, NewTerms: cheaper, Receiver: stranger})
	expectErr(t, err, lien.ErrInvalidState)
}

func TestGetOwedAtMaturityIsMaxPotentialDebt(t *testing.T) {
	f := newFixture(t)
	stack := f.create(1, lender)
	atEnd, err := f.engine.GetOwedAt(stack, stack.Point.End)
	if err != nil {
		t.Fatalf("owed at end: %v", err)
	}
	maxDebt, err := f.engine.GetMaxPotentialDebt(stack)
	if err != nil {
		t.Fatalf("max potential debt: %v", err)
	}
	if atEnd.Cmp(maxDebt) != 0 {
		t.Fatalf("expected %s, got %s", atEnd, maxDebt)
	}
	remaining, _ := f.engine.GetRemainingInterest(stack)
	if want := new(big.Int).Sub(maxDebt, big.NewInt(10)); remaining.Cmp(want) != 0 {
		t.Fatalf("expected remaining interest %s, got %s", want, remaining)
	}
	if id, err := f.engine.ValidateLien(testTerms(1)); err != nil || id != stack.Point.LienID {
		t.Fatalf("validate lien: id=%s err=%v", id.Hex(), err)
	}
}
