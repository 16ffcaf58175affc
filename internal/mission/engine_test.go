package mission

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/internal/auth"
	"github.com/humanadsai/humanads/internal/common"
	"github.com/humanadsai/humanads/internal/ledger"
	"github.com/humanadsai/humanads/internal/trust"
	"github.com/humanadsai/humanads/internal/verify"
	"github.com/humanadsai/humanads/misc"
)

type fixture struct {
	db  *bolt.DB
	cfg *config.Config
	eng *Engine

	agent    *auth.User
	operator *auth.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.FillDefaults()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range cfg.AllBuckets() {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	a := auth.New(db, cfg)
	f := &fixture{
		db:  db,
		cfg: cfg,
		eng: NewEngine(db, cfg, a, verify.SimulatedStrategy{}),
		agent: &auth.User{
			Name: "agent", Type: auth.TypeAgent,
		},
		operator: &auth.User{
			Name: "operator", Type: auth.TypeOperator,
			Wallets: map[string]string{"evm": "0x00000000000000000000000000000000000b0002"},
		},
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		if _, err := a.CreateUserTx(tx, f.agent); err != nil {
			return err
		}
		_, err := a.CreateUserTx(tx, f.operator)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) createDeal(t *testing.T, rewardCents, feePercent int64, model string) string {
	t.Helper()
	d := &common.Deal{
		AdvertiserId: f.agent.ID,
		RewardCents:  rewardCents,
		FeePercent:   feePercent,
		PaymentModel: model,
		Status:       common.DealActive,
	}
	if err := f.db.Update(func(tx *bolt.Tx) (err error) {
		if d.Id, err = misc.GetNextIndex(tx, f.cfg.Bucket.Deal); err != nil {
			return
		}
		return misc.PutTxJson(tx, f.cfg.Bucket.Deal, d.Id, d)
	}); err != nil {
		t.Fatal(err)
	}
	return d.Id
}

func (f *fixture) apply(t *testing.T, dealId string) string {
	return f.applyAs(t, dealId, f.operator.ID)
}

func (f *fixture) applyAs(t *testing.T, dealId, operatorId string) string {
	t.Helper()
	app := &common.Application{
		DealId:     dealId,
		OperatorId: operatorId,
		Status:     common.ApplicationApplied,
	}
	if err := f.db.Update(func(tx *bolt.Tx) (err error) {
		if app.Id, err = misc.GetNextIndex(tx, f.cfg.Bucket.Application); err != nil {
			return
		}
		if err = misc.PutTxJson(tx, f.cfg.Bucket.Application, app.Id, app); err != nil {
			return
		}
		return misc.PutBucketBytes(tx, f.cfg.Bucket.Application,
			common.ApplicationKey(dealId, operatorId), []byte(app.Id))
	}); err != nil {
		t.Fatal(err)
	}
	return app.Id
}

// toVerified walks an application through select, submit, verify.
func (f *fixture) toVerified(t *testing.T, appId string) {
	t.Helper()
	if _, err := f.eng.Select(f.agent, appId); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Submit(f.operator, appId); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.VerifyWork(f.agent, appId); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) balance(t *testing.T, ownerId string) int64 {
	t.Helper()
	var cents int64
	f.db.View(func(tx *bolt.Tx) error {
		cents = ledger.GetBalance(tx, f.cfg, ownerId).AvailableCents
		return nil
	})
	return cents
}

func (f *fixture) trustRecord(t *testing.T) *trust.Record {
	t.Helper()
	var rec *trust.Record
	f.db.View(func(tx *bolt.Tx) error {
		rec = trust.Get(tx, f.cfg, f.agent.ID)
		return nil
	})
	return rec
}

func wantCode(t *testing.T, err error, code string) *Error {
	t.Helper()
	me, ok := err.(*Error)
	if !ok {
		t.Fatalf("got %v, want *Error with code %q", err, code)
	}
	if me.Code != code {
		t.Fatalf("code = %q, want %q", me.Code, code)
	}
	return me
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	start := time.Now().Unix()
	ar, err := f.eng.Approve(f.agent, appId, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if ar.Status != common.MissionApproved {
		t.Fatalf("status = %q", ar.Status)
	}
	if ar.FeeAmountCents != 100 {
		t.Fatalf("fee = %d, want 100", ar.FeeAmountCents)
	}
	wantDeadline := start + f.cfg.DefaultPayoutHours*3600
	if ar.PayoutDeadlineAt < wantDeadline || ar.PayoutDeadlineAt > wantDeadline+5 {
		t.Fatalf("deadline = %d, want about %d", ar.PayoutDeadlineAt, wantDeadline)
	}
	if ar.PayoutMode != "ledger" {
		t.Fatalf("payout mode = %q", ar.PayoutMode)
	}

	ur, err := f.eng.UnlockAddress(f.agent, appId, "0xsim_fee_1", "sepolia", "USDC", "")
	if err != nil {
		t.Fatal(err)
	}
	if ur.Status != common.MissionAddressUnlocked {
		t.Fatalf("status = %q", ur.Status)
	}
	if ur.WalletAddress != f.operator.Wallets["evm"] {
		t.Fatalf("wallet = %q", ur.WalletAddress)
	}
	if ur.PayoutAmountCents != 900 {
		t.Fatalf("payout = %d, want 900", ur.PayoutAmountCents)
	}
	if !ur.IsSimulated {
		t.Fatal("simulated flag must be set in ledger mode")
	}
	if got := f.balance(t, PlatformOwner); got != 100 {
		t.Fatalf("platform balance = %d, want 100", got)
	}

	cr, err := f.eng.ConfirmPayout(f.agent, appId, "0xsim_payout_1", "sepolia", "USDC", "")
	if err != nil {
		t.Fatal(err)
	}
	if cr.Status != common.MissionPaidComplete {
		t.Fatalf("status = %q", cr.Status)
	}
	if cr.TotalAmountCents != 1000 {
		t.Fatalf("total = %d, want 1000", cr.TotalAmountCents)
	}
	if got := f.balance(t, f.operator.ID); got != 900 {
		t.Fatalf("operator balance = %d, want 900", got)
	}

	rec := f.trustRecord(t)
	if rec.PaidCount != 1 || rec.OverdueCount != 0 {
		t.Fatalf("trust = %+v", rec)
	}
}

// fee + payout must always equal the reward, with the fee floor-divided
func TestFeeSplit(t *testing.T) {
	tests := []struct {
		reward, pct, fee, payout int64
	}{
		{1000, 10, 100, 900},
		{5000, 15, 750, 4250},
		{999, 10, 99, 900},
		{1, 10, 0, 1},
		{100, 0, 0, 100},
	}

	for _, tt := range tests {
		f := newFixture(t)
		appId := f.apply(t, f.createDeal(t, tt.reward, tt.pct, common.ModelAdvanceFee))
		f.toVerified(t, appId)

		ar, err := f.eng.Approve(f.agent, appId, 0, "")
		if err != nil {
			t.Fatal(err)
		}
		if ar.FeeAmountCents != tt.fee {
			t.Errorf("%d at %d%%: fee = %d, want %d", tt.reward, tt.pct, ar.FeeAmountCents, tt.fee)
		}

		m, err := f.eng.Mission(appId)
		if err != nil {
			t.Fatal(err)
		}
		if m.PayoutCents != tt.payout {
			t.Errorf("%d at %d%%: payout = %d, want %d", tt.reward, tt.pct, m.PayoutCents, tt.payout)
		}
		if m.FeeCents+m.PayoutCents != m.RewardCents {
			t.Errorf("%d at %d%%: split loses money", tt.reward, tt.pct)
		}
	}
}

func TestApproveCapsPayoutWindow(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	start := time.Now().Unix()
	ar, err := f.eng.Approve(f.agent, appId, 10000, "")
	if err != nil {
		t.Fatal(err)
	}
	capAt := start + f.cfg.MaxPayoutHours*3600
	if ar.PayoutDeadlineAt < capAt || ar.PayoutDeadlineAt > capAt+5 {
		t.Fatalf("deadline = %d, want capped about %d", ar.PayoutDeadlineAt, capAt)
	}
}

// A deal stops minting missions once its participant cap is reached.
func TestSelectRespectsMaxParticipants(t *testing.T) {
	f := newFixture(t)

	d := &common.Deal{
		AdvertiserId:    f.agent.ID,
		RewardCents:     1000,
		FeePercent:      10,
		PaymentModel:    common.ModelAdvanceFee,
		MaxParticipants: 1,
		Status:          common.DealActive,
	}
	op2 := &auth.User{
		Name: "operator2", Type: auth.TypeOperator,
		Wallets: map[string]string{"evm": "0x00000000000000000000000000000000000b0003"},
	}
	if err := f.db.Update(func(tx *bolt.Tx) (err error) {
		if d.Id, err = misc.GetNextIndex(tx, f.cfg.Bucket.Deal); err != nil {
			return
		}
		if err = misc.PutTxJson(tx, f.cfg.Bucket.Deal, d.Id, d); err != nil {
			return
		}
		_, err = f.eng.auth.CreateUserTx(tx, op2)
		return
	}); err != nil {
		t.Fatal(err)
	}

	app1 := f.apply(t, d.Id)
	app2 := f.applyAs(t, d.Id, op2.ID)

	if _, err := f.eng.Select(f.agent, app1); err != nil {
		t.Fatal(err)
	}
	_, err := f.eng.Select(f.agent, app2)
	wantCode(t, err, CodeDealFull)
}

func TestApproveWrongStatus(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	if _, err := f.eng.Select(f.agent, appId); err != nil {
		t.Fatal(err)
	}

	// still accepted, never submitted or verified
	_, err := f.eng.Approve(f.agent, appId, 0, "")
	me := wantCode(t, err, CodeWrongStatus)
	if me.CurrentStatus != common.MissionAccepted {
		t.Fatalf("current status = %q", me.CurrentStatus)
	}

	// the failed approve must not have mutated the mission
	m, _ := f.eng.Mission(appId)
	if m.Status != common.MissionAccepted || m.FeePaymentId != "" || m.PayoutDeadlineAt != 0 {
		t.Fatalf("mission mutated by failed approve: %+v", m)
	}
}

func TestApproveForeignDeal(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	_, err := f.eng.Approve(f.operator, appId, 0, "")
	wantCode(t, err, CodeForbidden)
}

func TestApproveEscrowDealRefused(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelEscrow))
	f.toVerified(t, appId)

	_, err := f.eng.Approve(f.agent, appId, 0, "")
	wantCode(t, err, CodeWrongPaymentModel)
}

func TestApproveRequiresOperatorWallet(t *testing.T) {
	f := newFixture(t)
	f.operator.Wallets = nil
	f.db.Update(func(tx *bolt.Tx) error {
		return misc.PutTxJson(tx, f.cfg.Bucket.User, f.operator.ID, f.operator)
	})

	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	_, err := f.eng.Approve(f.agent, appId, 0, "")
	wantCode(t, err, CodeNoWallet)
}

func TestApproveSuspendedAgent(t *testing.T) {
	f := newFixture(t)
	f.db.Update(func(tx *bolt.Tx) error {
		rec := trust.Get(tx, f.cfg, f.agent.ID)
		rec.SuspendedForOverdue = true
		return trust.Save(tx, f.cfg, rec)
	})

	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	_, err := f.eng.Approve(f.agent, appId, 0, "")
	wantCode(t, err, CodeAgentSuspended)
}

func TestUnlockValidation(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)
	if _, err := f.eng.Approve(f.agent, appId, 0, ""); err != nil {
		t.Fatal(err)
	}

	_, err := f.eng.UnlockAddress(f.agent, appId, "0xsim_1", "dogechain", "USDC", "")
	wantCode(t, err, CodeUnsupportedChain)

	_, err = f.eng.UnlockAddress(f.agent, appId, "0xsim_1", "base", "USDT", "")
	wantCode(t, err, CodeUnsupportedToken)

	_, err = f.eng.UnlockAddress(f.operator, appId, "0xsim_1", "sepolia", "USDC", "")
	wantCode(t, err, CodeForbidden)
}

// A consumed hash can never settle a second payment, in any mode.
func TestReplayProtection(t *testing.T) {
	f := newFixture(t)

	settle := func(appId, feeHash, payoutHash string) error {
		if _, err := f.eng.Approve(f.agent, appId, 0, ""); err != nil {
			return err
		}
		if _, err := f.eng.UnlockAddress(f.agent, appId, feeHash, "sepolia", "USDC", ""); err != nil {
			return err
		}
		_, err := f.eng.ConfirmPayout(f.agent, appId, payoutHash, "sepolia", "USDC", "")
		return err
	}

	app1 := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, app1)
	if err := settle(app1, "0xsim_fee", "0xsim_payout"); err != nil {
		t.Fatal(err)
	}

	app2 := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, app2)

	// reusing the first mission's fee hash must be rejected
	if _, err := f.eng.Approve(f.agent, app2, 0, ""); err != nil {
		t.Fatal(err)
	}
	_, err := f.eng.UnlockAddress(f.agent, app2, "0xsim_fee", "sepolia", "USDC", "")
	wantCode(t, err, CodeTxReplayed)

	// the payout hash is just as consumed as the fee hash
	_, err = f.eng.UnlockAddress(f.agent, app2, "0xsim_payout", "sepolia", "USDC", "")
	wantCode(t, err, CodeTxReplayed)

	// a fresh hash settles fine; the same hash on a different chain is a
	// different transaction
	if _, err = f.eng.UnlockAddress(f.agent, app2, "0xsim_fee_2", "sepolia", "USDC", ""); err != nil {
		t.Fatal(err)
	}
	if _, err = f.eng.ConfirmPayout(f.agent, app2, "0xsim_fee", "base-sepolia", "USDC", ""); err != nil {
		t.Fatal(err)
	}
}

func TestIdempotentApprove(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	first, err := f.eng.Approve(f.agent, appId, 0, "idem-1")
	if err != nil {
		t.Fatal(err)
	}

	// the retry replays the stored result instead of hitting the
	// wrong-status conflict
	second, err := f.eng.Approve(f.agent, appId, 0, "idem-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.PayoutDeadlineAt != first.PayoutDeadlineAt || second.FeeAmountCents != first.FeeAmountCents {
		t.Fatalf("replayed result differs: %+v vs %+v", first, second)
	}

	// a different key is a fresh call and must conflict
	_, err = f.eng.Approve(f.agent, appId, 0, "idem-2")
	wantCode(t, err, CodeWrongStatus)
}

// Idempotency keys are scoped per caller and operation: a foreign caller
// reusing a key must not replay the original caller's stored response, and
// the same key on a different operation is a fresh call.
func TestIdempotencyKeyScope(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	if _, err := f.eng.Approve(f.agent, appId, 0, "shared-key"); err != nil {
		t.Fatal(err)
	}

	// the operator does not own the deal; the agent's stored approve
	// response must not leak through the shared key
	_, err := f.eng.Approve(f.operator, appId, 0, "shared-key")
	wantCode(t, err, CodeForbidden)

	// reusing the approve key for unlock must run the real unlock, not
	// unmarshal the approve response
	ur, err := f.eng.UnlockAddress(f.agent, appId, "0xsim_fee", "sepolia", "USDC", "shared-key")
	if err != nil {
		t.Fatal(err)
	}
	if ur.Status != common.MissionAddressUnlocked {
		t.Fatalf("status = %q", ur.Status)
	}
}

func TestOverduePayoutFeedsTrust(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	f.toVerified(t, appId)

	if _, err := f.eng.Approve(f.agent, appId, 0, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.UnlockAddress(f.agent, appId, "0xsim_fee", "sepolia", "USDC", ""); err != nil {
		t.Fatal(err)
	}

	// push the deadline into the past before the payout lands
	f.db.Update(func(tx *bolt.Tx) error {
		_, m := f.eng.getMissionByAppTx(tx, appId)
		m.PayoutDeadlineAt = time.Now().Unix() - 3600
		return f.eng.saveMissionTx(tx, m)
	})

	if _, err := f.eng.ConfirmPayout(f.agent, appId, "0xsim_payout", "sepolia", "USDC", ""); err != nil {
		t.Fatal(err)
	}

	rec := f.trustRecord(t)
	if rec.PaidCount != 0 || rec.OverdueCount != 1 {
		t.Fatalf("trust = %+v, want one overdue payout and no on-time ones", rec)
	}
	if rec.LastOverdueAt == 0 {
		t.Fatal("LastOverdueAt not set")
	}
}

func TestRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	appId := f.apply(t, f.createDeal(t, 1000, 10, common.ModelAdvanceFee))
	if _, err := f.eng.Select(f.agent, appId); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Submit(f.operator, appId); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Reject(f.agent, appId); err != nil {
		t.Fatal(err)
	}

	_, err := f.eng.Approve(f.agent, appId, 0, "")
	me := wantCode(t, err, CodeWrongStatus)
	if me.CurrentStatus != common.MissionRejected {
		t.Fatalf("current status = %q", me.CurrentStatus)
	}

	_, err = f.eng.Submit(f.operator, appId)
	wantCode(t, err, CodeWrongStatus)
}

func TestOverdueFlag(t *testing.T) {
	now := time.Now().Unix()
	m := &common.Mission{Status: common.MissionApproved, PayoutDeadlineAt: now - 1}
	if !m.IsOverdue(now) {
		t.Fatal("past deadline while approved must be overdue")
	}

	m.Status = common.MissionPaidComplete
	if m.IsOverdue(now) {
		t.Fatal("paid_complete is never overdue")
	}

	m = &common.Mission{Status: common.MissionAccepted}
	if m.IsOverdue(now) {
		t.Fatal("no deadline, no overdue")
	}
}
