package mission

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/humanadsai/humanads/internal/auth"
	"github.com/humanadsai/humanads/internal/chain"
	"github.com/humanadsai/humanads/internal/common"
	"github.com/humanadsai/humanads/internal/ledger"
	"github.com/humanadsai/humanads/internal/trust"
	"github.com/humanadsai/humanads/internal/verify"
)

// PlatformOwner is the ledger owner id for the platform treasury.
const PlatformOwner = "platform"

// scopedIdemKey namespaces a client idempotency key per operation and
// caller, so one caller can never replay another's stored response and the
// same key on a different operation is a fresh call.
func scopedIdemKey(op, callerID, key string) string {
	if key == "" {
		return ""
	}
	return op + "|" + callerID + "|" + key
}

type ApproveResponse struct {
	MissionId        string              `json:"mission_id"`
	Status           string              `json:"status"`
	PayoutDeadlineAt int64               `json:"payout_deadline_at"`
	FeeAmountCents   int64               `json:"fee_amount_cents"`
	FeePercentage    int64               `json:"fee_percentage"`
	FeeVaultAddrs    map[string]string   `json:"fee_vault_addresses"`
	SupportedChains  []string            `json:"supported_chains"`
	SupportedTokens  map[string][]string `json:"supported_tokens"`
	PayoutMode       string              `json:"payout_mode"`
}

type UnlockResponse struct {
	MissionId         string `json:"mission_id"`
	Status            string `json:"status"`
	WalletAddress     string `json:"wallet_address"`
	PayoutAmountCents int64  `json:"payout_amount_cents"`
	PayoutDeadlineAt  int64  `json:"payout_deadline_at"`
	FeeTxVerified     bool   `json:"fee_tx_verified"`
	ExplorerURL       string `json:"explorer_url,omitempty"`
	PayoutMode        string `json:"payout_mode"`
	IsSimulated       bool   `json:"is_simulated"`
}

type ConfirmResponse struct {
	MissionId        string `json:"mission_id"`
	Status           string `json:"status"`
	PaidCompleteAt   int64  `json:"paid_complete_at"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	PayoutMode       string `json:"payout_mode"`
}

type TrustResponse struct {
	PaidCount           int64   `json:"paid_count"`
	OverdueCount        int64   `json:"overdue_count"`
	AvgPayTimeSeconds   int64   `json:"avg_pay_time_seconds"`
	OnTimeRate          float64 `json:"on_time_rate"`
	TrustLevel          string  `json:"trust_level"`
	SuspendedForOverdue bool    `json:"is_suspended_for_overdue"`
}

// Approve moves a verified mission into approved: computes the AUF fee and
// payout split, sets the payout deadline, and writes the pending fee
// payment — all in one commit. Returns where and how the agent must pay.
func (e *Engine) Approve(caller *auth.User, appId string, hours int64, idemKey string) (resp *ApproveResponse, err error) {
	idemKey = scopedIdemKey("approve", caller.ID, idemKey)
	err = e.db.Update(func(tx *bolt.Tx) error {
		if raw, ok := ledger.SeenResult(tx, e.cfg, idemKey); ok {
			return json.Unmarshal(raw, &resp)
		}

		_, m := e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}

		deal := e.getDealTx(tx, m.DealId)
		if deal == nil {
			return errNotFound("deal not found")
		}
		if deal.AdvertiserId != caller.ID && !caller.IsAdmin() {
			return errForbidden("caller does not own this deal")
		}
		if deal.PaymentModel != common.ModelAdvanceFee {
			return errValidation(CodeWrongPaymentModel, "deal settles through the escrow contract, not the advance-fee flow")
		}
		if m.Status != common.MissionVerified {
			return errConflict(m.Status, "mission is not ready for approval")
		}

		op := e.auth.GetUserTx(tx, m.OperatorId)
		if op == nil || !op.HasAnyWallet() {
			return errValidation(CodeNoWallet, "operator has no payout wallet configured")
		}

		rec := trust.Get(tx, e.cfg, deal.AdvertiserId)
		if rec.SuspendedForOverdue {
			return &Error{Code: CodeAgentSuspended, Msg: "agent is suspended for overdue payouts", HTTP: 403}
		}

		if hours <= 0 {
			hours = e.cfg.DefaultPayoutHours
		}
		if hours > e.cfg.MaxPayoutHours {
			hours = e.cfg.MaxPayoutHours
		}

		now := time.Now().Unix()
		deadline := now + hours*3600

		m.FeeCents = m.RewardCents * m.FeePercent / 100
		m.PayoutCents = m.RewardCents - m.FeeCents

		fee := &common.Payment{
			Id:          uuid.New().String(),
			MissionId:   m.Id,
			Type:        common.PaymentFee,
			AmountCents: m.FeeCents,
			Status:      common.PaymentPending,
			DeadlineAt:  deadline,
			CreatedAt:   now,
		}

		m.Status = common.MissionApproved
		m.ApprovedAt = now
		m.PayoutDeadlineAt = deadline
		m.FeePaymentId = fee.Id

		if err := e.savePaymentTx(tx, fee); err != nil {
			return err
		}
		if err := e.saveMissionTx(tx, m); err != nil {
			return err
		}

		resp = &ApproveResponse{
			MissionId:        m.Id,
			Status:           m.Status,
			PayoutDeadlineAt: deadline,
			FeeAmountCents:   m.FeeCents,
			FeePercentage:    m.FeePercent,
			FeeVaultAddrs:    e.cfg.FeeVault,
			SupportedChains:  chain.Names(),
			SupportedTokens:  chain.Matrix(),
			PayoutMode:       e.PayoutMode(),
		}
		return ledger.StoreResult(tx, e.cfg, idemKey, resp)
	})
	return
}

// unlockCheck is everything UnlockAddress validates before it is allowed to
// touch the network.
type unlockCheck struct {
	m      *common.Mission
	wallet string
	vault  string
	seen   json.RawMessage
}

// UnlockAddress consumes the claimed fee payment: verifies it per the
// active strategy, confirms the fee payment, reveals the operator's payout
// wallet, and opens the pending payout payment. The replay check runs
// before any network call and again inside the committing transaction.
func (e *Engine) UnlockAddress(caller *auth.User, appId, txHash, chainName, token, idemKey string) (*UnlockResponse, error) {
	idemKey = scopedIdemKey("unlock", caller.ID, idemKey)
	chk, err := e.unlockPrecheck(caller, appId, txHash, chainName, token, idemKey)
	if err != nil {
		return nil, err
	}
	if chk.seen != nil {
		var resp *UnlockResponse
		return resp, json.Unmarshal(chk.seen, &resp)
	}

	result, verr := e.strategy.Verify(txHash, verify.Expectation{
		Chain:       chainName,
		Token:       token,
		Recipient:   chk.vault,
		AmountCents: chk.m.FeeCents,
	})
	if verr != nil {
		return nil, errRPC()
	}
	if !result.Verified {
		return nil, errVerify(result.Code)
	}

	var resp *UnlockResponse
	err = e.db.Update(func(tx *bolt.Tx) error {
		_, m := e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}
		if m.Status != common.MissionApproved {
			return errConflict(m.Status, "mission is not awaiting the fee payment")
		}
		if e.txConsumedTx(tx, chainName, txHash) {
			return errReplay()
		}

		now := time.Now().Unix()

		fee := e.getPaymentTx(tx, m.FeePaymentId)
		if fee == nil {
			return errNotFound("fee payment not found")
		}
		fee.Chain = chainName
		fee.Token = token
		fee.TxHash = txHash
		fee.Recipient = chk.vault
		fee.Status = common.PaymentConfirmed
		fee.ConfirmedAt = now
		if err := e.savePaymentTx(tx, fee); err != nil {
			return err
		}
		if err := e.consumeTxTx(tx, chainName, txHash, fee.Id); err != nil {
			return err
		}

		payout := &common.Payment{
			Id:          uuid.New().String(),
			MissionId:   m.Id,
			Type:        common.PaymentPayout,
			AmountCents: m.PayoutCents,
			Recipient:   chk.wallet,
			Status:      common.PaymentPending,
			DeadlineAt:  m.PayoutDeadlineAt,
			CreatedAt:   now,
		}
		if err := e.savePaymentTx(tx, payout); err != nil {
			return err
		}

		m.Status = common.MissionAddressUnlocked
		m.AddressUnlockedAt = now
		m.PayoutPaymentId = payout.Id
		if err := e.saveMissionTx(tx, m); err != nil {
			return err
		}

		// In ledger mode the fee moves the platform's internal balance; in
		// on-chain mode the value sits in the vault wallet and the entry is
		// audit-only.
		balAfter := ledger.GetBalance(tx, e.cfg, PlatformOwner).AvailableCents
		if e.strategy.Simulated() {
			var err error
			if balAfter, err = ledger.Credit(tx, e.cfg, PlatformOwner, m.FeeCents); err != nil {
				return err
			}
		}
		if err := ledger.Append(tx, e.cfg, &ledger.Entry{
			OwnerId:           PlatformOwner,
			Type:              ledger.EntryFeeReceived,
			AmountCents:       m.FeeCents,
			BalanceAfterCents: balAfter,
			RefType:           "payment",
			RefId:             fee.Id,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		resp = &UnlockResponse{
			MissionId:         m.Id,
			Status:            m.Status,
			WalletAddress:     chk.wallet,
			PayoutAmountCents: m.PayoutCents,
			PayoutDeadlineAt:  m.PayoutDeadlineAt,
			FeeTxVerified:     result.Code != verify.CodeRPCSkipped,
			ExplorerURL:       chain.ExplorerURL(chainName, txHash),
			PayoutMode:        e.PayoutMode(),
			IsSimulated:       e.strategy.Simulated(),
		}
		return ledger.StoreResult(tx, e.cfg, idemKey, resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) unlockPrecheck(caller *auth.User, appId, txHash, chainName, token, idemKey string) (*unlockCheck, error) {
	chk := &unlockCheck{}
	err := e.db.View(func(tx *bolt.Tx) error {
		if raw, ok := ledger.SeenResult(tx, e.cfg, idemKey); ok {
			chk.seen = raw
			return nil
		}

		_, m := e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}
		if m.AdvertiserId != caller.ID && !caller.IsAdmin() {
			return errForbidden("caller does not own this deal")
		}
		if m.Status != common.MissionApproved {
			return errConflict(m.Status, "mission is not awaiting the fee payment")
		}
		if !chain.Supported(chainName, token) {
			if chain.Get(chainName) == nil {
				return errValidation(CodeUnsupportedChain, "chain is not supported")
			}
			return errValidation(CodeUnsupportedToken, "token is not supported on this chain")
		}

		op := e.auth.GetUserTx(tx, m.OperatorId)
		wallet := op.WalletFor(chain.Family(chainName))
		if wallet == "" {
			return errValidation(CodeNoWallet, "operator has no wallet for this chain family")
		}

		vault := e.cfg.FeeVault[chainName]
		if vault == "" && !e.strategy.Simulated() {
			return errValidation(CodeUnsupportedChain, "no fee vault configured for this chain")
		}

		if e.txConsumedTx(tx, chainName, txHash) {
			return errReplay()
		}

		chk.m = m
		chk.wallet = wallet
		chk.vault = vault
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chk, nil
}

// ConfirmPayout consumes the claimed payout payment and completes the
// mission: verifies the transfer to the operator's wallet, computes pay
// time and overdue, and feeds the agent's trust record — all in the same
// commit as the status change.
func (e *Engine) ConfirmPayout(caller *auth.User, appId, txHash, chainName, token, idemKey string) (*ConfirmResponse, error) {
	idemKey = scopedIdemKey("confirm", caller.ID, idemKey)
	chk, err := e.confirmPrecheck(caller, appId, txHash, chainName, token, idemKey)
	if err != nil {
		return nil, err
	}
	if chk.seen != nil {
		var resp *ConfirmResponse
		return resp, json.Unmarshal(chk.seen, &resp)
	}

	result, verr := e.strategy.Verify(txHash, verify.Expectation{
		Chain:       chainName,
		Token:       token,
		Recipient:   chk.wallet,
		AmountCents: chk.m.PayoutCents,
	})
	if verr != nil {
		return nil, errRPC()
	}
	if !result.Verified {
		return nil, errVerify(result.Code)
	}

	var resp *ConfirmResponse
	err = e.db.Update(func(tx *bolt.Tx) error {
		_, m := e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}
		if m.Status != common.MissionAddressUnlocked {
			return errConflict(m.Status, "mission is not awaiting the payout")
		}
		if e.txConsumedTx(tx, chainName, txHash) {
			return errReplay()
		}

		now := time.Now().Unix()

		payout := e.getPaymentTx(tx, m.PayoutPaymentId)
		if payout == nil {
			return errNotFound("payout payment not found")
		}
		payout.Chain = chainName
		payout.Token = token
		payout.TxHash = txHash
		payout.Status = common.PaymentConfirmed
		payout.ConfirmedAt = now
		if err := e.savePaymentTx(tx, payout); err != nil {
			return err
		}
		if err := e.consumeTxTx(tx, chainName, txHash, payout.Id); err != nil {
			return err
		}

		m.Status = common.MissionPaidComplete
		m.PaidCompleteAt = now
		if err := e.saveMissionTx(tx, m); err != nil {
			return err
		}

		// Trust state rides the completion commit; it is never a separate
		// write that could diverge from the mission record.
		overdue := now > m.PayoutDeadlineAt
		rec := trust.Get(tx, e.cfg, m.AdvertiserId)
		rec.Apply(now-m.ApprovedAt, overdue, now)
		if err := trust.Save(tx, e.cfg, rec); err != nil {
			return err
		}

		balAfter := ledger.GetBalance(tx, e.cfg, m.OperatorId).AvailableCents
		if e.strategy.Simulated() {
			var err error
			if balAfter, err = ledger.Credit(tx, e.cfg, m.OperatorId, m.PayoutCents); err != nil {
				return err
			}
		}
		if err := ledger.Append(tx, e.cfg, &ledger.Entry{
			OwnerId:           m.OperatorId,
			Type:              ledger.EntryPayoutReceived,
			AmountCents:       m.PayoutCents,
			BalanceAfterCents: balAfter,
			RefType:           "payment",
			RefId:             payout.Id,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		resp = &ConfirmResponse{
			MissionId:        m.Id,
			Status:           m.Status,
			PaidCompleteAt:   now,
			TotalAmountCents: m.RewardCents,
			PayoutMode:       e.PayoutMode(),
		}
		return ledger.StoreResult(tx, e.cfg, idemKey, resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) confirmPrecheck(caller *auth.User, appId, txHash, chainName, token, idemKey string) (*unlockCheck, error) {
	chk := &unlockCheck{}
	err := e.db.View(func(tx *bolt.Tx) error {
		if raw, ok := ledger.SeenResult(tx, e.cfg, idemKey); ok {
			chk.seen = raw
			return nil
		}

		_, m := e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}
		if m.AdvertiserId != caller.ID && !caller.IsAdmin() {
			return errForbidden("caller does not own this deal")
		}
		if m.Status != common.MissionAddressUnlocked {
			return errConflict(m.Status, "mission is not awaiting the payout")
		}
		if !chain.Supported(chainName, token) {
			if chain.Get(chainName) == nil {
				return errValidation(CodeUnsupportedChain, "chain is not supported")
			}
			return errValidation(CodeUnsupportedToken, "token is not supported on this chain")
		}

		payout := e.getPaymentTx(tx, m.PayoutPaymentId)
		if payout == nil {
			return errNotFound("payout payment not found")
		}

		if e.txConsumedTx(tx, chainName, txHash) {
			return errReplay()
		}

		chk.m = m
		chk.wallet = payout.Recipient
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chk, nil
}

// TrustScore reports an agent's payment reliability.
func (e *Engine) TrustScore(agentId string) (*TrustResponse, error) {
	var rec *trust.Record
	e.db.View(func(tx *bolt.Tx) error {
		rec = trust.Get(tx, e.cfg, agentId)
		return nil
	})

	return &TrustResponse{
		PaidCount:           rec.PaidCount,
		OverdueCount:        rec.OverdueCount,
		AvgPayTimeSeconds:   rec.AvgPaySeconds(),
		OnTimeRate:          rec.OnTimeRate(),
		TrustLevel:          trust.Level(rec),
		SuspendedForOverdue: rec.SuspendedForOverdue,
	}, nil
}

// SetSuspended flips the policy flag that blocks an agent's future
// approvals. Admin only; the trust level calculation itself stays pure.
func (e *Engine) SetSuspended(caller *auth.User, agentId string, suspended bool) error {
	if !caller.IsAdmin() {
		return errForbidden("admin only")
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		rec := trust.Get(tx, e.cfg, agentId)
		rec.SuspendedForOverdue = suspended
		return trust.Save(tx, e.cfg, rec)
	})
}
