// Package escrow implements the custody contract for escrow-model deals.
//
// The contract owns its own state and access control, independent of the
// off-chain mission records: for the escrow payment model the contract's
// per-deal deposited/released totals are authoritative. All mutations are
// serialized (a single mutex stands in for the execution environment's
// serialized-transaction guarantee), so every method is atomic by
// construction.
package escrow

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrZeroAddress             = errors.New("ZeroAddress")
	ErrFeeTooHigh              = errors.New("FeeTooHigh")
	ErrDealNotActive           = errors.New("DealNotActive")
	ErrDealNotExpired          = errors.New("DealNotExpired")
	ErrInsufficientDealBalance = errors.New("InsufficientDealBalance")
	ErrNothingToWithdraw       = errors.New("NothingToWithdraw")

	ErrNotAdmin       = errors.New("NotAdmin")
	ErrNotArbiter     = errors.New("NotArbiter")
	ErrPaused         = errors.New("Paused")
	ErrInvalidAmount  = errors.New("InvalidAmount")
	ErrLengthMismatch = errors.New("LengthMismatch")
)

// MaxFeeBps caps the platform fee at 10%.
const MaxFeeBps = 1000

const (
	dealActive    = "active"
	dealRefunded  = "refunded"
	dealCompleted = "completed"
)

// Hold tracks one deal's custody totals. Released never exceeds Deposited.
type Hold struct {
	Depositor       string `json:"depositor"`
	DepositedUnits  int64  `json:"depositedUnits"`
	ReleasedUnits   int64  `json:"releasedUnits"`
	MaxParticipants int64  `json:"maxParticipants"`
	ExpiresAt       int64  `json:"expiresAt"`
	Status          string `json:"status"`
}

func (h *Hold) Remaining() int64 {
	return h.DepositedUnits - h.ReleasedUnits
}

// TransferFn performs the external token transfer backing a withdrawal.
type TransferFn func(token, to string, amount int64) error

// Contract is the escrow custody component. Only the arbiter or admin may
// release or refund funds; only the admin may change the fee, the fee vault,
// or the pause flag.
type Contract struct {
	mu sync.Mutex

	token    string
	admin    string
	arbiter  string
	feeVault string
	feeBps   int64
	paused   bool

	deals    map[string]*Hold
	balances map[string]int64 // payee -> withdrawable units, across deals

	transfer TransferFn
	now      func() int64
}

// New validates configuration and builds the contract. Zero addresses and a
// fee above the cap are rejected at initialization.
func New(token, admin, arbiter, feeVault string, feeBps int64, transfer TransferFn) (*Contract, error) {
	for _, a := range []string{token, admin, arbiter, feeVault} {
		if isZeroAddr(a) {
			return nil, ErrZeroAddress
		}
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return nil, ErrFeeTooHigh
	}

	return &Contract{
		token:    token,
		admin:    admin,
		arbiter:  arbiter,
		feeVault: feeVault,
		feeBps:   feeBps,
		deals:    make(map[string]*Hold),
		balances: make(map[string]int64),
		transfer: transfer,
		now:      func() int64 { return time.Now().Unix() },
	}, nil
}

func isZeroAddr(a string) bool {
	a = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), "0x")
	return a == "" || strings.Trim(a, "0") == ""
}

// SetNow overrides the clock; tests only.
func (c *Contract) SetNow(now func() int64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// DepositToDeal funds a deal. The first deposit creates the hold and pins
// the depositor; later deposits top it up while the deal stays active.
func (c *Contract) DepositToDeal(caller, dealId string, amount, maxParticipants, expiresAt int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return ErrPaused
	}
	if isZeroAddr(caller) {
		return ErrZeroAddress
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	h := c.deals[dealId]
	if h == nil {
		c.deals[dealId] = &Hold{
			Depositor:       caller,
			DepositedUnits:  amount,
			MaxParticipants: maxParticipants,
			ExpiresAt:       expiresAt,
			Status:          dealActive,
		}
		return nil
	}

	if h.Status != dealActive {
		return ErrDealNotActive
	}
	h.DepositedUnits += amount
	return nil
}

// ReleaseToDeal pays part of a deal's balance to a payee. Arbiter/admin
// only. A release exceeding the remaining balance is rejected whole, never
// partially satisfied. The platform fee comes out of the released amount
// and accrues to the fee vault's withdrawable balance.
func (c *Contract) ReleaseToDeal(caller, dealId, to string, amount int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.release(caller, dealId, to, amount)
}

// BatchRelease settles several payees in one call. All releases are
// validated against the remaining balance up front; either every release
// applies or none do.
func (c *Contract) BatchRelease(caller, dealId string, tos []string, amounts []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(tos) != len(amounts) || len(tos) == 0 {
		return ErrLengthMismatch
	}

	h, err := c.activeDeal(caller, dealId)
	if err != nil {
		return err
	}

	var total int64
	for i, amt := range amounts {
		if amt <= 0 {
			return ErrInvalidAmount
		}
		if isZeroAddr(tos[i]) {
			return ErrZeroAddress
		}
		total += amt
	}
	if total > h.Remaining() {
		return ErrInsufficientDealBalance
	}

	for i, amt := range amounts {
		if err := c.release(caller, dealId, tos[i], amt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Contract) release(caller, dealId, to string, amount int64) error {
	h, err := c.activeDeal(caller, dealId)
	if err != nil {
		return err
	}
	if isZeroAddr(to) {
		return ErrZeroAddress
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > h.Remaining() {
		return ErrInsufficientDealBalance
	}

	fee := amount * c.feeBps / 10000
	h.ReleasedUnits += amount
	c.balances[to] += amount - fee
	if fee > 0 {
		c.balances[c.feeVault] += fee
	}
	return nil
}

func (c *Contract) activeDeal(caller, dealId string) (*Hold, error) {
	if c.paused {
		return nil, ErrPaused
	}
	if caller != c.arbiter && caller != c.admin {
		return nil, ErrNotArbiter
	}
	h := c.deals[dealId]
	if h == nil || h.Status != dealActive {
		return nil, ErrDealNotActive
	}
	return h, nil
}

// RefundDeal returns a deal's remaining balance to its depositor and
// terminates the deal. Arbiter/admin may refund at any time; the depositor
// may self-refund only at or after expiry (strict now >= expiresAt).
// Refunded is terminal: no further release or refund is possible.
func (c *Contract) RefundDeal(caller, dealId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.deals[dealId]
	if h == nil || h.Status != dealActive {
		return ErrDealNotActive
	}

	switch caller {
	case c.arbiter, c.admin:
	case h.Depositor:
		if c.now() < h.ExpiresAt {
			return ErrDealNotExpired
		}
	default:
		return ErrNotArbiter
	}

	if rem := h.Remaining(); rem > 0 {
		c.balances[h.Depositor] += rem
		h.ReleasedUnits += rem
	}
	h.Status = dealRefunded
	return nil
}

// CompleteDeal closes out a deal; any unreleased remainder goes back to the
// depositor's withdrawable balance. Arbiter/admin only; terminal.
func (c *Contract) CompleteDeal(caller, dealId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.activeDeal(caller, dealId)
	if err != nil {
		return err
	}

	if rem := h.Remaining(); rem > 0 {
		c.balances[h.Depositor] += rem
		h.ReleasedUnits += rem
	}
	h.Status = dealCompleted
	return nil
}

// Withdraw pays out the caller's full accumulated balance. The balance is
// zeroed atomically with the external transfer: a second withdraw always
// sees zero. A failed transfer restores the balance.
func (c *Contract) Withdraw(caller string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	amount := c.balances[caller]
	if amount <= 0 {
		return 0, ErrNothingToWithdraw
	}

	c.balances[caller] = 0
	if c.transfer != nil {
		if err := c.transfer(c.token, caller, amount); err != nil {
			c.balances[caller] = amount
			return 0, err
		}
	}
	return amount, nil
}

// SetPlatformFee updates the fee. Admin only; above the cap always fails,
// exactly at the cap succeeds.
func (c *Contract) SetPlatformFee(caller string, bps int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return ErrNotAdmin
	}
	if bps < 0 || bps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	c.feeBps = bps
	return nil
}

func (c *Contract) SetFeeVault(caller, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return ErrNotAdmin
	}
	if isZeroAddr(addr) {
		return ErrZeroAddress
	}
	c.feeVault = addr
	return nil
}

func (c *Contract) Pause(caller string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return ErrNotAdmin
	}
	c.paused = true
	return nil
}

func (c *Contract) Unpause(caller string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return ErrNotAdmin
	}
	c.paused = false
	return nil
}

// GetDeal returns a copy of the deal's hold, or nil.
func (c *Contract) GetDeal(dealId string) *Hold {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.deals[dealId]
	if h == nil {
		return nil
	}
	cp := *h
	return &cp
}

func (c *Contract) GetWithdrawableBalance(addr string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[addr]
}
