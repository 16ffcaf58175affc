package ledger

import (
	"errors"

	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/misc"
)

var ErrBalance = errors.New("Not enough balance")

// Balance holds per-owner totals in integer cents. Owners are advertiser
// agents, operators, or the platform itself.
type Balance struct {
	AvailableCents int64 `json:"availableCents"`
	PendingCents   int64 `json:"pendingCents,omitempty"`
}

func GetBalance(tx *bolt.Tx, cfg *config.Config, ownerId string) *Balance {
	var bal Balance
	misc.GetTxJson(tx, cfg.Bucket.Balance, ownerId, &bal)
	return &bal
}

// Credit adds amount to the owner's available balance and returns the
// resulting balance. Must run inside the caller's write transaction so the
// ledger entry and the causing state change commit together.
func Credit(tx *bolt.Tx, cfg *config.Config, ownerId string, amountCents int64) (int64, error) {
	bal := GetBalance(tx, cfg, ownerId)
	bal.AvailableCents += amountCents
	if err := misc.PutTxJson(tx, cfg.Bucket.Balance, ownerId, bal); err != nil {
		return 0, err
	}
	return bal.AvailableCents, nil
}

// Debit subtracts amount from the owner's available balance. The
// sufficiency check and the write happen in the same bolt transaction, so
// concurrent debits cannot drive the balance negative: bolt serializes
// writers, and a failed guard aborts the whole commit.
func Debit(tx *bolt.Tx, cfg *config.Config, ownerId string, amountCents int64) (int64, error) {
	bal := GetBalance(tx, cfg, ownerId)
	if bal.AvailableCents < amountCents {
		return bal.AvailableCents, ErrBalance
	}

	bal.AvailableCents -= amountCents
	if err := misc.PutTxJson(tx, cfg.Bucket.Balance, ownerId, bal); err != nil {
		return 0, err
	}
	return bal.AvailableCents, nil
}
