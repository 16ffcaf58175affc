package ledger

import (
	"bytes"
	"encoding/json"

	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/misc"
)

// Entry types. Credits and debits carry their cause so the ledger reads as
// an audit trail without joins.
const (
	EntryFeeReceived    = "fee_received"
	EntryPayoutReceived = "payout_received"
	EntryPayoutSent     = "payout_sent"
	EntryWithdrawal     = "withdrawal"
	EntryDeposit        = "deposit"
)

// Entry is an append-only record of a balance-affecting event. It carries
// the resulting balance so the history can be reconstructed without
// replaying every event. Never mutated or deleted.
type Entry struct {
	Id      string `json:"id"`
	OwnerId string `json:"ownerId"`

	Type              string `json:"type"`
	AmountCents       int64  `json:"amountCents"`
	BalanceAfterCents int64  `json:"balanceAfterCents"`

	RefType string `json:"refType,omitempty"` // mission | payment | manual
	RefId   string `json:"refId,omitempty"`

	CreatedAt int64 `json:"createdAt"`
}

// Append assigns the entry a monotonic id and writes it in the caller's
// transaction, so the entry commits or aborts with its causing state change.
func Append(tx *bolt.Tx, cfg *config.Config, e *Entry) error {
	id, err := misc.GetNextIndex(tx, cfg.Bucket.Ledger)
	if err != nil {
		return err
	}
	e.Id = id
	return misc.PutTxJson(tx, cfg.Bucket.Ledger, ledgerKey(e.OwnerId, id), e)
}

// EntriesFor returns the owner's entries in append order.
func EntriesFor(tx *bolt.Tx, cfg *config.Config, ownerId string) []*Entry {
	var out []*Entry
	prefix := []byte(ownerId + "|")
	c := misc.GetBucket(tx, cfg.Bucket.Ledger).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var e Entry
		if json.Unmarshal(v, &e) == nil {
			out = append(out, &e)
		}
	}
	return out
}

// zero-pad so cursor order matches append order per owner
func ledgerKey(ownerId, id string) string {
	for len(id) < 12 {
		id = "0" + id
	}
	return ownerId + "|" + id
}
