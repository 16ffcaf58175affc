package ledger

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/misc"
)

type idemRecord struct {
	Key       string          `json:"key"`
	Result    json.RawMessage `json:"result"`
	CreatedAt int64           `json:"createdAt"`
}

// SeenResult returns the stored result for a previously used idempotency
// key, if the key is still inside its validity window. Duplicate financial
// writes replay the original result instead of double-applying.
func SeenResult(tx *bolt.Tx, cfg *config.Config, key string) (json.RawMessage, bool) {
	if key == "" {
		return nil, false
	}

	var rec idemRecord
	if misc.GetTxJson(tx, cfg.Bucket.Idempotency, key, &rec) != nil || rec.Key == "" {
		return nil, false
	}

	if !misc.WithinLast(rec.CreatedAt, cfg.IdempotencyHours) {
		// expired; the caller may re-run the operation
		return nil, false
	}
	return rec.Result, true
}

// StoreResult records the outcome for an idempotency key inside the same
// transaction as the write it protects.
func StoreResult(tx *bolt.Tx, cfg *config.Config, key string, result interface{}) error {
	if key == "" {
		return nil
	}

	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return misc.PutTxJson(tx, cfg.Bucket.Idempotency, key, &idemRecord{
		Key:       key,
		Result:    b,
		CreatedAt: time.Now().Unix(),
	})
}
