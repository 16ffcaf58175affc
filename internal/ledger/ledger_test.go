package ledger

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/misc"
)

func testDB(t *testing.T) (*bolt.DB, *config.Config) {
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
	return db, cfg
}

func TestCreditDebit(t *testing.T) {
	db, cfg := testDB(t)

	db.Update(func(tx *bolt.Tx) error {
		if after, err := Credit(tx, cfg, "op1", 900); err != nil || after != 900 {
			t.Fatalf("credit = (%d, %v)", after, err)
		}
		if after, err := Debit(tx, cfg, "op1", 400); err != nil || after != 500 {
			t.Fatalf("debit = (%d, %v)", after, err)
		}
		return nil
	})

	db.View(func(tx *bolt.Tx) error {
		if bal := GetBalance(tx, cfg, "op1"); bal.AvailableCents != 500 {
			t.Fatalf("balance = %d, want 500", bal.AvailableCents)
		}
		return nil
	})
}

func TestDebitGuard(t *testing.T) {
	db, cfg := testDB(t)

	db.Update(func(tx *bolt.Tx) error {
		Credit(tx, cfg, "op1", 100)
		return nil
	})

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := Debit(tx, cfg, "op1", 101)
		return err
	})
	if err != ErrBalance {
		t.Fatalf("got %v, want %v", err, ErrBalance)
	}

	// the failed update must not have touched the balance
	db.View(func(tx *bolt.Tx) error {
		if bal := GetBalance(tx, cfg, "op1"); bal.AvailableCents != 100 {
			t.Fatalf("balance = %d, want 100", bal.AvailableCents)
		}
		return nil
	})
}

// Concurrent debits race for a balance that only covers some of them. The
// guard runs inside each writer transaction, so the total debited can never
// exceed the starting balance.
func TestConcurrentDebits(t *testing.T) {
	db, cfg := testDB(t)

	db.Update(func(tx *bolt.Tx) error {
		Credit(tx, cfg, "op1", 500)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db.Update(func(tx *bolt.Tx) error {
				_, err := Debit(tx, cfg, "op1", 100)
				return err
			})
		}()
	}
	wg.Wait()

	db.View(func(tx *bolt.Tx) error {
		if bal := GetBalance(tx, cfg, "op1"); bal.AvailableCents != 0 {
			t.Fatalf("balance = %d, want 0", bal.AvailableCents)
		}
		return nil
	})
}

func TestAppendOrder(t *testing.T) {
	db, cfg := testDB(t)

	db.Update(func(tx *bolt.Tx) error {
		for i, amt := range []int64{100, 200, 300} {
			if err := Append(tx, cfg, &Entry{
				OwnerId:     "op1",
				Type:        EntryPayoutReceived,
				AmountCents: amt,
				CreatedAt:   int64(i),
			}); err != nil {
				t.Fatal(err)
			}
		}
		// another owner's entries must not leak into op1's history
		return Append(tx, cfg, &Entry{OwnerId: "op2", Type: EntryDeposit, AmountCents: 999})
	})

	db.View(func(tx *bolt.Tx) error {
		got := EntriesFor(tx, cfg, "op1")
		if len(got) != 3 {
			t.Fatalf("entries = %d, want 3", len(got))
		}
		for i, want := range []int64{100, 200, 300} {
			if got[i].AmountCents != want {
				t.Fatalf("entry %d = %d, want %d", i, got[i].AmountCents, want)
			}
		}
		return nil
	})
}

func TestIdempotency(t *testing.T) {
	db, cfg := testDB(t)

	type result struct {
		Value string `json:"value"`
	}

	db.Update(func(tx *bolt.Tx) error {
		return StoreResult(tx, cfg, "key1", &result{Value: "first"})
	})

	db.View(func(tx *bolt.Tx) error {
		raw, ok := SeenResult(tx, cfg, "key1")
		if !ok {
			t.Fatal("stored key not seen")
		}
		if string(raw) != `{"value":"first"}` {
			t.Fatalf("raw = %s", raw)
		}

		if _, ok = SeenResult(tx, cfg, "key2"); ok {
			t.Fatal("unknown key reported as seen")
		}
		if _, ok = SeenResult(tx, cfg, ""); ok {
			t.Fatal("empty key reported as seen")
		}
		return nil
	})
}

func TestIdempotencyExpiry(t *testing.T) {
	db, cfg := testDB(t)

	stale := &idemRecord{
		Key:       "old",
		Result:    []byte(`{}`),
		CreatedAt: time.Now().Unix() - (cfg.IdempotencyHours+1)*3600,
	}
	db.Update(func(tx *bolt.Tx) error {
		return misc.PutTxJson(tx, cfg.Bucket.Idempotency, stale.Key, stale)
	})

	db.View(func(tx *bolt.Tx) error {
		if _, ok := SeenResult(tx, cfg, "old"); ok {
			t.Fatal("expired key must not replay")
		}
		return nil
	})
}
