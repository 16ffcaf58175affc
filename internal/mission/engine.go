// Package mission implements the settlement state machine that moves a
// mission from acceptance through paid completion: precondition checks per
// transition, on-chain verification when configured, ledger writes, and the
// trust feed. Every transition commits its (mission, payment, ledger) tuple
// in one bolt update; a failed precondition never mutates anything.
package mission

import (
	"bytes"

	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/internal/auth"
	"github.com/humanadsai/humanads/internal/common"
	"github.com/humanadsai/humanads/internal/verify"
	"github.com/humanadsai/humanads/misc"
)

type Engine struct {
	db       *bolt.DB
	cfg      *config.Config
	auth     *auth.Auth
	strategy verify.Strategy
}

// NewEngine wires the engine. The verification strategy is chosen once per
// deployment (ledger vs on-chain), never re-decided per call.
func NewEngine(db *bolt.DB, cfg *config.Config, a *auth.Auth, strategy verify.Strategy) *Engine {
	return &Engine{db: db, cfg: cfg, auth: a, strategy: strategy}
}

// PayoutMode names the active settlement mode in API responses.
func (e *Engine) PayoutMode() string {
	if e.strategy.Simulated() {
		return "ledger"
	}
	return "onchain"
}

func (e *Engine) getApplicationTx(tx *bolt.Tx, appId string) *common.Application {
	var app common.Application
	if misc.GetTxJson(tx, e.cfg.Bucket.Application, appId, &app) != nil || app.Id == "" {
		return nil
	}
	return &app
}

func (e *Engine) getMissionTx(tx *bolt.Tx, missionId string) *common.Mission {
	var m common.Mission
	if misc.GetTxJson(tx, e.cfg.Bucket.Mission, missionId, &m) != nil || m.Id == "" {
		return nil
	}
	return &m
}

// GetMissionByApp resolves the mission behind an application id.
func (e *Engine) getMissionByAppTx(tx *bolt.Tx, appId string) (*common.Application, *common.Mission) {
	app := e.getApplicationTx(tx, appId)
	if app == nil || app.MissionId == "" {
		return app, nil
	}
	return app, e.getMissionTx(tx, app.MissionId)
}

func (e *Engine) getDealTx(tx *bolt.Tx, dealId string) *common.Deal {
	var d common.Deal
	if misc.GetTxJson(tx, e.cfg.Bucket.Deal, dealId, &d) != nil || d.Id == "" {
		return nil
	}
	return &d
}

func (e *Engine) getPaymentTx(tx *bolt.Tx, paymentId string) *common.Payment {
	var p common.Payment
	if misc.GetTxJson(tx, e.cfg.Bucket.Payment, paymentId, &p) != nil || p.Id == "" {
		return nil
	}
	return &p
}

func (e *Engine) savePaymentTx(tx *bolt.Tx, p *common.Payment) error {
	return misc.PutTxJson(tx, e.cfg.Bucket.Payment, p.Id, p)
}

func (e *Engine) saveMissionTx(tx *bolt.Tx, m *common.Mission) error {
	return misc.PutTxJson(tx, e.cfg.Bucket.Mission, m.Id, m)
}

// selectedCountTx counts a deal's selected applications, walking the
// per-(deal, operator) dedupe keys.
func (e *Engine) selectedCountTx(tx *bolt.Tx, dealId string) (n int64) {
	prefix := []byte(dealId + "|")
	c := misc.GetBucket(tx, e.cfg.Bucket.Application).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if app := e.getApplicationTx(tx, string(v)); app != nil && app.Status == common.ApplicationSelected {
			n++
		}
	}
	return
}

// txConsumed reports whether a hash already settled a payment on a chain.
// Checked before any network call, and re-checked inside the committing
// transaction.
func (e *Engine) txConsumedTx(tx *bolt.Tx, chainName, hash string) bool {
	v := misc.GetBucket(tx, e.cfg.Bucket.PaymentTx).Get([]byte(common.TxKey(chainName, hash)))
	return len(v) != 0
}

func (e *Engine) consumeTxTx(tx *bolt.Tx, chainName, hash, paymentId string) error {
	return misc.PutBucketBytes(tx, e.cfg.Bucket.PaymentTx, common.TxKey(chainName, hash), []byte(paymentId))
}

// Mission returns the mission behind an application for read endpoints.
func (e *Engine) Mission(appId string) (m *common.Mission, err error) {
	err = e.db.View(func(tx *bolt.Tx) error {
		_, m = e.getMissionByAppTx(tx, appId)
		return nil
	})
	if err == nil && m == nil {
		err = errNotFound("mission not found")
	}
	return
}
