package mission

import (
	"time"

	"github.com/boltdb/bolt"
	"github.com/humanadsai/humanads/internal/auth"
	"github.com/humanadsai/humanads/internal/common"
	"github.com/humanadsai/humanads/misc"
)

// Pre-settlement transitions. These carry no money; they only gate which
// missions ever reach the settlement path.

// Select turns an applied application into a mission in accepted state.
// One mission per (deal, operator), keyed off the application.
func (e *Engine) Select(caller *auth.User, appId string) (m *common.Mission, err error) {
	err = e.db.Update(func(tx *bolt.Tx) error {
		app := e.getApplicationTx(tx, appId)
		if app == nil {
			return errNotFound("application not found")
		}

		deal := e.getDealTx(tx, app.DealId)
		if deal == nil {
			return errNotFound("deal not found")
		}
		if deal.AdvertiserId != caller.ID && !caller.IsAdmin() {
			return errForbidden("caller does not own this deal")
		}
		if app.Status != common.ApplicationApplied {
			return errConflict(app.Status, "application already decided")
		}
		if deal.MaxParticipants > 0 && e.selectedCountTx(tx, deal.Id) >= deal.MaxParticipants {
			return errValidation(CodeDealFull, "deal already has its maximum number of participants")
		}

		now := time.Now().Unix()
		id, err := misc.GetNextIndex(tx, e.cfg.Bucket.Mission)
		if err != nil {
			return err
		}

		m = &common.Mission{
			Id:            id,
			DealId:        deal.Id,
			ApplicationId: app.Id,
			AdvertiserId:  deal.AdvertiserId,
			OperatorId:    app.OperatorId,
			Status:        common.MissionAccepted,
			RewardCents:   deal.RewardCents,
			FeePercent:    deal.FeePercent,
			AcceptedAt:    now,
		}

		app.Status = common.ApplicationSelected
		app.MissionId = m.Id
		app.DecidedAt = now

		if err = misc.PutTxJson(tx, e.cfg.Bucket.Application, app.Id, app); err != nil {
			return err
		}
		return e.saveMissionTx(tx, m)
	})
	return
}

// Submit marks the operator's work as delivered.
func (e *Engine) Submit(caller *auth.User, appId string) (m *common.Mission, err error) {
	err = e.db.Update(func(tx *bolt.Tx) error {
		_, m = e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}
		if m.OperatorId != caller.ID && !caller.IsAdmin() {
			return errForbidden("caller is not this mission's operator")
		}
		if m.Status != common.MissionAccepted {
			return errConflict(m.Status, "mission is not awaiting submission")
		}

		m.Status = common.MissionSubmitted
		m.SubmittedAt = time.Now().Unix()
		return e.saveMissionTx(tx, m)
	})
	return
}

// VerifyWork records that the submitted work checked out. The content
// review itself happens outside this service; this is only the resulting
// transition.
func (e *Engine) VerifyWork(caller *auth.User, appId string) (m *common.Mission, err error) {
	err = e.db.Update(func(tx *bolt.Tx) error {
		_, m = e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}
		if m.AdvertiserId != caller.ID && !caller.IsAdmin() {
			return errForbidden("caller does not own this deal")
		}
		if m.Status != common.MissionSubmitted {
			return errConflict(m.Status, "mission has not been submitted")
		}

		m.Status = common.MissionVerified
		m.VerifiedAt = time.Now().Unix()
		return e.saveMissionTx(tx, m)
	})
	return
}

// Reject terminates a mission from submitted or verified.
func (e *Engine) Reject(caller *auth.User, appId string) (m *common.Mission, err error) {
	err = e.db.Update(func(tx *bolt.Tx) error {
		_, m = e.getMissionByAppTx(tx, appId)
		if m == nil {
			return errNotFound("mission not found")
		}
		if m.AdvertiserId != caller.ID && !caller.IsAdmin() {
			return errForbidden("caller does not own this deal")
		}
		if m.Status != common.MissionSubmitted && m.Status != common.MissionVerified {
			return errConflict(m.Status, "mission cannot be rejected from its current status")
		}

		m.Status = common.MissionRejected
		m.RejectedAt = time.Now().Unix()
		return e.saveMissionTx(tx, m)
	})
	return
}
