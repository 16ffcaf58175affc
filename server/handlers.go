package server

import (
	"errors"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	"github.com/humanadsai/humanads/internal/auth"
	"github.com/humanadsai/humanads/internal/common"
	"github.com/humanadsai/humanads/internal/ledger"
	"github.com/humanadsai/humanads/misc"
)

// errHandled aborts a bolt update after the handler already wrote the
// response.
var errHandled = errors.New("handled")

func signUp(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var u auth.User
		if err := misc.BindJSON(c, &u); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}
		if u.Type != auth.TypeAgent && u.Type != auth.TypeOperator {
			misc.WriteJSON(c, 400, misc.StatusErr("type must be agent or operator"))
			return
		}
		if u.Name == "" {
			misc.WriteJSON(c, 400, misc.StatusErr("missing name"))
			return
		}

		var apiKey string
		if err := srv.db.Update(func(tx *bolt.Tx) (err error) {
			apiKey, err = srv.auth.CreateUserTx(tx, &u)
			return
		}); err != nil {
			misc.WriteJSON(c, 500, misc.StatusErr(err.Error()))
			return
		}

		misc.WriteJSON(c, 200, gin.H{
			"status": "success",
			"id":     u.ID,
			"apiKey": apiKey,
		})
	}
}

func getUser(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.GetCtxUser(c)
		id := c.Param("id")
		if id != caller.ID && !caller.IsAdmin() {
			misc.WriteJSON(c, 403, misc.StatusErr("forbidden"))
			return
		}

		u := srv.auth.GetUser(id)
		if u == nil {
			misc.WriteJSON(c, 404, misc.StatusErr("user not found"))
			return
		}
		misc.WriteJSON(c, 200, u)
	}
}

func putDeal(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.GetCtxUser(c)
		if !caller.IsAgent() && !caller.IsAdmin() {
			misc.WriteJSON(c, 403, misc.StatusErr("only agents create deals"))
			return
		}

		var d common.Deal
		if err := misc.BindJSON(c, &d); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}
		if d.RewardCents <= 0 {
			misc.WriteJSON(c, 400, misc.StatusErr("rewardCents must be positive"))
			return
		}
		if d.PaymentModel == "" {
			d.PaymentModel = common.ModelAdvanceFee
		}
		if d.PaymentModel != common.ModelAdvanceFee && d.PaymentModel != common.ModelEscrow {
			misc.WriteJSON(c, 400, misc.StatusErr("unknown payment model"))
			return
		}
		if d.FeePercent == 0 {
			d.FeePercent = srv.cfg.DefaultFeePercent
		}
		if d.FeePercent < 0 || d.FeePercent > 100 {
			misc.WriteJSON(c, 400, misc.StatusErr("feePercent out of range"))
			return
		}
		if d.MaxParticipants <= 0 {
			d.MaxParticipants = 1
		}

		d.AdvertiserId = caller.ID
		d.Status = common.DealActive
		d.CreatedAt = time.Now().Unix()

		if err := srv.db.Update(func(tx *bolt.Tx) (err error) {
			if d.Id, err = misc.GetNextIndex(tx, srv.cfg.Bucket.Deal); err != nil {
				return
			}
			return misc.PutTxJson(tx, srv.cfg.Bucket.Deal, d.Id, &d)
		}); err != nil {
			misc.WriteJSON(c, 500, misc.StatusErr(err.Error()))
			return
		}

		misc.WriteJSON(c, 200, misc.StatusOK(d.Id))
	}
}

func getDeal(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var d common.Deal
		srv.db.View(func(tx *bolt.Tx) error {
			return misc.GetTxJson(tx, srv.cfg.Bucket.Deal, c.Param("dealId"), &d)
		})
		if d.Id == "" {
			misc.WriteJSON(c, 404, misc.StatusErr("deal not found"))
			return
		}
		misc.WriteJSON(c, 200, &d)
	}
}

func applyToDeal(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.GetCtxUser(c)
		if !caller.IsOperator() {
			misc.WriteJSON(c, 403, misc.StatusErr("only operators apply to deals"))
			return
		}

		dealId := c.Param("dealId")
		app := &common.Application{
			DealId:     dealId,
			OperatorId: caller.ID,
			Status:     common.ApplicationApplied,
			AppliedAt:  time.Now().Unix(),
		}

		err := srv.db.Update(func(tx *bolt.Tx) error {
			var d common.Deal
			if misc.GetTxJson(tx, srv.cfg.Bucket.Deal, dealId, &d) != nil || d.Id == "" {
				misc.WriteJSON(c, 404, misc.StatusErr("deal not found"))
				return errHandled
			}
			if !d.IsActive(time.Now().Unix()) {
				misc.WriteJSON(c, 409, misc.StatusErr("deal is not active"))
				return errHandled
			}

			// one application per (deal, operator)
			dupKey := common.ApplicationKey(dealId, caller.ID)
			if v := misc.GetBucket(tx, srv.cfg.Bucket.Application).Get([]byte(dupKey)); len(v) != 0 {
				misc.WriteJSON(c, 409, misc.StatusErr("already applied to this deal"))
				return errHandled
			}

			var err error
			if app.Id, err = misc.GetNextIndex(tx, srv.cfg.Bucket.Application); err != nil {
				return err
			}
			if err = misc.PutTxJson(tx, srv.cfg.Bucket.Application, app.Id, app); err != nil {
				return err
			}
			return misc.PutBucketBytes(tx, srv.cfg.Bucket.Application, dupKey, []byte(app.Id))
		})
		if err == errHandled {
			return
		}
		if err != nil {
			misc.WriteJSON(c, 500, misc.StatusErr(err.Error()))
			return
		}

		misc.WriteJSON(c, 200, misc.StatusOK(app.Id))
	}
}

// ownerOrAdmin resolves the :ownerId param; users may only read their own
// money, admins anyone's.
func ownerOrAdmin(c *gin.Context) (string, bool) {
	caller := auth.GetCtxUser(c)
	ownerId := c.Param("ownerId")
	if ownerId != caller.ID && !caller.IsAdmin() {
		misc.WriteJSON(c, 403, misc.StatusErr("forbidden"))
		return "", false
	}
	return ownerId, true
}

func getBalance(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerId, ok := ownerOrAdmin(c)
		if !ok {
			return
		}

		var bal *ledger.Balance
		srv.db.View(func(tx *bolt.Tx) error {
			bal = ledger.GetBalance(tx, srv.cfg, ownerId)
			return nil
		})
		misc.WriteJSON(c, 200, bal)
	}
}

func getLedger(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerId, ok := ownerOrAdmin(c)
		if !ok {
			return
		}

		var out []*ledger.Entry
		srv.db.View(func(tx *bolt.Tx) error {
			out = ledger.EntriesFor(tx, srv.cfg, ownerId)
			return nil
		})
		if out == nil {
			out = []*ledger.Entry{}
		}
		misc.WriteJSON(c, 200, out)
	}
}

// withdraw debits the caller's available balance. The sufficiency guard
// lives in ledger.Debit, inside the same transaction as the ledger entry.
func withdraw(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.GetCtxUser(c)

		var req struct {
			AmountCents int64 `json:"amountCents"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}
		if req.AmountCents <= 0 {
			misc.WriteJSON(c, 400, misc.StatusErr("amountCents must be positive"))
			return
		}

		var after int64
		err := srv.db.Update(func(tx *bolt.Tx) (err error) {
			if after, err = ledger.Debit(tx, srv.cfg, caller.ID, req.AmountCents); err != nil {
				return
			}
			return ledger.Append(tx, srv.cfg, &ledger.Entry{
				OwnerId:           caller.ID,
				Type:              ledger.EntryWithdrawal,
				AmountCents:       -req.AmountCents,
				BalanceAfterCents: after,
				RefType:           "manual",
				CreatedAt:         time.Now().Unix(),
			})
		})
		if err == ledger.ErrBalance {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}
		if err != nil {
			misc.WriteJSON(c, 500, misc.StatusErr(err.Error()))
			return
		}

		misc.WriteJSON(c, 200, gin.H{
			"status":         "success",
			"availableCents": after,
			"withdrawnCents": req.AmountCents,
		})
	}
}
