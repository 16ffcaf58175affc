package server

import (
	"github.com/gin-gonic/gin"
	"github.com/humanadsai/humanads/internal/escrow"
	"github.com/humanadsai/humanads/misc"
)

// The escrow endpoints are a thin shim over the custody contract: the
// caller's on-chain address comes from the request, and the contract does
// its own role checks against the configured admin/arbiter addresses.

func escrowEnabled(srv *Server, c *gin.Context) bool {
	if srv.escrow == nil {
		misc.WriteJSON(c, 503, misc.StatusErr("escrow is not configured"))
		return false
	}
	return true
}

func writeEscrowErr(c *gin.Context, err error) {
	code := 400
	switch err {
	case escrow.ErrNotAdmin, escrow.ErrNotArbiter:
		code = 403
	case escrow.ErrPaused, escrow.ErrDealNotActive, escrow.ErrDealNotExpired:
		code = 409
	}
	misc.WriteJSON(c, code, misc.StatusErr(err.Error()))
}

func escrowDeposit(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		var req struct {
			Caller          string `json:"caller"`
			Amount          int64  `json:"amount"`
			MaxParticipants int64  `json:"maxParticipants"`
			ExpiresAt       int64  `json:"expiresAt"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		dealId := c.Param("dealId")
		if err := srv.escrow.DepositToDeal(req.Caller, dealId, req.Amount, req.MaxParticipants, req.ExpiresAt); err != nil {
			writeEscrowErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, misc.StatusOK(dealId))
	}
}

func escrowRelease(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		var req struct {
			Caller string `json:"caller"`
			To     string `json:"to"`
			Amount int64  `json:"amount"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		dealId := c.Param("dealId")
		if err := srv.escrow.ReleaseToDeal(req.Caller, dealId, req.To, req.Amount); err != nil {
			writeEscrowErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, misc.StatusOK(dealId))
	}
}

func escrowBatchRelease(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		var req struct {
			Caller  string   `json:"caller"`
			Tos     []string `json:"tos"`
			Amounts []int64  `json:"amounts"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		dealId := c.Param("dealId")
		if err := srv.escrow.BatchRelease(req.Caller, dealId, req.Tos, req.Amounts); err != nil {
			writeEscrowErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, misc.StatusOK(dealId))
	}
}

func escrowRefund(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		var req struct {
			Caller string `json:"caller"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		dealId := c.Param("dealId")
		if err := srv.escrow.RefundDeal(req.Caller, dealId); err != nil {
			writeEscrowErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, misc.StatusOK(dealId))
	}
}

func escrowComplete(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		var req struct {
			Caller string `json:"caller"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		dealId := c.Param("dealId")
		if err := srv.escrow.CompleteDeal(req.Caller, dealId); err != nil {
			writeEscrowErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, misc.StatusOK(dealId))
	}
}

func escrowGetDeal(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		h := srv.escrow.GetDeal(c.Param("dealId"))
		if h == nil {
			misc.WriteJSON(c, 404, misc.StatusErr("deal not found"))
			return
		}
		misc.WriteJSON(c, 200, h)
	}
}

func escrowWithdraw(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		var req struct {
			Caller string `json:"caller"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		amount, err := srv.escrow.Withdraw(req.Caller)
		if err != nil {
			writeEscrowErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, gin.H{
			"status": "success",
			"amount": amount,
		})
	}
}

func escrowGetBalance(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}
		misc.WriteJSON(c, 200, gin.H{
			"balance": srv.escrow.GetWithdrawableBalance(c.Param("addr")),
		})
	}
}

// escrowAdmin multiplexes the admin-only contract controls.
func escrowAdmin(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !escrowEnabled(srv, c) {
			return
		}

		var req struct {
			Caller string `json:"caller"`
			Action string `json:"action"` // setFee | setFeeVault | pause | unpause
			Bps    int64  `json:"bps"`
			Addr   string `json:"addr"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		var err error
		switch req.Action {
		case "setFee":
			err = srv.escrow.SetPlatformFee(req.Caller, req.Bps)
		case "setFeeVault":
			err = srv.escrow.SetFeeVault(req.Caller, req.Addr)
		case "pause":
			err = srv.escrow.Pause(req.Caller)
		case "unpause":
			err = srv.escrow.Unpause(req.Caller)
		default:
			misc.WriteJSON(c, 400, misc.StatusErr("unknown action"))
			return
		}
		if err != nil {
			writeEscrowErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, misc.StatusOK(req.Action))
	}
}
