package server

import (
	"github.com/gin-gonic/gin"
	"github.com/humanadsai/humanads/internal/auth"
	"github.com/humanadsai/humanads/misc"
)

// IdempotencyHeader dedupes the financial transitions (approve, unlock,
// confirm). Replays inside the validity window return the original result.
const IdempotencyHeader = `x-idempotency-key`

func idemKey(c *gin.Context) string {
	return c.Request.Header.Get(IdempotencyHeader)
}

func selectApplication(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := srv.engine.Select(auth.GetCtxUser(c), c.Param("applicationId"))
		if err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, m)
	}
}

func submitWork(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := srv.engine.Submit(auth.GetCtxUser(c), c.Param("applicationId"))
		if err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, m)
	}
}

func verifyWork(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := srv.engine.VerifyWork(auth.GetCtxUser(c), c.Param("applicationId"))
		if err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, m)
	}
}

func rejectMission(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := srv.engine.Reject(auth.GetCtxUser(c), c.Param("applicationId"))
		if err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, m)
	}
}

func getMission(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := srv.engine.Mission(c.Param("applicationId"))
		if err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, m)
	}
}

func approveMission(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PayoutWindowHours int64 `json:"payoutWindowHours"`
		}
		// empty body keeps the default window
		misc.BindJSON(c, &req)

		appId := c.Param("applicationId")
		resp, err := srv.engine.Approve(auth.GetCtxUser(c), appId,
			req.PayoutWindowHours, idemKey(c))
		if err != nil {
			writeErr(c, err)
			return
		}

		srv.notifyOperator(appId, "Your mission has been approved",
			"Your mission was approved and the payout is being prepared.")
		misc.WriteJSON(c, 200, resp)
	}
}

func unlockAddress(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TxHash string `json:"txHash"`
			Chain  string `json:"chain"`
			Token  string `json:"token"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}
		if req.TxHash == "" || req.Chain == "" || req.Token == "" {
			misc.WriteJSON(c, 400, misc.StatusErr("txHash, chain and token are required"))
			return
		}

		resp, err := srv.engine.UnlockAddress(auth.GetCtxUser(c), c.Param("applicationId"),
			req.TxHash, req.Chain, req.Token, idemKey(c))
		if err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, resp)
	}
}

func confirmPayout(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TxHash string `json:"txHash"`
			Chain  string `json:"chain"`
			Token  string `json:"token"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}
		if req.TxHash == "" || req.Chain == "" || req.Token == "" {
			misc.WriteJSON(c, 400, misc.StatusErr("txHash, chain and token are required"))
			return
		}

		appId := c.Param("applicationId")
		resp, err := srv.engine.ConfirmPayout(auth.GetCtxUser(c), appId,
			req.TxHash, req.Chain, req.Token, idemKey(c))
		if err != nil {
			writeErr(c, err)
			return
		}

		srv.notifyOperator(appId, "Your payout is complete",
			"The payout for your mission has been confirmed.")
		misc.WriteJSON(c, 200, resp)
	}
}

func agentTrustScore(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := srv.engine.TrustScore(c.Param("agentId"))
		if err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, resp)
	}
}

func suspendAgent(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Suspended bool `json:"suspended"`
		}
		if err := misc.BindJSON(c, &req); err != nil {
			misc.WriteJSON(c, 400, misc.StatusErr(err.Error()))
			return
		}

		agentId := c.Param("agentId")
		if err := srv.engine.SetSuspended(auth.GetCtxUser(c), agentId, req.Suspended); err != nil {
			writeErr(c, err)
			return
		}
		misc.WriteJSON(c, 200, misc.StatusOK(agentId))
	}
}
