package server

import (
	"log"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/internal/auth"
	"github.com/humanadsai/humanads/internal/chain"
	"github.com/humanadsai/humanads/internal/escrow"
	"github.com/humanadsai/humanads/internal/mission"
	"github.com/humanadsai/humanads/internal/verify"
	"github.com/humanadsai/humanads/misc"
)

const apiBase = "/api/v1"

// Server owns the HTTP surface and the components behind it.
type Server struct {
	cfg *config.Config
	r   *gin.Engine
	db  *bolt.DB

	auth   *auth.Auth
	engine *mission.Engine
	escrow *escrow.Contract
}

func New(cfg *config.Config, r *gin.Engine) (*Server, error) {
	db := misc.OpenDB(cfg.DBPath, cfg.DBName)

	srv := &Server{
		cfg:  cfg,
		r:    r,
		db:   db,
		auth: auth.New(db, cfg),
	}

	var strategy verify.Strategy
	if cfg.Sandbox {
		strategy = verify.SimulatedStrategy{}
	} else {
		strategy = &verify.OnChain{
			Adapter:  chain.NewAdapter(cfg.RPC),
			FailOpen: cfg.VerifyFailOpen,
		}
	}
	srv.engine = mission.NewEngine(db, cfg, srv.auth, strategy)

	if cfg.Escrow.Token != "" {
		esc, err := escrow.New(cfg.Escrow.Token, cfg.Escrow.Admin, cfg.Escrow.Arbiter,
			cfg.Escrow.FeeVault, cfg.Escrow.FeeBps, nil)
		if err != nil {
			return nil, err
		}
		srv.escrow = esc
	}

	if err := srv.initializeDB(); err != nil {
		return nil, err
	}

	srv.initializeRoutes(r)
	return srv, nil
}

func (srv *Server) initializeDB() error {
	return srv.db.Update(func(tx *bolt.Tx) error {
		for _, val := range srv.cfg.AllBuckets() {
			log.Println("Initializing bucket", val)
			if _, err := tx.CreateBucketIfNotExists([]byte(val)); err != nil {
				return err
			}
		}

		if key := srv.cfg.AdminAPIKey; key != "" {
			admin := &auth.User{Name: "admin", Type: auth.TypeAdmin}
			if _, err := srv.auth.CreateUserTx(tx, admin); err != nil {
				return err
			}
			return srv.auth.SetKeyTx(tx, key, admin.ID)
		}
		return nil
	})
}

func (srv *Server) initializeRoutes(r *gin.Engine) {
	r.POST(apiBase+"/signUp", signUp(srv))

	v := r.Group(apiBase, srv.auth.VerifyUser)

	v.GET("/user/:id", getUser(srv))

	v.POST("/deals", putDeal(srv))
	v.GET("/deals/:dealId", getDeal(srv))
	v.POST("/deals/:dealId/apply", applyToDeal(srv))

	v.POST("/applications/:applicationId/select", selectApplication(srv))
	v.POST("/missions/:applicationId/submit", submitWork(srv))
	v.POST("/missions/:applicationId/verify", verifyWork(srv))
	v.POST("/missions/:applicationId/reject", rejectMission(srv))
	v.GET("/missions/:applicationId", getMission(srv))

	v.POST("/missions/:applicationId/approve", approveMission(srv))
	v.POST("/missions/:applicationId/unlockAddress", unlockAddress(srv))
	v.POST("/missions/:applicationId/confirmPayout", confirmPayout(srv))

	v.GET("/agentTrustScore/:agentId", agentTrustScore(srv))
	v.POST("/agents/:agentId/suspend", suspendAgent(srv))

	v.GET("/balance/:ownerId", getBalance(srv))
	v.GET("/ledger/:ownerId", getLedger(srv))
	v.POST("/withdraw", withdraw(srv))

	v.POST("/escrow/:dealId/deposit", escrowDeposit(srv))
	v.POST("/escrow/:dealId/release", escrowRelease(srv))
	v.POST("/escrow/:dealId/batchRelease", escrowBatchRelease(srv))
	v.POST("/escrow/:dealId/refund", escrowRefund(srv))
	v.POST("/escrow/:dealId/complete", escrowComplete(srv))
	v.GET("/escrow/:dealId", escrowGetDeal(srv))
	v.POST("/escrowWithdraw", escrowWithdraw(srv))
	v.GET("/escrowBalance/:addr", escrowGetBalance(srv))
	v.POST("/escrowAdmin", escrowAdmin(srv))
}

// Run blocks serving the API.
func (srv *Server) Run() error {
	return srv.r.Run(srv.cfg.Host + ":" + srv.cfg.Port)
}

// Close releases the db handle.
func (srv *Server) Close() error {
	return srv.db.Close()
}

// notifyOperator emails the operator behind a mission. Sandbox runs and
// unconfigured mail are no-ops; a rejected message is logged, never fatal.
func (srv *Server) notifyOperator(appId, subject, body string) {
	mc := srv.cfg.ReplyMailClient()
	if mc == nil {
		return
	}

	m, err := srv.engine.Mission(appId)
	if err != nil {
		return
	}
	op := srv.auth.GetUser(m.OperatorId)
	if op == nil || op.Email == "" {
		return
	}

	if resp, err := mc.SendMessage(body, subject, op.Email, op.Name, []string{""}); err != nil || len(resp) != 1 || resp[0].RejectReason != "" {
		log.Println("Failed to mail operator", op.ID, err)
	}
}

// writeErr renders settlement errors with their own status, code and, for
// state conflicts, the mission's current status. Everything else is a 500.
func writeErr(c *gin.Context, err error) {
	if me, ok := err.(*mission.Error); ok {
		misc.WriteJSON(c, me.HTTP, &misc.Status{
			Status:        "error",
			Msg:           me.Msg,
			Code:          me.Code,
			CurrentStatus: me.CurrentStatus,
		})
		return
	}
	misc.WriteJSON(c, 500, misc.StatusErr(err.Error()))
}
