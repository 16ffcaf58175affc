package auth

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	"github.com/humanadsai/humanads/config"
	"github.com/humanadsai/humanads/misc"
)

const (
	ApiKeyHeader = `x-apikey`
	apiKeyLen    = 24

	ginUserKey = `authUser`
)

var (
	ErrInvalidID    = errors.New("invalid id")
	ErrUnauthorized = errors.New("unauthorized")
)

// Auth is the API-key gate. Settlement endpoints only need "which user is
// calling"; sessions, password auth and the admin UI live outside this
// service.
type Auth struct {
	db  *bolt.DB
	cfg *config.Config
}

func New(db *bolt.DB, cfg *config.Config) *Auth {
	return &Auth{db: db, cfg: cfg}
}

// CreateUserTx stores the user and mints an API key inside the caller's
// transaction.
func (a *Auth) CreateUserTx(tx *bolt.Tx, u *User) (apiKey string, err error) {
	if u.ID == "" {
		if u.ID, err = misc.GetNextIndex(tx, a.cfg.Bucket.User); err != nil {
			return "", err
		}
	}
	u.CreatedAt = time.Now().Unix()
	u.Status = true

	if err = misc.PutTxJson(tx, a.cfg.Bucket.User, u.ID, u); err != nil {
		return "", err
	}

	apiKey = hex.EncodeToString(misc.CreateToken(apiKeyLen))
	if err = misc.PutBucketBytes(tx, a.cfg.Bucket.ApiKey, apiKey, []byte(u.ID)); err != nil {
		return "", err
	}
	return apiKey, nil
}

// SetKeyTx binds a fixed API key to a user (seeded admin only).
func (a *Auth) SetKeyTx(tx *bolt.Tx, key, userID string) error {
	return misc.PutBucketBytes(tx, a.cfg.Bucket.ApiKey, key, []byte(userID))
}

func (a *Auth) GetUserTx(tx *bolt.Tx, id string) *User {
	var u User
	if misc.GetTxJson(tx, a.cfg.Bucket.User, id, &u) != nil || u.ID == "" {
		return nil
	}
	return &u
}

func (a *Auth) GetUser(id string) (u *User) {
	a.db.View(func(tx *bolt.Tx) error {
		u = a.GetUserTx(tx, id)
		return nil
	})
	return
}

func (a *Auth) userForKey(key string) (u *User) {
	if key == "" {
		return nil
	}
	a.db.View(func(tx *bolt.Tx) error {
		id := misc.GetBucket(tx, a.cfg.Bucket.ApiKey).Get([]byte(key))
		if len(id) != 0 {
			u = a.GetUserTx(tx, string(id))
		}
		return nil
	})
	return
}

// VerifyUser resolves the API key header into a user and stashes it on the
// gin context; unauthenticated requests are aborted with 401.
func (a *Auth) VerifyUser(c *gin.Context) {
	u := a.userForKey(c.Request.Header.Get(ApiKeyHeader))
	if u == nil || !u.Status {
		misc.WriteJSON(c, 401, misc.StatusErr(ErrUnauthorized.Error()))
		c.Abort()
		return
	}
	c.Set(ginUserKey, u)
	c.Next()
}

// GetCtxUser returns the user VerifyUser attached to this request.
func GetCtxUser(c *gin.Context) *User {
	if v, ok := c.Get(ginUserKey); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}
	return nil
}
