// Package api exposes the Coordinator over HTTP as a gin router, mirroring
// the teacher's rest_api scaffold: bearer-token auth via Okta (skippable in
// dev/QA), Swagger UI, and one route per coordinator operation.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/coordinator"
)

// Server holds the dependencies an HTTP handler needs.
type Server struct {
	coord *coordinator.Coordinator
	auth  AuthConfig
}

// AuthConfig mirrors the teacher's verify() escape hatches: Env "DEV"
// bypasses auth entirely, Env "QA" accepts QAToken by equality, anything
// else is verified against Okta.
type AuthConfig struct {
	Env          string
	OktaDomain   string
	OktaClientID string
	QAToken      string
}

// NewServer returns a Server wrapping coord.
func NewServer(coord *coordinator.Coordinator, auth AuthConfig) *Server {
	return &Server{coord: coord, auth: auth}
}

// Router builds the gin.Engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	protect := func(h gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			if !s.verify(c) {
				return
			}
			// Client-facing calls get a 10s deadline on top of the
			// executor's per-call deadline.
			ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
			h(c)
		}
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/apps/:app/transactions", protect(s.beginTx))
		v1.POST("/apps/:app/transactions/:tx/locks/:key", protect(s.acquireLock))
		v1.DELETE("/apps/:app/transactions/:tx/locks", protect(s.releaseLock))
		v1.POST("/apps/:app/transactions/:tx/updated-keys", protect(s.registerUpdatedKey))
		v1.GET("/apps/:app/transactions/:tx/updated-keys", protect(s.getUpdatedKeyList))
		v1.POST("/apps/:app/transactions/:tx/notify-failure", protect(s.notifyFailure))
		v1.GET("/apps/:app/transactions/:tx/blacklisted", protect(s.isBlacklisted))
		v1.GET("/apps/:app/transactions/:tx/xg", protect(s.isXG))
		v1.GET("/apps/:app/valid-version/:key", protect(s.getValidTransactionID))
		v1.POST("/groomer-lock", protect(s.acquireGroomerLock))
		v1.DELETE("/groomer-lock", protect(s.releaseGroomerLock))
	}

	registerSwagger(router)
	return router
}

func parseTxParam(c *gin.Context) (uint64, bool) {
	tx, err := strconv.ParseUint(c.Param("tx"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid transaction id")
		return 0, false
	}
	return tx, true
}

// beginTx godoc
// @Summary Begin a transaction
// @Router /apps/{app}/transactions [post]
func (s *Server) beginTx(c *gin.Context) {
	var body struct {
		XG bool `json:"xg"`
	}
	_ = c.ShouldBindJSON(&body)

	tx, err := s.coord.BeginTx(c.Request.Context(), c.Param("app"), body.XG)
	if writeError(c, "begin_tx", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx": tx})
}

// acquireLock godoc
// @Router /apps/{app}/transactions/{tx}/locks/{key} [post]
func (s *Server) acquireLock(c *gin.Context) {
	tx, ok := parseTxParam(c)
	if !ok {
		return
	}
	err := s.coord.AcquireLock(c.Request.Context(), c.Param("app"), tx, c.Param("key"))
	if writeError(c, "acquire_lock", err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// releaseLock godoc
// @Router /apps/{app}/transactions/{tx}/locks [delete]
func (s *Server) releaseLock(c *gin.Context) {
	tx, ok := parseTxParam(c)
	if !ok {
		return
	}
	err := s.coord.ReleaseLock(c.Request.Context(), c.Param("app"), tx)
	if writeError(c, "release_lock", err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// registerUpdatedKey godoc
// @Router /apps/{app}/transactions/{tx}/updated-keys [post]
func (s *Server) registerUpdatedKey(c *gin.Context) {
	tx, ok := parseTxParam(c)
	if !ok {
		return
	}
	var body struct {
		Key      string `json:"key" binding:"required"`
		TargetTx uint64 `json:"target_tx" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	err := s.coord.RegisterUpdatedKey(c.Request.Context(), c.Param("app"), tx, body.TargetTx, body.Key)
	if writeError(c, "register_updated_key", err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// getUpdatedKeyList godoc
// @Router /apps/{app}/transactions/{tx}/updated-keys [get]
func (s *Server) getUpdatedKeyList(c *gin.Context) {
	tx, ok := parseTxParam(c)
	if !ok {
		return
	}
	keys, err := s.coord.GetUpdatedKeyList(c.Request.Context(), c.Param("app"), tx)
	if writeError(c, "get_updated_key_list", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// notifyFailure godoc
// @Router /apps/{app}/transactions/{tx}/notify-failure [post]
func (s *Server) notifyFailure(c *gin.Context) {
	tx, ok := parseTxParam(c)
	if !ok {
		return
	}
	err := s.coord.NotifyFailure(c.Request.Context(), c.Param("app"), tx)
	if writeError(c, "notify_failure", err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// isBlacklisted godoc
// @Router /apps/{app}/transactions/{tx}/blacklisted [get]
func (s *Server) isBlacklisted(c *gin.Context) {
	tx, ok := parseTxParam(c)
	if !ok {
		return
	}
	blacklisted, err := s.coord.IsBlacklisted(c.Request.Context(), c.Param("app"), tx)
	if writeError(c, "is_blacklisted", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"blacklisted": blacklisted})
}

// isXG godoc
// @Router /apps/{app}/transactions/{tx}/xg [get]
func (s *Server) isXG(c *gin.Context) {
	tx, ok := parseTxParam(c)
	if !ok {
		return
	}
	xg, err := s.coord.IsXG(c.Request.Context(), c.Param("app"), tx)
	if writeError(c, "is_xg", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"xg": xg})
}

// getValidTransactionID godoc
// @Router /apps/{app}/valid-version/{key} [get]
func (s *Server) getValidTransactionID(c *gin.Context) {
	tx, err := s.coord.GetValidTransactionID(c.Request.Context(), c.Param("app"), c.Param("key"))
	if writeError(c, "get_valid_transaction_id", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx": tx})
}

// acquireGroomerLock godoc
// @Router /groomer-lock [post]
func (s *Server) acquireGroomerLock(c *gin.Context) {
	acquired, err := s.coord.AcquireDatastoreGroomerLock(c.Request.Context())
	if writeError(c, "get_datastore_groomer_lock", err) {
		return
	}
	if !acquired {
		c.Status(http.StatusConflict)
		return
	}
	c.Status(http.StatusNoContent)
}

// releaseGroomerLock godoc
// @Router /groomer-lock [delete]
func (s *Server) releaseGroomerLock(c *gin.Context) {
	err := s.coord.ReleaseDatastoreGroomerLock(c.Request.Context())
	if writeError(c, "release_datastore_groomer_lock", err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps a Coordinator error onto the HTTP response per the
// TransactionError/TimeoutError boundary and reports whether it wrote one.
func writeError(c *gin.Context, op string, err error) bool {
	if err == nil {
		return false
	}

	var te *txcoord.TransactionError
	var toErr *txcoord.TimeoutError
	switch {
	case errors.As(err, &toErr):
		c.String(http.StatusGatewayTimeout, "%s: timed out", op)
	case errors.As(err, &te):
		if te.Reason == txcoord.Blacklisted {
			c.String(http.StatusForbidden, te.Error())
		} else {
			c.String(http.StatusConflict, te.Error())
		}
	default:
		slog.Error("coordinator call failed", "op", op, "err", err)
		c.String(http.StatusInternalServerError, "%s: internal error", op)
	}
	return true
}
