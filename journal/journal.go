// Package journal records, per transaction, which entity keys it touched
// and the rollback/roll-forward anchor each key should resolve to if the
// transaction later fails.
package journal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
)

// UpdatedKey is one decoded "ukey" entry: the entity key a transaction
// touched and the transaction ID a reader should consider authoritative
// for it.
type UpdatedKey struct {
	Key      string
	TargetTx uint64
}

// Journal tracks updated keys and valid-version anchors for one coordinator
// instance.
type Journal struct {
	exec     *executor.Executor
	sessions *session.Manager
	deadline time.Duration
}

// New returns a Journal routing calls through exec with the given per-call
// deadline.
func New(exec *executor.Executor, sessions *session.Manager, deadline time.Duration) *Journal {
	return &Journal{exec: exec, sessions: sessions, deadline: deadline}
}

// RegisterUpdatedKey records that currentTx touched key and, should
// currentTx fail, that key's authoritative writer should be considered
// targetTx. If a valid-version anchor for key already exists it is updated
// in place; otherwise a new "ukey" entry is appended to currentTx's node.
func (j *Journal) RegisterUpdatedKey(ctx context.Context, app string, currentTx, targetTx uint64, key string) error {
	anchor := pathbuilder.ValidListAnchor(app, key)

	var anchorExists bool
	if err := j.exec.Run(ctx, "register_updated_key.check_anchor", j.deadline, func(ctx context.Context) error {
		e, err := j.sessions.Persistent().Exists(ctx, anchor)
		anchorExists = e
		return err
	}); err != nil {
		return err
	}

	if anchorExists {
		value := []byte(strconv.FormatUint(targetTx, 10))
		return j.exec.Run(ctx, "register_updated_key.update_anchor", j.deadline, func(ctx context.Context) error {
			return j.sessions.Persistent().Set(ctx, anchor, value)
		})
	}

	txNode := pathbuilder.TxNode(app, currentTx)
	var txExists bool
	if err := j.exec.Run(ctx, "register_updated_key.check_tx", j.deadline, func(ctx context.Context) error {
		e, err := j.sessions.Persistent().Exists(ctx, txNode)
		txExists = e
		return err
	}); err != nil {
		return err
	}
	if !txExists {
		return txcoord.NewTransactionError("register_updated_key", txcoord.NotValid, nil)
	}

	value := []byte(fmt.Sprintf("%s/%d", pathbuilder.EncodeKey(key), targetTx))
	_, _, err := j.createUKey(ctx, app, currentTx, value)
	return err
}

func (j *Journal) createUKey(ctx context.Context, app string, tx uint64, value []byte) (string, uint64, error) {
	var path string
	var seq uint64
	err := j.exec.Run(ctx, "register_updated_key.create", j.deadline, func(ctx context.Context) error {
		p, s, err := j.sessions.Persistent().CreateSequential(ctx, pathbuilder.UpdatedKeySequencePrefix(app, tx), value)
		if err != nil {
			return err
		}
		path, seq = p, s
		return nil
	})
	return path, seq, err
}

// GetUpdatedKeyList returns every key tx registered via RegisterUpdatedKey,
// decoded from the transaction node's "ukey*" children. Fails with
// txcoord.NotValid if the transaction node no longer exists.
func (j *Journal) GetUpdatedKeyList(ctx context.Context, app string, tx uint64) ([]UpdatedKey, error) {
	txNode := pathbuilder.TxNode(app, tx)

	var children []string
	err := j.exec.Run(ctx, "get_updated_key_list.children", j.deadline, func(ctx context.Context) error {
		c, err := j.sessions.Persistent().Children(ctx, txNode)
		children = c
		return err
	})
	if err == store.ErrNodeMissing {
		return nil, txcoord.NewTransactionError("get_updated_key_list", txcoord.NotValid, err)
	}
	if err != nil {
		return nil, err
	}

	var keys []UpdatedKey
	for _, name := range children {
		if !strings.HasPrefix(name, "ukey") {
			continue
		}
		var value []byte
		err := j.exec.Run(ctx, "get_updated_key_list.get", j.deadline, func(ctx context.Context) error {
			v, err := j.sessions.Persistent().Get(ctx, txNode+"/"+name)
			value = v
			return err
		})
		if err == store.ErrNodeMissing {
			continue // raced with a concurrent delete; tolerate it
		}
		if err != nil {
			return nil, err
		}
		uk, ok := decodeUKey(string(value))
		if !ok {
			return nil, txcoord.NewTransactionError("get_updated_key_list", txcoord.Unknown, store.ErrDataInconsistency)
		}
		keys = append(keys, uk)
	}
	return keys, nil
}

func decodeUKey(value string) (UpdatedKey, bool) {
	idx := strings.LastIndex(value, "/")
	if idx < 0 {
		return UpdatedKey{}, false
	}
	encKey, targetStr := value[:idx], value[idx+1:]
	key, err := pathbuilder.Decode(encKey)
	if err != nil {
		return UpdatedKey{}, false
	}
	target, err := strconv.ParseUint(targetStr, 10, 64)
	if err != nil {
		return UpdatedKey{}, false
	}
	return UpdatedKey{Key: key, TargetTx: target}, true
}
