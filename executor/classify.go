package executor

import (
	"errors"
	"net"
	"strings"

	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"

	"github.com/txcoord/txcoord/store"
)

// class is the three-way bucket every coordination-service error falls into.
type class int

const (
	// classPassThrough errors are re-raised verbatim: the operation was
	// refused for a structural reason retrying cannot fix.
	classPassThrough class = iota
	// classReconnect errors indicate the session itself is unusable;
	// Reestablish is called before the next attempt.
	classReconnect
	// classGeneric errors are retried as-is, no reconnect.
	classGeneric
)

// classify buckets err the way the teacher's IsFailoverQualifiedIOError
// buckets filesystem errno values, reworked here for the two backends this
// coordinator actually speaks to: gocql (Cassandra) and go-redis (Redis).
func classify(err error) class {
	if err == nil {
		return classGeneric
	}

	switch {
	case errors.Is(err, store.ErrNodeExists),
		errors.Is(err, store.ErrNodeMissing),
		errors.Is(err, store.ErrDataInconsistency),
		errors.Is(err, store.ErrBadArguments):
		return classPassThrough
	}

	if isConnectionLost(err) {
		return classReconnect
	}

	return classGeneric
}

// isConnectionLost reports whether err indicates the underlying client
// connection (gocql session or redis client) is gone or unusable and a
// fresh one should be opened before retrying.
func isConnectionLost(err error) bool {
	switch {
	case errors.Is(err, gocql.ErrNoConnections),
		errors.Is(err, gocql.ErrConnectionClosed),
		errors.Is(err, gocql.ErrSessionClosed),
		errors.Is(err, gocql.ErrTimeoutNoRetry):
		return true
	case errors.Is(err, redis.ErrClosed):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	s := err.Error()
	switch {
	case strings.Contains(s, "no hosts available"),
		strings.Contains(s, "connection refused"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "use of closed network connection"),
		strings.Contains(s, "EOF"):
		return true
	}

	return false
}
