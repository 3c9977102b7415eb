// Package cassandra implements store.PersistentStore backed by a Cassandra
// (or Cassandra-compatible) cluster, generalizing the teacher's
// singleton Connection into a per-session, reconnectable handle: every
// persistent node in the data model (app roots, transaction nodes, lock
// roots, blacklist/valid-version entries, gclast_time) lives in one wide
// "nodes" table keyed by path, with a companion counter table used to hand
// out ZooKeeper-style monotonic sequence suffixes.
package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Config contains configuration for connecting to a Cassandra cluster and keyspace.
type Config struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string
	// Keyspace is the keyspace used for coordinator tables.
	Keyspace string
	// Consistency is the default consistency level for queries.
	Consistency gocql.Consistency
	// ConnectionTimeout is the session connection timeout.
	ConnectionTimeout time.Duration
	// Authenticator is used when the cluster requires authentication.
	Authenticator gocql.Authenticator
	// ReplicationClause defines the keyspace replication (e.g. SimpleStrategy).
	ReplicationClause string
}

// connection wraps a gocql.Session and the Config used to create it.
type connection struct {
	session *gocql.Session
	config  Config
}

// open creates a new Cassandra session from config, creating the keyspace
// and coordinator tables if they do not yet exist.
func open(config Config) (*connection, error) {
	if config.Keyspace == "" {
		config.Keyspace = "txcoord"
	}
	if config.Consistency == gocql.Any {
		config.Consistency = gocql.LocalQuorum
	}
	if config.ReplicationClause == "" {
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}

	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	if err := session.Query(fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;",
		config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		return nil, err
	}
	if err := session.Query(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.nodes (path text PRIMARY KEY, value blob, ctime bigint);",
		config.Keyspace)).Exec(); err != nil {
		return nil, err
	}
	if err := session.Query(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.sequences (parent text PRIMARY KEY, value counter);",
		config.Keyspace)).Exec(); err != nil {
		return nil, err
	}

	return &connection{session: session, config: config}, nil
}

// close closes the underlying session, if any.
func (c *connection) close() {
	if c == nil || c.session == nil {
		return
	}
	c.session.Close()
}
