// Package txcoord implements the shared primitives of a distributed transaction
// coordinator: typed errors, structured logging setup, UUID ownership tokens
// and a bounded task runner that the coordinator subpackages build on.
//
// Concrete coordination-service backends live in subpackages such as
// store/cassandra (persistent node storage) and store/redisstore (ephemeral
// nodes and locks). Higher level features -- ID allocation, lock management,
// the journal, the blacklist and the garbage collector -- live in their own
// subpackages and are wired together by package coordinator.
package txcoord
