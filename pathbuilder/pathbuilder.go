// Package pathbuilder maps (app id, entity key, transaction id) triples to
// coordination-service paths. It is the only place in the module that
// assembles path strings -- every other component obtains paths through it.
package pathbuilder

import (
	"fmt"
	"net/url"
)

const (
	appsRoot = "/appscale/apps"
	// GroomerLockPath is the single globally-named ephemeral lock node used by
	// the (out of scope) datastore groomer.
	GroomerLockPath = "/appscale_datastore_groomer"
)

// encode percent-encodes a path segment (app id or entity key) so that any
// "/" it contains cannot be confused with the name-space separator.
func encode(segment string) string {
	return url.PathEscape(segment)
}

// Decode reverses encode, returning the original app id or entity key.
func Decode(segment string) (string, error) {
	return url.PathUnescape(segment)
}

// EncodeKey percent-encodes an entity key for embedding in a node value
// (e.g. the "<enc(key)>/<target_txid>" payload of a ukey entry), using the
// same escaping as path segments so Decode reverses it symmetrically.
func EncodeKey(key string) string {
	return encode(key)
}

// AppRoot returns the persistent root path for an application.
func AppRoot(app string) string {
	return fmt.Sprintf("%s/%s", appsRoot, encode(app))
}

// AppsRoot returns the path listing every application's root.
func AppsRoot() string {
	return appsRoot
}

// TxRoot returns the persistent root under which all transaction nodes of an
// application live.
func TxRoot(app string) string {
	return fmt.Sprintf("%s/txids", AppRoot(app))
}

// TxSequencePrefix returns the prefix passed to the coordination service when
// creating a new sequence-assigned transaction node (it appends the 10-digit
// suffix).
func TxSequencePrefix(app string) string {
	return fmt.Sprintf("%s/tx", TxRoot(app))
}

// TxID formats a raw sequence suffix into the "tx<NNNNNNNNNN>" node name.
func TxID(seq uint64) string {
	return fmt.Sprintf("tx%010d", seq)
}

// TxNode returns the path of a transaction's node.
func TxNode(app string, tx uint64) string {
	return fmt.Sprintf("%s/%s", TxRoot(app), TxID(tx))
}

// XGMarker returns the path of a transaction's "xg" marker child.
func XGMarker(app string, tx uint64) string {
	return fmt.Sprintf("%s/xg", TxNode(app, tx))
}

// LockPath returns the path of a transaction's "lockpath" child.
func LockPath(app string, tx uint64) string {
	return fmt.Sprintf("%s/lockpath", TxNode(app, tx))
}

// UpdatedKeySequencePrefix returns the prefix used to create a new
// sequence-assigned "ukey" child of a transaction node.
func UpdatedKeySequencePrefix(app string, tx uint64) string {
	return fmt.Sprintf("%s/ukey", TxNode(app, tx))
}

// LockRoot returns the path of the lock-root node owning an entity group's key.
func LockRoot(app, key string) string {
	return fmt.Sprintf("%s/locks/%s", AppRoot(app), encode(key))
}

// BlacklistRoot returns the path of an application's blacklist root.
func BlacklistRoot(app string) string {
	return fmt.Sprintf("%s/blacklist", TxRoot(app))
}

// BlacklistEntry returns the path of a blacklisted transaction's node.
func BlacklistEntry(app string, tx uint64) string {
	return fmt.Sprintf("%s/%s", BlacklistRoot(app), TxID(tx))
}

// ValidListRoot returns the path of an application's valid-version root.
func ValidListRoot(app string) string {
	return fmt.Sprintf("%s/validlist", TxRoot(app))
}

// ValidListAnchor returns the path of a key's valid-version anchor.
func ValidListAnchor(app, key string) string {
	return fmt.Sprintf("%s/%s", ValidListRoot(app), encode(key))
}

// GCLock returns the path of an application's ephemeral GC lock node.
func GCLock(app string) string {
	return fmt.Sprintf("%s/gclock", AppRoot(app))
}

// GCLastRunTime returns the path of an application's last-GC-sweep timestamp node.
func GCLastRunTime(app string) string {
	return fmt.Sprintf("%s/gclast_time", AppRoot(app))
}
