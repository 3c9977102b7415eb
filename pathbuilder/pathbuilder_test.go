package pathbuilder

import "testing"

func TestEncodingRoundTrip(t *testing.T) {
	key := "parent/child#1 name"
	root := LockRoot("my app", key)
	want := "/appscale/apps/my%20app/locks/parent%2Fchild%231%20name"
	if root != want {
		t.Fatalf("LockRoot = %q, want %q", root, want)
	}
	if got, err := Decode("parent%2Fchild%231%20name"); err != nil || got != key {
		t.Fatalf("Decode = (%q, %v), want (%q, nil)", got, err, key)
	}
}

func TestTxID(t *testing.T) {
	if got := TxID(42); got != "tx0000000042" {
		t.Fatalf("TxID(42) = %q", got)
	}
}

func TestTxNodePaths(t *testing.T) {
	app := "guestbook"
	if got, want := TxRoot(app), "/appscale/apps/guestbook/txids"; got != want {
		t.Fatalf("TxRoot = %q, want %q", got, want)
	}
	if got, want := TxNode(app, 7), "/appscale/apps/guestbook/txids/tx0000000007"; got != want {
		t.Fatalf("TxNode = %q, want %q", got, want)
	}
	if got, want := XGMarker(app, 7), "/appscale/apps/guestbook/txids/tx0000000007/xg"; got != want {
		t.Fatalf("XGMarker = %q, want %q", got, want)
	}
}

func TestGroomerLockIsGlobal(t *testing.T) {
	if GroomerLockPath != "/appscale_datastore_groomer" {
		t.Fatalf("GroomerLockPath = %q", GroomerLockPath)
	}
}
