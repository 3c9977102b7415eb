package audit

import "testing"

func TestParseTxName(t *testing.T) {
	cases := []struct {
		name string
		want uint64
		ok   bool
	}{
		{"tx0000000042", 42, true},
		{"blacklist", 0, false},
		{"validlist", 0, false},
		{"tx", 0, false},
		{"txabc", 0, false},
	}
	for _, c := range cases {
		got, ok := parseTxName(c.name)
		if ok != c.ok || got != c.want {
			t.Errorf("parseTxName(%q) = (%d, %v), want (%d, %v)", c.name, got, ok, c.want, c.ok)
		}
	}
}
