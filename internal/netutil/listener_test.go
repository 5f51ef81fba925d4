package netutil

import "testing"

func TestListenerURLNormalisesWildcardHost(t *testing.T) {
	cases := []struct {
		name    string
		scheme  string
		address string
		want    string
	}{
		{"wildcard-v4", "tcp", "0.0.0.0:7100", "tcp://localhost:7100"},
		{"wildcard-v6", "tcp", "[::]:7100", "tcp://localhost:7100"},
		{"explicit-host", "tcp", "10.0.0.5:7100", "tcp://10.0.0.5:7100"},
		{"port-only", "tcp", ":7100", "tcp://localhost:7100"},
		{"empty", "tcp", "", "tcp://localhost"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ListenerURL(tc.scheme, tc.address)
			if got != tc.want {
				t.Errorf("ListenerURL(%q, %q) = %q, want %q", tc.scheme, tc.address, got, tc.want)
			}
		})
	}
}
