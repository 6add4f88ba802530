package httpmetrics

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"/api/realtime/online/42", "/api/realtime/online/{param}"},
		{"/api/realtime/online/8f14e45f-ceea-4f5c-8f1c-aaf85e6f3f1a", "/api/realtime/online/{id}"},
		{"/ws", "/ws"},
		{"", "/"},
	}

	for _, tc := range cases {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
