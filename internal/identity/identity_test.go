package identity

import (
	"strings"
	"testing"
	"time"
)

func TestAnonymousUserID_Consistent(t *testing.T) {
	t.Parallel()

	a := AnonymousUserID("1.2.3.4", "Mozilla/5.0")
	b := AnonymousUserID("1.2.3.4", "Mozilla/5.0")
	if a != b {
		t.Fatalf("expected stable id, got %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "anon_") || len(a) != len("anon_")+8 {
		t.Fatalf("unexpected id format: %q", a)
	}

	c := AnonymousUserID("5.6.7.8", "Mozilla/5.0")
	if a == c {
		t.Fatalf("different IPs should not share an id")
	}
}

func TestAnonymousUserID_RandomFallback(t *testing.T) {
	t.Parallel()

	a := AnonymousUserID("", "")
	b := AnonymousUserID("", "")
	if !strings.HasPrefix(a, "anon_") {
		t.Fatalf("unexpected id format: %q", a)
	}
	if a == b {
		t.Fatalf("fallback ids should be random, got %q twice", a)
	}
}

func TestSessionID(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 7, 14, 30, 0, 0, time.UTC)

	if got := SessionID("anon_abc", now, "client_session"); got != "client_session" {
		t.Fatalf("expected existing session to win, got %q", got)
	}

	got := SessionID("anon_abc", now, "")
	if !strings.HasPrefix(got, "anon_abc_20250907_") {
		t.Fatalf("unexpected session id: %q", got)
	}
	if len(got) != len("anon_abc_20250907_")+4 {
		t.Fatalf("expected 4 random digits, got %q", got)
	}

	if got := SessionID("", now, ""); !strings.HasPrefix(got, "unknown_") {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestParseUserAgent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ua      string
		browser string
		os      string
		device  string
	}{
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/120.0", "Chrome", "Windows", "Desktop"},
		{"Mozilla/5.0 (Macintosh) Safari/605.1", "Safari", "macOS", "Desktop"},
		{"Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0", "Firefox", "Linux", "Desktop"},
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Edg/120.0", "Edge", "Windows", "Desktop"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Safari/604.1", "Safari", "iOS", "Mobile"},
		{"Mozilla/5.0 (Linux; Android 14) Chrome/120.0", "Chrome", "Android", "Mobile"},
	}
	for _, tc := range cases {
		info := ParseUserAgent(tc.ua)
		if info.Browser != tc.browser || info.OS != tc.os || info.Device != tc.device {
			t.Fatalf("ParseUserAgent(%q) = %+v, want %s/%s/%s", tc.ua, info, tc.browser, tc.os, tc.device)
		}
	}

	if info := ParseUserAgent(""); info != (UAInfo{}) {
		t.Fatalf("expected zero info for empty UA, got %+v", info)
	}
}
