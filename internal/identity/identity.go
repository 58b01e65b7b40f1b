package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// AnonymousUserID derives a stable anonymous id from the client IP and
// user-agent, so repeat visitors count as one user without any cookie or
// login. When either input is missing the id is random instead.
func AnonymousUserID(ipAddress, userAgent string) string {
	ipAddress = strings.TrimSpace(ipAddress)
	if ipAddress != "" && userAgent != "" {
		sum := sha256.Sum256([]byte(ipAddress + ":" + userAgent))
		return "anon_" + hex.EncodeToString(sum[:])[:8]
	}
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "anon_" + hex.EncodeToString(b[:])
}

// SessionID returns existing unchanged when the client already carries a
// session, otherwise builds {userID}_{YYYYMMDD}_{4 random digits}.
func SessionID(userID string, now time.Time, existing string) string {
	if existing = strings.TrimSpace(existing); existing != "" {
		return existing
	}
	if userID == "" {
		userID = "unknown"
	}
	var b [2]byte
	_, _ = rand.Read(b[:])
	n := binary.BigEndian.Uint16(b[:]) % 10000
	return fmt.Sprintf("%s_%s_%04d", userID, now.UTC().Format("20060102"), n)
}

type UAInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

// ParseUserAgent does coarse browser/os/device classification, enough for
// the dashboard's breakdown widgets. Unknown inputs yield zeroed fields.
func ParseUserAgent(userAgent string) UAInfo {
	if strings.TrimSpace(userAgent) == "" {
		return UAInfo{}
	}
	info := UAInfo{Browser: "Unknown", OS: "Unknown", Device: "Desktop"}
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg"):
		info.Browser = "Edge"
	case strings.Contains(ua, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "safari"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
		info.Device = "Mobile"
	case strings.Contains(ua, "iphone"):
		info.OS = "iOS"
		info.Device = "Mobile"
	case strings.Contains(ua, "ipad"):
		info.OS = "iOS"
		info.Device = "Tablet"
	case strings.Contains(ua, "mac"):
		info.OS = "macOS"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	return info
}
