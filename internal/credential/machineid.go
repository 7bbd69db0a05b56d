package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"runtime"
	"strings"
)

// deriveMachineID computes a stable device fingerprint: SHA-256 over
// hostname + "-" + platform + "-" + first non-internal MAC (or "no-mac").
// Computed once per newly added credential that lacks one; never
// recomputed later.
func deriveMachineID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}
	mac := firstNonLoopbackMAC()
	seed := hostname + "-" + runtime.GOOS + "-" + mac
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func firstNonLoopbackMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "no-mac"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		hw := iface.HardwareAddr.String()
		if hw == "" || strings.EqualFold(hw, "00:00:00:00:00:00") {
			continue
		}
		return hw
	}
	return "no-mac"
}

// deriveRegion implements the region-inference rule: the 4th colon-separated
// segment of profileArn if present, else the explicit region, else the
// default.
func deriveRegion(profileArn, explicitRegion string) string {
	if profileArn != "" {
		parts := strings.Split(profileArn, ":")
		if len(parts) >= 4 && parts[3] != "" {
			return parts[3]
		}
	}
	if explicitRegion != "" {
		return explicitRegion
	}
	return defaultRegion
}
