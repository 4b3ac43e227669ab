package cnwactivation

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"

	gohost "github.com/shirou/gopsutil/v4/host"
)

// FingerprintEnv overrides the generated device fingerprint when set.
const FingerprintEnv = "CNW_FINGERPRINT"

// GenerateFingerprint produces a deterministic, reboot-safe device identifier:
// the SHA-256 hex of hostname, MAC addresses, OS, architecture, the platform
// host id and /etc/machine-id where available.
//
// Containers often lack stable MACs; set CNW_FINGERPRINT (or a stable
// HOSTNAME) there. The activation token binds to HashString of this value,
// so changing it invalidates existing activations.
func GenerateFingerprint(ctx context.Context) (string, error) {
	if fp := os.Getenv(FingerprintEnv); fp != "" {
		return fp, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("get hostname: %w", err)
	}
	parts := []string{hostname}

	// best-effort
	if macs, err := getMACAddresses(); err == nil {
		parts = append(parts, macs...)
	}

	parts = append(parts, runtime.GOOS, runtime.GOARCH)

	if hostID, err := gohost.HostIDWithContext(ctx); err == nil && hostID != "" {
		parts = append(parts, strings.ToLower(strings.TrimSpace(hostID)))
	}
	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		parts = append(parts, strings.TrimSpace(string(machineID)))
	}

	return HashString(strings.Join(parts, "|")), nil
}

// getMACAddresses returns sorted, non-loopback hardware MAC addresses.
func getMACAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}
