package cnwactivation

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"runtime"

	gohost "github.com/shirou/gopsutil/v4/host"
)

// SystemInfo identifies the device an activation is bound to. Values are
// read synchronously; the Manager hashes the fingerprint and user before
// they leave the process.
type SystemInfo interface {
	Fingerprint() string
	OSName() string
	OSVersion() string
	VMName() string
	Hostname() string
	User() string
}

// HostSystemInfo is the SystemInfo of the running host. All values are
// collected once by NewHostSystemInfo.
type HostSystemInfo struct {
	fingerprint string
	osName      string
	osVersion   string
	vmName      string
	hostname    string
	user        string
}

// hostInfo is replaced in tests.
var hostInfo = gohost.InfoWithContext

// NewHostSystemInfo collects the host identity. Only the fingerprint is
// mandatory; the descriptive fields fall back to runtime values.
func NewHostSystemInfo(ctx context.Context) (*HostSystemInfo, error) {
	fp, err := GenerateFingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate fingerprint: %w", err)
	}

	s := &HostSystemInfo{
		fingerprint: fp,
		osName:      runtime.GOOS,
	}
	if info, err := hostInfo(ctx); err == nil && info != nil {
		if info.Platform != "" {
			s.osName = info.Platform
		}
		s.osVersion = info.PlatformVersion
		if s.osVersion == "" {
			s.osVersion = info.KernelVersion
		}
		if info.VirtualizationRole == "guest" {
			s.vmName = info.VirtualizationSystem
		}
		s.hostname = info.Hostname
	}
	if s.hostname == "" {
		s.hostname, _ = os.Hostname()
	}
	if u, err := user.Current(); err == nil {
		s.user = u.Username
	}
	return s, nil
}

func (s *HostSystemInfo) Fingerprint() string { return s.fingerprint }
func (s *HostSystemInfo) OSName() string      { return s.osName }
func (s *HostSystemInfo) OSVersion() string   { return s.osVersion }
func (s *HostSystemInfo) VMName() string      { return s.vmName }
func (s *HostSystemInfo) Hostname() string    { return s.hostname }
func (s *HostSystemInfo) User() string        { return s.user }
