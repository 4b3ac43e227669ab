package cnwactivation

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	gohost "github.com/shirou/gopsutil/v4/host"
)

func TestGenerateFingerprint_NotEmpty(t *testing.T) {
	fp, err := GenerateFingerprint(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// SHA-256 hex = 64 chars
	if len(fp) != 64 {
		t.Errorf("expected 64 char hex string, got %d chars: %s", len(fp), fp)
	}
}

func TestGenerateFingerprint_Deterministic(t *testing.T) {
	fp1, err := GenerateFingerprint(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fp2, err := GenerateFingerprint(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("fingerprint should be deterministic: %s != %s", fp1, fp2)
	}
}

func TestGenerateFingerprint_EnvOverride(t *testing.T) {
	const custom = "custom-fingerprint-from-env"
	t.Setenv(FingerprintEnv, custom)

	fp, err := GenerateFingerprint(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp != custom {
		t.Errorf("expected %q, got %q", custom, fp)
	}
}

func TestGenerateFingerprint_EnvOverrideEmpty(t *testing.T) {
	t.Setenv(FingerprintEnv, "")
	os.Unsetenv(FingerprintEnv)

	fp, err := GenerateFingerprint(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp) != 64 {
		t.Errorf("expected 64 char hex string without env override, got %d chars", len(fp))
	}
}

func stubHostInfo(t *testing.T, info *gohost.InfoStat, err error) {
	t.Helper()
	orig := hostInfo
	hostInfo = func(context.Context) (*gohost.InfoStat, error) { return info, err }
	t.Cleanup(func() { hostInfo = orig })
}

func TestNewHostSystemInfo_VirtualMachine(t *testing.T) {
	t.Setenv(FingerprintEnv, "fp-vm")
	stubHostInfo(t, &gohost.InfoStat{
		Hostname:             "vm-7",
		Platform:             "ubuntu",
		PlatformVersion:      "24.04",
		VirtualizationSystem: "kvm",
		VirtualizationRole:   "guest",
	}, nil)

	s, err := NewHostSystemInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Fingerprint() != "fp-vm" {
		t.Errorf("expected fingerprint fp-vm, got %q", s.Fingerprint())
	}
	if s.OSName() != "ubuntu" || s.OSVersion() != "24.04" {
		t.Errorf("expected ubuntu 24.04, got %s %s", s.OSName(), s.OSVersion())
	}
	if s.VMName() != "kvm" {
		t.Errorf("expected VM name kvm, got %q", s.VMName())
	}
	if s.Hostname() != "vm-7" {
		t.Errorf("expected hostname vm-7, got %q", s.Hostname())
	}
}

func TestNewHostSystemInfo_HostRoleIsNotVM(t *testing.T) {
	t.Setenv(FingerprintEnv, "fp-host")
	stubHostInfo(t, &gohost.InfoStat{
		Hostname:             "hv-1",
		Platform:             "debian",
		KernelVersion:        "6.1.0",
		VirtualizationSystem: "kvm",
		VirtualizationRole:   "host",
	}, nil)

	s, err := NewHostSystemInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.VMName() != "" {
		t.Errorf("expected no VM name on a hypervisor host, got %q", s.VMName())
	}
	if s.OSVersion() != "6.1.0" {
		t.Errorf("expected kernel version fallback, got %q", s.OSVersion())
	}
}

func TestNewHostSystemInfo_HostInfoUnavailable(t *testing.T) {
	t.Setenv(FingerprintEnv, "fp-bare")
	stubHostInfo(t, nil, errors.New("not supported"))

	s, err := NewHostSystemInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.OSName() != runtime.GOOS {
		t.Errorf("expected OS name %s, got %q", runtime.GOOS, s.OSName())
	}
	want, _ := os.Hostname()
	if s.Hostname() != want {
		t.Errorf("expected hostname %q, got %q", want, s.Hostname())
	}
}
