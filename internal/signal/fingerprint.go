// Package signal gathers the supplementary submission signals: the device
// fingerprint and the current location. Both are best-effort collaborators
// that may fail, and a failure here must read as a local problem, never as a
// rejected submission.
package signal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// FingerprintProvider yields a stable opaque identifier for this device.
type FingerprintProvider interface {
	Fingerprint(ctx context.Context) (string, error)
}

// DeviceFingerprint derives a semi-stable id from the machine's hostname and
// hardware addresses and caches it on disk, so the same device keeps the same
// identity across runs even if interfaces change later.
type DeviceFingerprint struct {
	CachePath string
}

// NewDeviceFingerprint builds a provider caching under path.
func NewDeviceFingerprint(path string) *DeviceFingerprint {
	return &DeviceFingerprint{CachePath: path}
}

func (d *DeviceFingerprint) Fingerprint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("device fingerprint: %w", err)
	}

	if cached, err := os.ReadFile(d.CachePath); err == nil {
		id := strings.TrimSpace(string(cached))
		if id != "" {
			return id, nil
		}
	}

	id := derive()
	if err := os.MkdirAll(filepath.Dir(d.CachePath), 0o755); err != nil {
		return "", fmt.Errorf("device fingerprint: cache dir: %w", err)
	}
	if err := os.WriteFile(d.CachePath, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("device fingerprint: cache write: %w", err)
	}
	return id, nil
}

// derive hashes hostname plus MAC addresses. A random id is the fallback when
// neither is readable; the cache makes it stick.
func derive() string {
	var parts []string
	if host, err := os.Hostname(); err == nil && host != "" {
		parts = append(parts, host)
	}
	if ifaces, err := net.Interfaces(); err == nil {
		var macs []string
		for _, iface := range ifaces {
			if hw := iface.HardwareAddr.String(); hw != "" {
				macs = append(macs, hw)
			}
		}
		sort.Strings(macs)
		parts = append(parts, macs...)
	}
	if len(parts) == 0 {
		return uuid.NewString()
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// StaticFingerprint always returns the same id. Used in tests and for kiosks
// registered under a fixed identity.
type StaticFingerprint string

func (s StaticFingerprint) Fingerprint(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("device fingerprint: empty static id")
	}
	return string(s), nil
}
