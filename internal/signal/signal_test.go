package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFingerprint(t *testing.T) {
	id, err := StaticFingerprint("kiosk-7").Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kiosk-7", id)

	_, err = StaticFingerprint("").Fingerprint(context.Background())
	assert.Error(t, err)
}

func TestDeviceFingerprintIsStableAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "device_id")
	provider := NewDeviceFingerprint(path)

	first, err := provider.Fingerprint(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A fresh provider over the same cache file must agree.
	again, err := NewDeviceFingerprint(path).Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestDeviceFingerprintPrefersCachedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_id")
	provider := NewDeviceFingerprint(path)

	require.NoError(t, os.WriteFile(path, []byte("pinned-identity\n"), 0o600))

	id, err := provider.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pinned-identity", id)
}

func TestDeviceFingerprintHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDeviceFingerprint(filepath.Join(t.TempDir(), "id")).Fingerprint(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIPLocatorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","lat":12.9716,"lon":77.5946}`))
	}))
	defer srv.Close()

	coords, err := NewIPLocator(srv.URL, time.Second).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.9716, coords.Lat)
	assert.Equal(t, 77.5946, coords.Lng)
}

func TestIPLocatorDeniedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()

	_, err := NewIPLocator(srv.URL, time.Second).Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geolocation denied")
}

func TestIPLocatorTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewIPLocator(srv.URL, time.Minute).Locate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geolocation unavailable")
	assert.Less(t, time.Since(start), 5*time.Second, "a slow provider must not hang the caller")
}

func TestStaticLocator(t *testing.T) {
	coords, err := StaticLocator{Lat: 1.5, Lng: -2.5}.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Coordinates{Lat: 1.5, Lng: -2.5}, coords)
}
