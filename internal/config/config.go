package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string
	BackendURL       string
	BackendTZ        string
	RequestTimeout   time.Duration
	GeoProviderURL   string
	GeoTimeout       time.Duration
	StaticLat        float64
	StaticLng        float64
	FingerprintCache string
	KioskPort        string
	RateLimitPerMin  int
}

// Load returns application config populated from environment variables with
// sensible defaults. A .env file in the working directory is honored when
// present.
func Load() App {
	if err := godotenv.Load(".env"); err == nil {
		log.Println("loaded configuration from .env file")
	}

	return App{
		Env:              getEnv("APP_ENV", "dev"),
		BackendURL:       getEnv("BACKEND_URL", "http://localhost:8000"),
		BackendTZ:        getEnv("BACKEND_TZ", "Asia/Kolkata"),
		RequestTimeout:   durationEnv("REQUEST_TIMEOUT", 15*time.Second),
		GeoProviderURL:   getEnv("GEO_PROVIDER_URL", "http://ip-api.com/json"),
		GeoTimeout:       durationEnv("GEO_TIMEOUT", 10*time.Second),
		StaticLat:        floatEnv("STATIC_LAT", 0),
		StaticLng:        floatEnv("STATIC_LNG", 0),
		FingerprintCache: getEnv("FINGERPRINT_CACHE", defaultFingerprintCache()),
		KioskPort:        getEnv("KIOSK_PORT", "8081"),
		RateLimitPerMin:  intEnv("RATE_LIMIT_PER_MIN", 120),
	}
}

// HasStaticLocation reports whether fixed coordinates were configured, e.g.
// for a wall-mounted kiosk that never moves.
func (a App) HasStaticLocation() bool {
	return a.StaticLat != 0 || a.StaticLng != 0
}

func defaultFingerprintCache() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".attendclient_device"
	}
	return filepath.Join(dir, "attendclient", "device_id")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
		log.Printf("invalid float for %s, using fallback %g", key, fallback)
	}
	return fallback
}
