package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Locator yields the device's current coordinates. Implementations must
// respect the context deadline; the submission flow applies a bounded timeout
// and treats exceeding it as a failure, not a hang.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// StaticLocator returns fixed coordinates, for installations that never move.
type StaticLocator Coordinates

func (s StaticLocator) Locate(context.Context) (Coordinates, error) {
	return Coordinates(s), nil
}

// IPLocator resolves coordinates through an IP geolocation service, the
// closest stand-in this side has for the browser's location capability.
type IPLocator struct {
	http *resty.Client
}

// NewIPLocator builds a locator against a provider such as ip-api.com.
func NewIPLocator(providerURL string, timeout time.Duration) *IPLocator {
	return &IPLocator{
		http: resty.New().SetBaseURL(providerURL).SetTimeout(timeout),
	}
}

func (l *IPLocator) Locate(ctx context.Context) (Coordinates, error) {
	resp, err := l.http.R().SetContext(ctx).Get("")
	if err != nil {
		return Coordinates{}, fmt.Errorf("geolocation unavailable: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return Coordinates{}, fmt.Errorf("geolocation provider error: %s", resp.Status())
	}

	var out struct {
		Status string  `json:"status"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Coordinates{}, fmt.Errorf("geolocation decode failed: %w", err)
	}
	if out.Status != "" && out.Status != "success" {
		return Coordinates{}, fmt.Errorf("geolocation denied: provider answered %q", out.Status)
	}
	return Coordinates{Lat: out.Lat, Lng: out.Lon}, nil
}
