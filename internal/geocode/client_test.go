package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestGeocodeLive(t *testing.T) {
	// This test requires GOOGLE_MAPS_API_KEY to be set
	if os.Getenv("GOOGLE_MAPS_API_KEY") == "" {
		t.Skip("GOOGLE_MAPS_API_KEY not set")
	}

	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("Expected non-nil client when API key is set")
	}

	result, err := client.Geocode(context.Background(), "1600 Pennsylvania Ave NW, Washington, DC")
	if err != nil {
		t.Logf("Geocode error: %v", err)
		t.Logf("This might mean the Google Maps Geocoding API is not enabled for this key.")
		t.FailNow()
	}

	t.Logf("Geocoded result: %+v", result)

	if result.State != "DC" {
		t.Errorf("Expected state DC, got %s", result.State)
	}
	if result.Lat == 0 || result.Lng == 0 {
		t.Errorf("Expected a non-zero point, got (%f, %f)", result.Lat, result.Lng)
	}
}

func testClient(serverURL string) *Client {
	return &Client{
		apiKey:     "test-key",
		baseURL:    serverURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestGeocodeParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "123 Main St, Hamilton, OH" {
			t.Errorf("unexpected address param: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "123 Main St, Hamilton, OH 45011, USA",
				"geometry": {"location": {"lat": 39.3995, "lng": -84.5613}},
				"address_components": [
					{"long_name": "45011", "short_name": "45011", "types": ["postal_code"]},
					{"long_name": "Ohio", "short_name": "OH", "types": ["administrative_area_level_1"]},
					{"long_name": "Butler County", "short_name": "Butler County", "types": ["administrative_area_level_2"]}
				]
			}]
		}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Geocode(context.Background(), "123 Main St, Hamilton, OH")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if result.Lat != 39.3995 || result.Lng != -84.5613 {
		t.Errorf("unexpected point: (%f, %f)", result.Lat, result.Lng)
	}
	if result.Zip != "45011" || result.State != "OH" || result.County != "Butler County" {
		t.Errorf("unexpected components: %+v", result)
	}
}

func TestGeocodeZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Geocode(context.Background(), "nowhere at all"); err == nil {
		t.Fatal("expected an error for ZERO_RESULTS")
	}
}

func TestGeocodeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Geocode(context.Background(), "123 Main St"); err == nil {
		t.Fatal("expected an error for HTTP 403")
	}
}
