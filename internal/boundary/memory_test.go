package boundary

import (
	"context"
	"reflect"
	"testing"
)

// unit square from (0,0) to (1,1), vertices in lat/lng order
func square(minLat, minLng, maxLat, maxLng float64) Ring {
	return Ring{
		{Lat: minLat, Lng: minLng},
		{Lat: minLat, Lng: maxLng},
		{Lat: maxLat, Lng: maxLng},
		{Lat: maxLat, Lng: minLng},
	}
}

func TestMemoryStore_Containing(t *testing.T) {
	s := NewMemoryStore()
	s.Add("county_precinct", "HA2", square(0, 0, 1, 1))
	s.Add("county_precinct", "HA5", square(0, 1, 1, 2))
	s.Add("congressional", "8", square(0, 0, 1, 2))

	ctx := context.Background()

	ids, err := s.Containing(ctx, Point{Lat: 0.5, Lng: 0.5}, "county_precinct")
	if err != nil {
		t.Fatalf("Containing: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"HA2"}) {
		t.Errorf("expected [HA2], got %v", ids)
	}

	ids, err = s.Containing(ctx, Point{Lat: 0.5, Lng: 0.5}, "congressional")
	if err != nil {
		t.Fatalf("Containing: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"8"}) {
		t.Errorf("expected [8], got %v", ids)
	}

	// Outside everything.
	ids, err = s.Containing(ctx, Point{Lat: 5, Lng: 5}, "county_precinct")
	if err != nil {
		t.Fatalf("Containing: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no matches, got %v", ids)
	}

	// Unknown type is not an error, just empty.
	ids, err = s.Containing(ctx, Point{Lat: 0.5, Lng: 0.5}, "fire_district")
	if err != nil {
		t.Fatalf("Containing: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no matches for unknown type, got %v", ids)
	}
}

func TestMemoryStore_ResultsSorted(t *testing.T) {
	s := NewMemoryStore()
	// Two same-type polygons deliberately covering the same area, inserted in
	// reverse identifier order.
	s.Add("city_ward", "W9", square(0, 0, 2, 2))
	s.Add("city_ward", "W1", square(0, 0, 2, 2))

	ids, err := s.Containing(context.Background(), Point{Lat: 1, Lng: 1}, "city_ward")
	if err != nil {
		t.Fatalf("Containing: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"W1", "W9"}) {
		t.Errorf("expected sorted [W1 W9], got %v", ids)
	}
}

func TestMemoryStore_AddReportsSameTypeOverlap(t *testing.T) {
	s := NewMemoryStore()
	if overlaps := s.Add("county_precinct", "HA2", square(0, 0, 1, 1)); len(overlaps) != 0 {
		t.Errorf("first add should not overlap, got %v", overlaps)
	}
	overlaps := s.Add("county_precinct", "HA3", square(0.5, 0.5, 1.5, 1.5))
	if !reflect.DeepEqual(overlaps, []string{"HA2"}) {
		t.Errorf("expected overlap with HA2, got %v", overlaps)
	}
	// Different type covering the same area is by design, not an overlap.
	if overlaps := s.Add("congressional", "8", square(0, 0, 3, 3)); len(overlaps) != 0 {
		t.Errorf("cross-type overlap should not be reported, got %v", overlaps)
	}
}

func TestMemoryStore_Types(t *testing.T) {
	s := NewMemoryStore()
	s.Add("county_precinct", "HA2", square(0, 0, 1, 1))
	s.Add("congressional", "8", square(0, 0, 1, 1))

	types, err := s.Types(context.Background())
	if err != nil {
		t.Fatalf("Types: %v", err)
	}
	if !reflect.DeepEqual(types, []string{"congressional", "county_precinct"}) {
		t.Errorf("expected sorted types, got %v", types)
	}
}
