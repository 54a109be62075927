package analysis

import (
	"context"
	"testing"

	"github.com/EmpoweredVote/VR-Backend/internal/boundary"
)

func ring(minLat, minLng, maxLat, maxLng float64) boundary.Ring {
	return boundary.Ring{
		{Lat: minLat, Lng: minLng},
		{Lat: minLat, Lng: maxLng},
		{Lat: maxLat, Lng: maxLng},
		{Lat: maxLat, Lng: minLng},
	}
}

func TestMatcher_Resolve(t *testing.T) {
	store := boundary.NewMemoryStore()
	store.Add("congressional", "8", ring(0, 0, 2, 2))
	m := &Matcher{Boundaries: store}

	id, tie, found, err := m.Resolve(context.Background(), boundary.Point{Lat: 1, Lng: 1}, "congressional")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !found || tie || id != "8" {
		t.Errorf("expected (8, no tie, found), got (%s, %v, %v)", id, tie, found)
	}

	_, _, found, err = m.Resolve(context.Background(), boundary.Point{Lat: 10, Lng: 10}, "congressional")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if found {
		t.Error("expected no match outside all boundaries")
	}
}

// A point matching two same-type boundaries (the shared-edge case) resolves
// to the lowest identifier, flagged as a tie, every single time.
func TestMatcher_TieBreakDeterministic(t *testing.T) {
	store := boundary.NewMemoryStore()
	// Inserted high-identifier first so insertion order can't be the reason
	// the low identifier wins.
	store.Add("county_precinct", "HA5", ring(0, 0, 1, 1))
	store.Add("county_precinct", "HA2", ring(0, 0, 1, 1))
	m := &Matcher{Boundaries: store}

	pt := boundary.Point{Lat: 0.5, Lng: 0.5}
	for i := 0; i < 50; i++ {
		id, tie, found, err := m.Resolve(context.Background(), pt, "county_precinct")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !found {
			t.Fatal("expected a match")
		}
		if !tie {
			t.Fatal("expected the tie to be reported")
		}
		if id != "HA2" {
			t.Fatalf("call %d: expected HA2 to win, got %s", i, id)
		}
	}
}
