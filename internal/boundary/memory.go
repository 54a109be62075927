package boundary

import (
	"context"
	"sort"
	"sync"
)

// Ring is a closed polygon ring; the last vertex is implicitly joined to the
// first.
type Ring []Point

// MemoryStore is an in-process Store for tests and small county deployments
// that run without PostGIS. Containment uses even-odd ray casting; a point on
// a shared edge may land in zero or both neighbors, which is exactly the case
// the matcher's tie-break exists for.
type MemoryStore struct {
	mu     sync.RWMutex
	byType map[string][]memBoundary
}

type memBoundary struct {
	identifier string
	rings      []Ring
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byType: map[string][]memBoundary{}}
}

// Add registers a polygon (outer rings only) under type + identifier.
// Returns the identifiers of same-type boundaries whose bounding box overlaps
// the new one, so callers can flag the anomaly.
func (s *MemoryStore) Add(boundaryType, identifier string, rings ...Ring) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overlaps []string
	minLat, minLng, maxLat, maxLng := bbox(rings)
	for _, b := range s.byType[boundaryType] {
		bMinLat, bMinLng, bMaxLat, bMaxLng := bbox(b.rings)
		if minLat <= bMaxLat && maxLat >= bMinLat && minLng <= bMaxLng && maxLng >= bMinLng {
			overlaps = append(overlaps, b.identifier)
		}
	}

	s.byType[boundaryType] = append(s.byType[boundaryType], memBoundary{
		identifier: identifier,
		rings:      rings,
	})
	sort.Strings(overlaps)
	return overlaps
}

func (s *MemoryStore) Containing(ctx context.Context, pt Point, boundaryType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, b := range s.byType[boundaryType] {
		for _, ring := range b.rings {
			if ring.contains(pt) {
				ids = append(ids, b.identifier)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Types(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.byType))
	for t := range s.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// contains reports whether pt is inside the ring using the even-odd rule.
func (r Ring) contains(pt Point) bool {
	inside := false
	n := len(r)
	if n < 3 {
		return false
	}
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := r[i], r[j]
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			cross := (b.Lng-a.Lng)*(pt.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lng
			if pt.Lng < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func bbox(rings []Ring) (minLat, minLng, maxLat, maxLng float64) {
	first := true
	for _, ring := range rings {
		for _, p := range ring {
			if first {
				minLat, maxLat = p.Lat, p.Lat
				minLng, maxLng = p.Lng, p.Lng
				first = false
				continue
			}
			if p.Lat < minLat {
				minLat = p.Lat
			}
			if p.Lat > maxLat {
				maxLat = p.Lat
			}
			if p.Lng < minLng {
				minLng = p.Lng
			}
			if p.Lng > maxLng {
				maxLng = p.Lng
			}
		}
	}
	return
}
