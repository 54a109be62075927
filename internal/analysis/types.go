package analysis

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
)

// Boundary types the comparator understands. The set is closed in the core;
// deployments extend it through the class table below, not by editing code.
const (
	TypeCongressional    = "congressional"
	TypeStateSenate      = "state_senate"
	TypeStateHouse       = "state_house"
	TypeCountyCommission = "county_commission"
	TypeSchoolDistrict   = "school_district"
	TypeFireDistrict     = "fire_district"
	TypeCityWard         = "city_ward"
	TypeCountyPrecinct   = "county_precinct"
)

// Class is the severity tier of a boundary type, used only to pick the
// mismatch label granularity.
type Class string

const (
	ClassDistrict Class = "district"
	ClassPrecinct Class = "precinct"
)

var defaultClasses = map[string]Class{
	TypeCongressional:    ClassDistrict,
	TypeStateSenate:      ClassDistrict,
	TypeStateHouse:       ClassDistrict,
	TypeCountyCommission: ClassDistrict,
	TypeSchoolDistrict:   ClassDistrict,
	TypeFireDistrict:     ClassDistrict,
	TypeCityWard:         ClassPrecinct,
	TypeCountyPrecinct:   ClassPrecinct,
}

// ClassTable maps boundary types to classes. It is the admin extension point:
// a YAML file (BOUNDARY_CLASSES_PATH) can add types or override tiers without
// touching the analysis core.
type ClassTable struct {
	classes map[string]Class
}

func DefaultClasses() *ClassTable {
	t := &ClassTable{classes: make(map[string]Class, len(defaultClasses))}
	for k, v := range defaultClasses {
		t.classes[k] = v
	}
	return t
}

// LoadClasses reads a YAML map of boundary type → class and merges it over
// the defaults.
func LoadClasses(path string) (*ClassTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundary classes: %w", err)
	}

	overrides := map[string]string{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse boundary classes: %w", err)
	}

	t := DefaultClasses()
	for typ, class := range overrides {
		switch Class(class) {
		case ClassDistrict, ClassPrecinct:
			t.classes[typ] = Class(class)
		default:
			return nil, fmt.Errorf("boundary class for %q must be district or precinct, got %q", typ, class)
		}
	}
	return t, nil
}

// ClassOf returns the class for a boundary type. Unknown types get
// district-class severity so a new type is never silently downgraded.
func (t *ClassTable) ClassOf(boundaryType string) Class {
	if c, ok := t.classes[boundaryType]; ok {
		return c
	}
	return ClassDistrict
}

// Types returns the known boundary types in sorted order.
func (t *ClassTable) Types() []string {
	out := make([]string, 0, len(t.classes))
	for k := range t.classes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
