package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sport identifies the sport a court is built for.
type Sport string

// Known sports.
const (
	SportBasketball Sport = "basketball"
	SportTennis     Sport = "tennis"
	SportPickleball Sport = "pickleball"
	SportVolleyball Sport = "volleyball"
	SportHandball   Sport = "handball"
	SportFutsal     Sport = "futsal"
)

var validSports = map[Sport]struct{}{
	SportBasketball: {},
	SportTennis:     {},
	SportPickleball: {},
	SportVolleyball: {},
	SportHandball:   {},
	SportFutsal:     {},
}

// Valid reports whether s is a known sport.
func (s Sport) Valid() bool {
	_, ok := validSports[s]
	return ok
}

// ParseSport parses a sport name, case-insensitively.
func ParseSport(s string) (Sport, error) {
	sp := Sport(strings.ToLower(strings.TrimSpace(s)))
	if !sp.Valid() {
		return "", fmt.Errorf("unrecognized sport: %q", s)
	}
	return sp, nil
}

// Surface identifies a court's surface material.
type Surface string

// Known surfaces.
const (
	SurfaceConcrete  Surface = "concrete"
	SurfaceAsphalt   Surface = "asphalt"
	SurfaceWood      Surface = "wood"
	SurfaceClay      Surface = "clay"
	SurfaceGrass     Surface = "grass"
	SurfaceSynthetic Surface = "synthetic"
)

var validSurfaces = map[Surface]struct{}{
	SurfaceConcrete:  {},
	SurfaceAsphalt:   {},
	SurfaceWood:      {},
	SurfaceClay:      {},
	SurfaceGrass:     {},
	SurfaceSynthetic: {},
}

// Valid reports whether s is a known surface.
func (s Surface) Valid() bool {
	_, ok := validSurfaces[s]
	return ok
}

// ParseSurface parses a surface name, case-insensitively.
func ParseSurface(s string) (Surface, error) {
	sf := Surface(strings.ToLower(strings.TrimSpace(s)))
	if !sf.Valid() {
		return "", fmt.Errorf("unrecognized surface: %q", s)
	}
	return sf, nil
}

// TriState is a boolean with an explicit "unknown" state for absent data.
// The zero value is Unknown.
type TriState int8

// TriState values.
const (
	Unknown TriState = iota
	True
	False
)

// Bool returns the boolean value and whether it is known.
func (t TriState) Bool() (value, known bool) {
	switch t {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

// Matches reports whether t satisfies a known filter value. An Unknown
// record value never matches a concrete filter.
func (t TriState) Matches(filter TriState) bool {
	if filter == Unknown {
		return true
	}
	return t == filter
}

// String implements fmt.Stringer.
func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// ParseTriState parses "true", "false" or "" (unknown).
func ParseTriState(s string) (TriState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Unknown, nil
	case "true":
		return True, nil
	case "false":
		return False, nil
	default:
		return Unknown, fmt.Errorf("unrecognized tri-state value: %q", s)
	}
}

// MarshalJSON encodes True/False as JSON booleans and Unknown as null.
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON boolean or null.
func (t *TriState) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("tri-state must be true, false or null: %w", err)
	}
	switch {
	case v == nil:
		*t = Unknown
	case *v:
		*t = True
	default:
		*t = False
	}
	return nil
}
