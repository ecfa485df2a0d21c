// Package asset defines the normalized bridge and road-section records consumed
// by the scoring and allocation core.
package asset

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies which class of infrastructure a Record holds.
type Kind string

const (
	KindBridge Kind = "bridge"
	KindRoad   Kind = "road"
)

// Condition is the inspected condition rating shared by bridges and roads.
type Condition string

const (
	ConditionExcellent Condition = "Excellent"
	ConditionGood      Condition = "Good"
	ConditionFair      Condition = "Fair"
	ConditionPoor      Condition = "Poor"
	ConditionCritical  Condition = "Critical"
)

// Conditions lists every valid condition, best first.
var Conditions = []Condition{
	ConditionExcellent,
	ConditionGood,
	ConditionFair,
	ConditionPoor,
	ConditionCritical,
}

// ParseCondition matches s case-insensitively against the known conditions.
func ParseCondition(s string) (Condition, error) {
	v := strings.TrimSpace(s)
	for _, c := range Conditions {
		if strings.EqualFold(v, string(c)) {
			return c, nil
		}
	}
	return "", eris.Errorf("asset: unknown condition %q", s)
}

// PavementType is the surface construction of a road section.
type PavementType string

const (
	PavementConcrete  PavementType = "Concrete"
	PavementComposite PavementType = "Composite"
	PavementAsphalt   PavementType = "Asphalt"
	PavementOther     PavementType = "Other"
)

// ParsePavement maps source pavement codes onto PavementType. Unrecognized
// or empty values map to PavementOther.
func ParsePavement(s string) PavementType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PCC", "CONCRETE":
		return PavementConcrete
	case "COMP", "COMPOSITE":
		return PavementComposite
	case "AC", "ASPHALT", "HMA":
		return PavementAsphalt
	default:
		return PavementOther
	}
}

// Bridge is a single bridge structure.
type Bridge struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Region         string    `json:"region"`
	Condition      Condition `json:"condition"`
	ConditionIndex *float64  `json:"condition_index,omitempty"`
	YearBuilt      *int      `json:"year_built,omitempty"`
	Highway        string    `json:"highway,omitempty"`
	StructureType  string    `json:"structure_type,omitempty"`
	LastInspection string    `json:"last_inspection,omitempty"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
}

// Road is a single pavement section along a highway.
type Road struct {
	ID          string       `json:"id"`
	Highway     string       `json:"highway"`
	Region      string       `json:"region"`
	Direction   string       `json:"direction,omitempty"`
	SectionFrom string       `json:"section_from,omitempty"`
	SectionTo   string       `json:"section_to,omitempty"`
	KmStart     *float64     `json:"km_start,omitempty"`
	KmEnd       *float64     `json:"km_end,omitempty"`
	Condition   Condition    `json:"condition"`
	PCI         *float64     `json:"pci,omitempty"`
	IRI         *float64     `json:"iri,omitempty"`
	DMI         *float64     `json:"dmi,omitempty"`
	Pavement    PavementType `json:"pavement_type,omitempty"`
	AADT        *int         `json:"aadt,omitempty"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
}

// LengthKm returns the section length. Sections with unknown or zero extent
// are treated as one kilometre.
func (r *Road) LengthKm() float64 {
	if r.KmStart == nil || r.KmEnd == nil {
		return 1.0
	}
	l := *r.KmEnd - *r.KmStart
	if l < 0 {
		l = -l
	}
	if l == 0 {
		return 1.0
	}
	return l
}

// Record is a tagged union of Bridge and Road. Exactly one of Bridge or Road
// is set, matching Kind.
type Record struct {
	Kind   Kind    `json:"kind"`
	Bridge *Bridge `json:"bridge,omitempty"`
	Road   *Road   `json:"road,omitempty"`
}

// FromBridge wraps b in a Record.
func FromBridge(b Bridge) Record {
	return Record{Kind: KindBridge, Bridge: &b}
}

// FromRoad wraps r in a Record.
func FromRoad(r Road) Record {
	return Record{Kind: KindRoad, Road: &r}
}

// ID returns the identifier of the wrapped asset.
func (r Record) ID() string {
	switch r.Kind {
	case KindBridge:
		return r.Bridge.ID
	case KindRoad:
		return r.Road.ID
	}
	return ""
}

// Region returns the region of the wrapped asset.
func (r Record) Region() string {
	switch r.Kind {
	case KindBridge:
		return r.Bridge.Region
	case KindRoad:
		return r.Road.Region
	}
	return ""
}

// Condition returns the condition rating of the wrapped asset.
func (r Record) Condition() Condition {
	switch r.Kind {
	case KindBridge:
		return r.Bridge.Condition
	case KindRoad:
		return r.Road.Condition
	}
	return ""
}

// Label is a short human-readable name: bridge name or road highway.
func (r Record) Label() string {
	switch r.Kind {
	case KindBridge:
		return r.Bridge.Name
	case KindRoad:
		return r.Road.Highway
	}
	return ""
}

// Age returns the asset age relative to year and whether it is known.
// Road sections carry no construction year.
func (r Record) Age(year int) (int, bool) {
	if r.Kind != KindBridge || r.Bridge.YearBuilt == nil {
		return 0, false
	}
	return year - *r.Bridge.YearBuilt, true
}

// FieldError reports a single malformed field found at ingestion.
type FieldError struct {
	Row    int
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: field %q: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Validate checks the invariants the scoring core relies on. The returned
// error is a *FieldError naming the first offending field.
func (r Record) Validate() error {
	switch r.Kind {
	case KindBridge:
		if r.Bridge == nil || r.Road != nil {
			return &FieldError{Field: "kind", Reason: "bridge record must carry only bridge data"}
		}
		return r.Bridge.validate()
	case KindRoad:
		if r.Road == nil || r.Bridge != nil {
			return &FieldError{Field: "kind", Reason: "road record must carry only road data"}
		}
		return r.Road.validate()
	default:
		return &FieldError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", r.Kind)}
	}
}

func (b *Bridge) validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return &FieldError{Field: "id", Reason: "required"}
	}
	if strings.TrimSpace(b.Region) == "" {
		return &FieldError{Field: "region", Reason: "required"}
	}
	if err := validCondition(b.Condition); err != nil {
		return err
	}
	if b.ConditionIndex != nil && (*b.ConditionIndex < 0 || *b.ConditionIndex > 100) {
		return &FieldError{Field: "condition_index", Reason: "must be between 0 and 100"}
	}
	if b.YearBuilt != nil && *b.YearBuilt <= 0 {
		return &FieldError{Field: "year_built", Reason: "must be positive"}
	}
	return nil
}

func (r *Road) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &FieldError{Field: "id", Reason: "required"}
	}
	if strings.TrimSpace(r.Region) == "" {
		return &FieldError{Field: "region", Reason: "required"}
	}
	if err := validCondition(r.Condition); err != nil {
		return err
	}
	if r.PCI != nil && (*r.PCI < 0 || *r.PCI > 100) {
		return &FieldError{Field: "pci", Reason: "must be between 0 and 100"}
	}
	if r.IRI != nil && *r.IRI < 0 {
		return &FieldError{Field: "iri", Reason: "must be >= 0"}
	}
	if r.DMI != nil && (*r.DMI < 0 || *r.DMI > 100) {
		return &FieldError{Field: "dmi", Reason: "must be between 0 and 100"}
	}
	if r.AADT != nil && *r.AADT < 0 {
		return &FieldError{Field: "aadt", Reason: "must be >= 0"}
	}
	return nil
}

func validCondition(c Condition) error {
	for _, known := range Conditions {
		if c == known {
			return nil
		}
	}
	return &FieldError{Field: "condition", Reason: fmt.Sprintf("unknown condition %q", c)}
}
