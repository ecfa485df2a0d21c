package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/sells-group/prism/internal/asset"
)

// roadIDPrefix marks road-section identifiers so they never collide with
// bridge identifiers in a mixed report.
const roadIDPrefix = "RD-"

// missing reports whether a raw cell carries no value.
func missing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "-", "n/a", "na", "null", "none":
		return true
	}
	return false
}

// rowParser turns canonical field values into records. It is not safe for
// concurrent use.
type rowParser struct {
	kind          asset.Kind
	defaultRegion string
	resolve       func(string) (string, bool)
}

func fieldErr(row int, field, reason string, args ...any) *asset.FieldError {
	return &asset.FieldError{Row: row, Field: field, Reason: fmt.Sprintf(reason, args...)}
}

func (p *rowParser) parse(row int, v map[string]string) (asset.Record, *asset.FieldError) {
	var (
		rec asset.Record
		fe  *asset.FieldError
	)
	if p.kind == asset.KindRoad {
		rec, fe = p.road(row, v)
	} else {
		rec, fe = p.bridge(row, v)
	}
	if fe != nil {
		return asset.Record{}, fe
	}
	if err := rec.Validate(); err != nil {
		if ve, ok := err.(*asset.FieldError); ok {
			ve.Row = row
			return asset.Record{}, ve
		}
		return asset.Record{}, fieldErr(row, "record", "%v", err)
	}
	return rec, nil
}

func (p *rowParser) region(row int, raw string) (string, *asset.FieldError) {
	if missing(raw) {
		raw = p.defaultRegion
	}
	if missing(raw) {
		return "", fieldErr(row, fRegion, "required")
	}
	if p.resolve == nil {
		return strings.TrimSpace(raw), nil
	}
	r, ok := p.resolve(raw)
	if !ok {
		return "", fieldErr(row, fRegion, "unknown region %q", raw)
	}
	return r, nil
}

func condition(row int, raw string) (asset.Condition, *asset.FieldError) {
	if missing(raw) {
		return "", fieldErr(row, fCondition, "required")
	}
	c, err := asset.ParseCondition(raw)
	if err != nil {
		return "", fieldErr(row, fCondition, "unknown condition %q", raw)
	}
	return c, nil
}

// number parses a decimal, tolerating thousands separators and a trailing
// percent sign.
func number(row int, field, raw string) (*float64, *asset.FieldError) {
	if missing(raw) {
		return nil, nil
	}
	s := strings.NewReplacer(",", "", " ", "", "%", "").Replace(raw)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fieldErr(row, field, "not a number: %q", raw)
	}
	return &f, nil
}

// integer parses a whole number. Spreadsheet exports render integers as
// "1960.0", which is accepted.
func integer(row int, field, raw string) (*int, *asset.FieldError) {
	f, fe := number(row, field, raw)
	if fe != nil || f == nil {
		return nil, fe
	}
	if *f != math.Trunc(*f) {
		return nil, fieldErr(row, field, "not a whole number: %q", raw)
	}
	if *f < math.MinInt || *f >= math.MaxInt {
		return nil, fieldErr(row, field, "out of range: %q", raw)
	}
	n := int(*f)
	return &n, nil
}

func coordinate(row int, field, raw string) (float64, *asset.FieldError) {
	f, fe := number(row, field, raw)
	if fe != nil || f == nil {
		return 0, fe
	}
	return *f, nil
}

func (p *rowParser) bridge(row int, v map[string]string) (asset.Record, *asset.FieldError) {
	b := asset.Bridge{
		ID:             v[fID],
		Name:           v[fName],
		Highway:        v[fHighway],
		StructureType:  v[fStructureType],
		LastInspection: v[fLastInspection],
	}
	if missing(b.ID) {
		return asset.Record{}, fieldErr(row, fID, "required")
	}

	var fe *asset.FieldError
	if b.Region, fe = p.region(row, v[fRegion]); fe != nil {
		return asset.Record{}, fe
	}
	if b.Condition, fe = condition(row, v[fCondition]); fe != nil {
		return asset.Record{}, fe
	}
	if b.ConditionIndex, fe = number(row, fConditionIndex, v[fConditionIndex]); fe != nil {
		return asset.Record{}, fe
	}
	if b.YearBuilt, fe = integer(row, fYearBuilt, v[fYearBuilt]); fe != nil {
		return asset.Record{}, fe
	}
	if b.Latitude, fe = coordinate(row, fLatitude, v[fLatitude]); fe != nil {
		return asset.Record{}, fe
	}
	if b.Longitude, fe = coordinate(row, fLongitude, v[fLongitude]); fe != nil {
		return asset.Record{}, fe
	}
	return asset.FromBridge(b), nil
}

func (p *rowParser) road(row int, v map[string]string) (asset.Record, *asset.FieldError) {
	r := asset.Road{
		Highway:     v[fHighway],
		Direction:   v[fDirection],
		SectionFrom: v[fSectionFrom],
		SectionTo:   v[fSectionTo],
		Pavement:    asset.ParsePavement(v[fPavement]),
	}
	if missing(r.Highway) {
		return asset.Record{}, fieldErr(row, fHighway, "required")
	}

	var fe *asset.FieldError
	if r.Region, fe = p.region(row, v[fRegion]); fe != nil {
		return asset.Record{}, fe
	}
	if r.Condition, fe = condition(row, v[fCondition]); fe != nil {
		return asset.Record{}, fe
	}
	if r.KmStart, fe = number(row, fKmStart, v[fKmStart]); fe != nil {
		return asset.Record{}, fe
	}
	if r.KmEnd, fe = number(row, fKmEnd, v[fKmEnd]); fe != nil {
		return asset.Record{}, fe
	}
	if r.PCI, fe = number(row, fPCI, v[fPCI]); fe != nil {
		return asset.Record{}, fe
	}
	if r.IRI, fe = number(row, fIRI, v[fIRI]); fe != nil {
		return asset.Record{}, fe
	}
	if r.DMI, fe = number(row, fDMI, v[fDMI]); fe != nil {
		return asset.Record{}, fe
	}
	if r.AADT, fe = integer(row, fAADT, v[fAADT]); fe != nil {
		return asset.Record{}, fe
	}
	if r.Latitude, fe = coordinate(row, fLatitude, v[fLatitude]); fe != nil {
		return asset.Record{}, fe
	}
	if r.Longitude, fe = coordinate(row, fLongitude, v[fLongitude]); fe != nil {
		return asset.Record{}, fe
	}

	r.ID = roadID(v[fID], &r)
	return asset.FromRoad(r), nil
}

// roadID prefixes source identifiers with RD-. Sections without one get an
// identifier derived from highway, direction and starting kilometre.
func roadID(raw string, r *asset.Road) string {
	raw = strings.TrimSpace(raw)
	if missing(raw) {
		parts := []string{slug(r.Highway)}
		if r.Direction != "" {
			parts = append(parts, slug(r.Direction))
		}
		if r.KmStart != nil {
			parts = append(parts, strconv.FormatFloat(*r.KmStart, 'f', -1, 64))
		}
		raw = strings.Join(parts, "-")
	}
	if strings.HasPrefix(strings.ToUpper(raw), roadIDPrefix) {
		return roadIDPrefix + raw[len(roadIDPrefix):]
	}
	return roadIDPrefix + raw
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
