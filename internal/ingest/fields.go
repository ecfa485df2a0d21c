package ingest

import (
	"strings"
	"unicode"

	"github.com/sells-group/prism/internal/asset"
)

// Canonical column names. Source headers are normalized and mapped onto these
// through fieldAliases; nothing outside this package sees source spellings.
const (
	fID             = "id"
	fName           = "name"
	fRegion         = "region"
	fCondition      = "condition"
	fConditionIndex = "condition_index"
	fYearBuilt      = "year_built"
	fHighway        = "highway"
	fStructureType  = "structure_type"
	fLastInspection = "last_inspection"
	fLatitude       = "latitude"
	fLongitude      = "longitude"
	fDirection      = "direction"
	fSectionFrom    = "section_from"
	fSectionTo      = "section_to"
	fKmStart        = "km_start"
	fKmEnd          = "km_end"
	fPCI            = "pci"
	fIRI            = "iri"
	fDMI            = "dmi"
	fPavement       = "pavement_type"
	fAADT           = "aadt"
)

var fieldAliases = map[string][]string{
	fID:             {"id", "asset_id", "bridge_id", "structure_id", "road_id", "section_id"},
	fName:           {"name", "bridge_name", "structure_name"},
	fRegion:         {"region", "province", "jurisdiction"},
	fCondition:      {"condition", "condition_rating", "rating", "overall_condition"},
	fConditionIndex: {"condition_index", "bci", "index"},
	fYearBuilt:      {"year_built", "built", "construction_year", "year_constructed"},
	fHighway:        {"highway", "highway_name", "route", "hwy"},
	fStructureType:  {"structure_type", "bridge_type", "type"},
	fLastInspection: {"last_inspection", "last_inspection_date", "inspection_date", "inspected"},
	fLatitude:       {"latitude", "lat"},
	fLongitude:      {"longitude", "lon", "lng", "long"},
	fDirection:      {"direction", "dir"},
	fSectionFrom:    {"section_from", "from", "from_location"},
	fSectionTo:      {"section_to", "to", "to_location"},
	fKmStart:        {"km_start", "from_km", "start_km", "begin_km"},
	fKmEnd:          {"km_end", "to_km", "end_km"},
	fPCI:            {"pci", "pavement_condition_index"},
	fIRI:            {"iri", "roughness", "international_roughness_index"},
	fDMI:            {"dmi", "distress_manifestation_index"},
	fPavement:       {"pavement_type", "pavement", "surface_type"},
	fAADT:           {"aadt", "traffic", "daily_traffic", "annual_average_daily_traffic"},
}

// aliasIndex maps every normalized alias onto its canonical field.
var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for field, aliases := range fieldAliases {
		for _, a := range aliases {
			idx[a] = field
		}
	}
	return idx
}()

// roadOnly fields only appear in road-section sources.
var roadOnly = []string{fPCI, fIRI, fDMI, fKmStart, fKmEnd, fSectionFrom, fSectionTo, fPavement, fAADT}

// normalizeHeader lowercases h and collapses every run of non-alphanumeric
// characters to a single underscore: "Year Built" and "year-built" both
// become "year_built".
func normalizeHeader(h string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// canonicalField returns the canonical name for a source column.
func canonicalField(header string) (string, bool) {
	f, ok := aliasIndex[normalizeHeader(header)]
	return f, ok
}

// columnMap records which source column feeds each canonical field. The first
// column mapping to a field wins.
type columnMap struct {
	index   map[string]int
	ignored []string
}

func mapColumns(header []string) columnMap {
	cm := columnMap{index: make(map[string]int, len(header))}
	for i, h := range header {
		f, ok := canonicalField(h)
		if !ok {
			if strings.TrimSpace(h) != "" {
				cm.ignored = append(cm.ignored, h)
			}
			continue
		}
		if _, dup := cm.index[f]; !dup {
			cm.index[f] = i
		}
	}
	return cm
}

func (cm columnMap) has(field string) bool {
	_, ok := cm.index[field]
	return ok
}

// values extracts the canonical field values of one row.
func (cm columnMap) values(cells []string) map[string]string {
	out := make(map[string]string, len(cm.index))
	for f, i := range cm.index {
		if i < len(cells) {
			out[f] = strings.TrimSpace(cells[i])
		}
	}
	return out
}

// detectKind picks the asset class from the columns present.
func detectKind(has func(string) bool) asset.Kind {
	for _, f := range roadOnly {
		if has(f) {
			return asset.KindRoad
		}
	}
	return asset.KindBridge
}
