package cost

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prism/internal/asset"
)

// Tables holds every business constant the estimator applies. Values are
// plain lookup data so a deployment can override them from YAML.
type Tables struct {
	BridgeBaseCost map[string]float64 `yaml:"bridge_base_cost" mapstructure:"bridge_base_cost"`
	RoadCostPerKm  map[string]float64 `yaml:"road_cost_per_km" mapstructure:"road_cost_per_km"`
	RegionAliases  map[string]string  `yaml:"region_aliases" mapstructure:"region_aliases"`

	BridgeCondition map[asset.Condition]float64    `yaml:"bridge_condition" mapstructure:"bridge_condition"`
	RoadCondition   map[asset.Condition]float64    `yaml:"road_condition" mapstructure:"road_condition"`
	Pavement        map[asset.PavementType]float64 `yaml:"pavement" mapstructure:"pavement"`

	MajorHighways   []string `yaml:"major_highways" mapstructure:"major_highways"`
	MajorHighwayMul float64  `yaml:"major_highway_mul" mapstructure:"major_highway_mul"`
	NamedHighwayMul float64  `yaml:"named_highway_mul" mapstructure:"named_highway_mul"`
	AgeOver50Mul    float64  `yaml:"age_over_50_mul" mapstructure:"age_over_50_mul"`
	AgeOver40Mul    float64  `yaml:"age_over_40_mul" mapstructure:"age_over_40_mul"`
	HighTrafficAADT int      `yaml:"high_traffic_aadt" mapstructure:"high_traffic_aadt"`
	HighTrafficMul  float64  `yaml:"high_traffic_mul" mapstructure:"high_traffic_mul"`
}

// DefaultTables returns the built-in regional cost tables (CAD).
func DefaultTables() Tables {
	return Tables{
		BridgeBaseCost: map[string]float64{
			"Ontario":                   4_200_000,
			"Quebec":                    3_800_000,
			"British Columbia":          4_500_000,
			"Alberta":                   4_000_000,
			"Manitoba":                  3_500_000,
			"Saskatchewan":              3_200_000,
			"Nova Scotia":               3_000_000,
			"New Brunswick":             2_900_000,
			"Newfoundland and Labrador": 3_300_000,
			"Prince Edward Island":      2_700_000,
			"Territories":               5_500_000,
		},
		RoadCostPerKm: map[string]float64{
			"Ontario":                   850_000,
			"Quebec":                    780_000,
			"British Columbia":          920_000,
			"Alberta":                   800_000,
			"Manitoba":                  720_000,
			"Saskatchewan":              680_000,
			"Nova Scotia":               650_000,
			"New Brunswick":             620_000,
			"Newfoundland and Labrador": 700_000,
			"Prince Edward Island":      580_000,
			"Territories":               1_100_000,
		},
		RegionAliases: map[string]string{
			"on":                    "Ontario",
			"qc":                    "Quebec",
			"bc":                    "British Columbia",
			"ab":                    "Alberta",
			"mb":                    "Manitoba",
			"sk":                    "Saskatchewan",
			"ns":                    "Nova Scotia",
			"nb":                    "New Brunswick",
			"nl":                    "Newfoundland and Labrador",
			"newfoundland":          "Newfoundland and Labrador",
			"pe":                    "Prince Edward Island",
			"pei":                   "Prince Edward Island",
			"yukon":                 "Territories",
			"yt":                    "Territories",
			"northwest territories": "Territories",
			"nt":                    "Territories",
			"nunavut":               "Territories",
			"nu":                    "Territories",
		},
		BridgeCondition: map[asset.Condition]float64{
			asset.ConditionCritical: 1.30,
			asset.ConditionPoor:     1.15,
			asset.ConditionGood:     0.70,
		},
		RoadCondition: map[asset.Condition]float64{
			asset.ConditionCritical: 1.50,
			asset.ConditionPoor:     1.25,
			asset.ConditionGood:     0.60,
		},
		Pavement: map[asset.PavementType]float64{
			asset.PavementConcrete:  1.40,
			asset.PavementComposite: 1.20,
		},
		MajorHighways:   []string{"401", "400", "QEW", "TRANS-CANADA"},
		MajorHighwayMul: 1.50,
		NamedHighwayMul: 1.20,
		AgeOver50Mul:    1.20,
		AgeOver40Mul:    1.10,
		HighTrafficAADT: 30_000,
		HighTrafficMul:  1.15,
	}
}

// LoadTables reads a YAML tables file over DefaultTables. Scalars in the file
// replace defaults; map entries are merged into the default maps.
func LoadTables(path string) (Tables, error) {
	t := DefaultTables()
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, eris.Wrapf(err, "cost: read tables %s", path)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, eris.Wrapf(err, "cost: parse tables %s", path)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate checks that every region has positive bridge and road costs and
// that multipliers are positive.
func (t Tables) Validate() error {
	var errs []string

	if len(t.BridgeBaseCost) == 0 {
		errs = append(errs, "bridge_base_cost must not be empty")
	}
	for region, c := range t.BridgeBaseCost {
		if c <= 0 {
			errs = append(errs, "bridge_base_cost["+region+"] must be > 0")
		}
		if _, ok := t.RoadCostPerKm[region]; !ok {
			errs = append(errs, "road_cost_per_km missing region "+region)
		}
	}
	for region, c := range t.RoadCostPerKm {
		if c <= 0 {
			errs = append(errs, "road_cost_per_km["+region+"] must be > 0")
		}
	}
	for alias, region := range t.RegionAliases {
		if _, ok := t.BridgeBaseCost[region]; !ok {
			errs = append(errs, "region_aliases["+alias+"] points at unknown region "+region)
		}
	}
	for _, m := range []float64{t.MajorHighwayMul, t.NamedHighwayMul, t.AgeOver50Mul, t.AgeOver40Mul, t.HighTrafficMul} {
		if m <= 0 {
			errs = append(errs, "highway, age and traffic multipliers must be > 0")
			break
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("cost: tables validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Regions returns the canonical region names in sorted order.
func (t Tables) Regions() []string {
	out := make([]string, 0, len(t.BridgeBaseCost))
	for r := range t.BridgeBaseCost {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ResolveRegion maps a region name or alias onto its canonical name.
func (t Tables) ResolveRegion(name string) (string, bool) {
	n := strings.TrimSpace(name)
	for r := range t.BridgeBaseCost {
		if strings.EqualFold(r, n) {
			return r, true
		}
	}
	if r, ok := t.RegionAliases[strings.ToLower(n)]; ok {
		return r, true
	}
	return "", false
}
