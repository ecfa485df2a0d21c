package report

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/rotisserie/eris"
)

// CSVHeader lists the export columns in order.
var CSVHeader = []string{
	"rank", "id", "name", "asset_type", "condition",
	"risk_score", "estimated_cost", "rcr", "justification",
}

// CSV renders the selected items of an optimization report, one row per item
// in selection order. Values are copied from the report items, so the CSV and
// JSON exports always agree.
func CSV(o Optimization) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVHeader); err != nil {
		return nil, eris.Wrap(err, "report: write csv header")
	}
	for _, it := range o.Selected() {
		row := []string{
			strconv.Itoa(it.Rank),
			it.ID,
			it.DisplayName(),
			it.Type,
			it.Condition,
			formatFloat(it.RiskScore),
			formatFloat(it.EstimatedCost),
			formatFloat(it.RiskCostRatio),
			it.Justification,
		}
		if err := w.Write(row); err != nil {
			return nil, eris.Wrapf(err, "report: write csv row %s", it.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "report: flush csv")
	}
	return buf.Bytes(), nil
}

// formatFloat uses the shortest representation, matching encoding/json for
// the magnitudes found in reports.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
