package extract

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ErrSeriesLengthMismatch signals that the monthly endpoint's date array
// and value array disagree in length, so they cannot be zipped. The
// affected category yields zero observations; siblings continue.
var ErrSeriesLengthMismatch = eris.New("extract: date and value series lengths differ")

// Observation is one (label, value) point from the monthly series.
// Value is nil where the source published a null point.
type Observation struct {
	Label string
	Value *float64
}

type seriesPayload struct {
	// Categorias arrives as a JSON-encoded array of strings inside a
	// JSON string, so it is decoded twice.
	Categorias string `json:"categorias"`
	Series     []struct {
		Data []seriesPoint `json:"data"`
	} `json:"series"`
}

type seriesPoint struct {
	X json.RawMessage `json:"x"`
	Y *float64        `json:"y"`
}

// Series decodes a monthly time-series response and zips the date labels
// with the first series' value points. The label and value arrays must
// have equal length; a mismatch aborts this category's extraction.
func Series(body []byte) ([]Observation, error) {
	var payload seriesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "extract: decode series payload")
	}

	var labels []string
	if payload.Categorias != "" {
		if err := json.Unmarshal([]byte(payload.Categorias), &labels); err != nil {
			return nil, eris.Wrap(err, "extract: decode embedded date array")
		}
	}

	if len(payload.Series) == 0 || len(labels) == 0 {
		return nil, nil
	}

	points := payload.Series[0].Data
	if len(labels) != len(points) {
		return nil, eris.Wrapf(ErrSeriesLengthMismatch, "%d labels vs %d points", len(labels), len(points))
	}

	obs := make([]Observation, 0, len(points))
	for i, p := range points {
		obs = append(obs, Observation{Label: labels[i], Value: p.Y})
	}
	return obs, nil
}

// FlexText holds a JSON field that may arrive as a number, a string, or
// null, preserved as text for the assembler's locale normalizer.
type FlexText string

func (t *FlexText) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = FlexText(s)
		return nil
	}
	*t = FlexText(bytes.TrimSpace(b))
	return nil
}

// WeeklyItem is one category entry from the current-period listing.
type WeeklyItem struct {
	Category string   `json:"categoria"`
	Price    FlexText `json:"precio_semana_1"`
	Count    FlexText `json:"cantidad_semana_1"`
	Change   FlexText `json:"variacion_precio_semana_1"`
}

// WeeklyListing is the decoded current-period response. WeekStart and
// WeekEnd are partial "dd/mm" fragments; the assembler completes them.
type WeeklyListing struct {
	WeekStart string
	WeekEnd   string
	Items     []WeeklyItem
}

type weeklyPayload struct {
	SemanaActual struct {
		Desde string `json:"desde"`
		Hasta string `json:"hasta"`
	} `json:"semana_actual"`
	Data []WeeklyItem `json:"data"`
}

// Listing decodes a current-period listing response.
func Listing(body []byte) (WeeklyListing, error) {
	var payload weeklyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WeeklyListing{}, eris.Wrap(err, "extract: decode listing payload")
	}
	return WeeklyListing{
		WeekStart: payload.SemanaActual.Desde,
		WeekEnd:   payload.SemanaActual.Hasta,
		Items:     payload.Data,
	}, nil
}
