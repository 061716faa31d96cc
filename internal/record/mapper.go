package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/starford/lookout/internal/apperr"
)

// fieldTable lists, in priority order, the document keys consulted for each
// canonical field of one source kind.
type fieldTable struct {
	id       []string
	name     []string
	image    []string
	when     []string
	location []string
	score    string
	phone    []string
	status   string
	source   string
}

var (
	commonID       = []string{"_id", "id"}
	commonName     = []string{"full_name", "name"}
	commonImage    = []string{"photo_url", "image_url"}
	commonWhen     = []string{"missing_since", "created"}
	commonLocation = []string{"last_seen_location", "search_location", "location"}
	commonPhone    = []string{"contact", "phone_number"}
)

var tables = map[Kind]fieldTable{
	KindOwnReport: {
		id:       commonID,
		name:     commonName,
		image:    commonImage,
		when:     commonWhen,
		location: commonLocation,
		phone:    commonPhone,
		status:   "found",
	},
	KindSighting: {
		id:       commonID,
		name:     commonName,
		image:    commonImage,
		when:     commonWhen,
		location: commonLocation,
		score:    "combined_score",
		phone:    commonPhone,
		status:   "resolved",
	},
	KindMatchCandidate: {
		id:       commonID,
		name:     commonName,
		image:    commonImage,
		when:     commonWhen,
		location: commonLocation,
		score:    "combined_score",
		phone:    commonPhone,
		source:   "source_report_id",
	},
}

// Map converts one raw backend document into a Record using the resolution
// table for kind.
func Map(doc Document, kind Kind) (Record, error) {
	t, ok := tables[kind]
	if !ok {
		return Record{}, fmt.Errorf("record: unknown kind %q", kind)
	}

	id, err := resolveID(doc, t.id)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:           id,
		Kind:         kind,
		DisplayName:  firstString(doc, t.name),
		Description:  firstString(doc, []string{"description"}),
		ImageURI:     firstString(doc, t.image),
		When:         firstString(doc, t.when),
		Location:     formatLocation(firstObject(doc, t.location)),
		ContactPhone: firstString(doc, t.phone),
	}
	if t.score != "" {
		rec.Score = roundScore(doc[t.score])
	}
	if t.status != "" {
		rec.Status, _ = doc[t.status].(bool)
	}
	if t.source != "" {
		if src, err := ExtractID(doc[t.source]); err == nil {
			rec.SourceReportID = src
		}
	}
	return rec, nil
}

// MapAll maps every document, skipping the ones without a usable identifier.
// One bad record never hides the rest of the list.
func MapAll(docs []Document, kind Kind, logger *slog.Logger) []Record {
	out := make([]Record, 0, len(docs))
	for i, doc := range docs {
		rec, err := Map(doc, kind)
		if err != nil {
			if logger != nil {
				logger.Warn("record: skipping document",
					slog.String("kind", string(kind)),
					slog.Int("index", i),
					slog.String("error", err.Error()))
			}
			continue
		}
		out = append(out, rec)
	}
	return out
}

func resolveID(doc Document, keys []string) (string, error) {
	for _, k := range keys {
		v, ok := doc[k]
		if !ok || v == nil {
			continue
		}
		id, err := ExtractID(v)
		if errors.Is(err, apperr.ErrMissingIdentifier) {
			continue
		}
		return id, err
	}
	return "", apperr.ErrMissingIdentifier
}

func firstString(doc Document, keys []string) string {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func firstObject(doc Document, keys []string) map[string]any {
	for _, k := range keys {
		if m, ok := doc[k].(map[string]any); ok {
			return m
		}
	}
	return nil
}

// formatLocation renders "<lat>, <lon>" with 4 decimal places, or "" when
// either coordinate is missing or not numeric.
func formatLocation(loc map[string]any) string {
	if loc == nil {
		return ""
	}
	lat, ok := toDecimal(loc["lat"])
	if !ok {
		return ""
	}
	lon, ok := toDecimal(loc["lon"])
	if !ok {
		return ""
	}
	return lat.StringFixed(4) + ", " + lon.StringFixed(4)
}

func roundScore(v any) float64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0
	}
	return d.Round(2).InexactFloat64()
}

// toDecimal reads a JSON number without going through binary floating point
// when the decoder preserved the literal.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	}
	return decimal.Zero, false
}
