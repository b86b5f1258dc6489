package activity

import (
	"strconv"
	"strings"
	"time"
)

// SchemaVersion identifies the canonical activity log layout below.
const SchemaVersion = 2

// Activity log column names.
const (
	ColDate           = "date"
	ColTimestamp      = "timestamp"
	ColExerciseType   = "exercise_type"
	ColDuration       = "duration"
	ColDistance       = "distance"
	ColAvgHR          = "avg_hr"
	ColMaxHR          = "max_hr"
	ColZ2Percent      = "z2_percent"
	ColAboveZ2Percent = "above_z2_percent"
	ColBelowZ2Percent = "below_z2_percent"
	ColMAFZonePercent = "maf_zone_percent"
	ColPace           = "pace"
	ColRoute          = "route"
	ColNotes          = "notes"
	ColIncomplete     = "isIncomplete"
	ColItemID         = "itemId"
	ColSource         = "source"
)

// Columns is the canonical header written to an empty activity log.
var Columns = []string{
	ColDate, ColTimestamp, ColExerciseType, ColDuration, ColDistance,
	ColAvgHR, ColMaxHR, ColZ2Percent, ColAboveZ2Percent, ColBelowZ2Percent,
	ColMAFZonePercent, ColPace, ColRoute, ColNotes, ColIncomplete, ColItemID,
	ColSource,
}

// aliases maps header spellings seen in older sheets to canonical names.
var aliases = map[string]string{
	"mafzonepercent": ColMAFZonePercent,
	"isincomplete":   ColIncomplete,
	"itemid":         ColItemID,
	"exercise type":  ColExerciseType,
}

// Fields is an entry serialized by column name.
type Fields map[string]string

// Layout maps column names to positions for one region's header row.
type Layout struct {
	header []string
	index  map[string]int
}

// NewLayout builds a layout from a header row. Columns are matched by name,
// ignoring case and surrounding space.
func NewLayout(header []string) Layout {
	l := Layout{header: append([]string(nil), header...), index: make(map[string]int, len(header))}
	for i, h := range header {
		name := canonicalColumn(h)
		if name == "" {
			continue
		}
		if _, dup := l.index[name]; !dup {
			l.index[name] = i
		}
	}
	return l
}

// DefaultLayout is the layout of a freshly created log.
func DefaultLayout() Layout {
	return NewLayout(Columns)
}

func (l Layout) Header() []string {
	return append([]string(nil), l.header...)
}

func (l Layout) Has(column string) bool {
	_, ok := l.index[column]
	return ok
}

// Index returns the position of column in the header.
func (l Layout) Index(column string) (int, bool) {
	i, ok := l.index[column]
	return i, ok
}

// Row lays fields out in header order. Columns absent from the header are
// dropped and header columns without a field stay blank.
func (l Layout) Row(f Fields) []string {
	row := make([]string, len(l.header))
	for name, value := range f {
		if i, ok := l.index[name]; ok {
			row[i] = value
		}
	}
	return row
}

// Fields reads a row back into named fields. Short rows are padded.
func (l Layout) Fields(row []string) Fields {
	f := make(Fields, len(l.index))
	for name, i := range l.index {
		if i < len(row) {
			f[name] = strings.TrimSpace(row[i])
		} else {
			f[name] = ""
		}
	}
	return f
}

func canonicalColumn(h string) string {
	h = strings.TrimSpace(h)
	lower := strings.ToLower(h)
	if alias, ok := aliases[lower]; ok {
		return alias
	}
	for _, c := range Columns {
		if strings.ToLower(c) == lower {
			return c
		}
	}
	return lower
}

// Codec converts entries to and from named fields. Location is the reporting
// time zone used to interpret date and timestamp cells.
type Codec struct {
	Location *time.Location
}

func (c Codec) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Encode renders an entry. Unknown values become "N/A".
func (c Codec) Encode(e Entry) Fields {
	key := e.Key()
	distance := e.DistanceKM
	if !distance.Valid() {
		distance = Measured(0)
	}
	return Fields{
		ColDate:           key.Date,
		ColTimestamp:      key.Timestamp,
		ColExerciseType:   e.ExerciseType,
		ColDuration:       e.Duration.Format(),
		ColDistance:       distance.Format(2),
		ColAvgHR:          e.AvgHR.Format(0),
		ColMaxHR:          e.MaxHR.Format(0),
		ColZ2Percent:      e.Z2Percent.Format(2),
		ColAboveZ2Percent: e.AboveZ2Percent.Format(2),
		ColBelowZ2Percent: e.BelowZ2Percent.Format(2),
		ColMAFZonePercent: e.MAFZonePercent.Format(1),
		ColPace:           e.Pace.Format(),
		ColRoute:          e.Route,
		ColNotes:          e.Notes,
		ColIncomplete:     strconv.FormatBool(e.Incomplete),
		ColItemID:         e.ItemID,
		ColSource:         e.Source,
	}
}

// Decode reads stored fields. Cells that fail to parse are coerced to
// unavailable rather than rejected; their column names are returned.
func (c Codec) Decode(f Fields) (Entry, []string) {
	var coerced []string
	metric := func(col string) Metric {
		m, ok := ParseMetric(f[col])
		if !ok {
			coerced = append(coerced, col)
		}
		return m
	}
	span := func(col string) Span {
		s, ok := ParseSpan(f[col])
		if !ok {
			coerced = append(coerced, col)
		}
		return s
	}

	e := Entry{
		ExerciseType:   f[ColExerciseType],
		Duration:       span(ColDuration),
		DistanceKM:     metric(ColDistance),
		AvgHR:          metric(ColAvgHR),
		MaxHR:          metric(ColMaxHR),
		Z2Percent:      metric(ColZ2Percent),
		AboveZ2Percent: metric(ColAboveZ2Percent),
		BelowZ2Percent: metric(ColBelowZ2Percent),
		MAFZonePercent: metric(ColMAFZonePercent),
		Pace:           span(ColPace),
		Route:          f[ColRoute],
		Notes:          f[ColNotes],
		ItemID:         f[ColItemID],
		Source:         f[ColSource],
	}
	if start, ok := (Key{Date: f[ColDate], Timestamp: f[ColTimestamp]}).Time(c.location()); ok {
		e.StartedAt = start
	} else if f[ColDate] != "" {
		coerced = append(coerced, ColDate)
	}
	if v := f[ColIncomplete]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			coerced = append(coerced, ColIncomplete)
		}
		e.Incomplete = b
	}
	return e, coerced
}
