package fitnesssyncer

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"trainlog/internal/activity"
)

// Item is a FitnessSyncer source item as returned by the API.
type Item struct {
	ItemID                string      `json:"itemId"`
	Date                  *EpochMilli `json:"date,omitempty"`
	Duration              *float64    `json:"duration,omitempty"`
	DistanceKM            *float64    `json:"distanceKM,omitempty"`
	AvgHeartrate          *float64    `json:"avgHeartrate,omitempty"`
	FitnessSyncerActivity string      `json:"fitnessSyncerActivity,omitempty"`
	Activity              string      `json:"activity,omitempty"`
	ProviderType          string      `json:"providerType,omitempty"`
	GPS                   *GPS        `json:"gps,omitempty"`
}

type GPS struct {
	Sport string `json:"sport,omitempty"`
	Lap   []Lap  `json:"lap,omitempty"`
}

type Lap struct {
	MaxHeart *float64 `json:"maxHeart,omitempty"`
	Points   []Point  `json:"points,omitempty"`
}

type Point struct {
	HeartRate *float64 `json:"heartRate,omitempty"`
}

// EpochMilli is a millisecond timestamp sent either as a number or a
// numeric string. A value that does not parse leaves the item undated
// instead of failing the whole page.
type EpochMilli int64

func (e *EpochMilli) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*e = EpochMilli(v)
	return nil
}

// Raw projects the item into the provider-neutral ingestion record.
func (it Item) Raw() activity.Raw {
	raw := activity.Raw{
		ItemID:         it.ItemID,
		Source:         it.ProviderType,
		DurationSec:    it.Duration,
		DistanceKM:     it.DistanceKM,
		AvgHeartRate:   it.AvgHeartrate,
		Classification: it.FitnessSyncerActivity,
		Activity:       it.Activity,
	}
	if it.Date != nil && *it.Date != 0 {
		ms := int64(*it.Date)
		raw.StartMillis = &ms
	}
	if it.GPS != nil {
		gps := &activity.GPS{Sport: it.GPS.Sport}
		for _, lap := range it.GPS.Lap {
			l := activity.Lap{HeartRates: make([]float64, 0, len(lap.Points))}
			if lap.MaxHeart != nil {
				l.MaxHeart = *lap.MaxHeart
			}
			for _, p := range lap.Points {
				if p.HeartRate == nil {
					l.HeartRates = append(l.HeartRates, math.NaN())
					continue
				}
				l.HeartRates = append(l.HeartRates, *p.HeartRate)
			}
			gps.Laps = append(gps.Laps, l)
		}
		raw.GPS = gps
	}
	return raw
}

var _ json.Unmarshaler = (*EpochMilli)(nil)
