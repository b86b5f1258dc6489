package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trainlog/internal/activity"
	"trainlog/internal/weekly"
)

const messageActivityLogged = "Activity logged successfully and metrics updated."

func (s *Server) weeklyMetrics(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	var body struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if body.Date != "" {
		date = body.Date
	}

	var (
		summary weekly.Summary
		err     error
	)
	if date == "" {
		summary, err = s.Weekly.RecomputeAll(r.Context())
	} else {
		day, parseErr := time.ParseInLocation(activity.DateLayout, date, s.Book.Location())
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid date format")
			return
		}
		summary, err = s.Weekly.RecomputeWeek(r.Context(), day)
	}
	if err != nil {
		fail(w, s.logger(), "weekly metrics failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) activityLog(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.dateRange(r, "startDate", "endDate")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid date format")
		return
	}
	entries, err := s.Book.ActivitiesBetween(r.Context(), from, to)
	if err != nil {
		fail(w, s.logger(), "failed to read activity log", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Book.Encode(entries))
}

type editRequest struct {
	Date         string  `json:"date"`
	Timestamp    string  `json:"timestamp"`
	ExerciseType *string `json:"exercise_type"`
	Notes        *string `json:"notes"`
}

func (s *Server) editActivity(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.Date == "" || req.Timestamp == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "date and timestamp are required")
		return
	}
	patch := activity.EntryPatch{ExerciseType: req.ExerciseType, Notes: req.Notes}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "validation_failed", "nothing to update")
		return
	}
	if patch.ExerciseType != nil && strings.TrimSpace(*patch.ExerciseType) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "exercise_type must not be empty")
		return
	}

	// The week recompute rewrites progress rows by offset, so it stays
	// under the lock a sync's full recompute also holds.
	unlock := s.lockLog()
	defer unlock()
	entry, err := s.Book.UpdateActivity(r.Context(), activity.Key{Date: req.Date, Timestamp: req.Timestamp}, patch)
	if err != nil {
		fail(w, s.logger(), "failed to update activity", err)
		return
	}

	// A new exercise type can move the entry in or out of the run averages.
	if patch.ExerciseType != nil && !entry.StartedAt.IsZero() {
		if _, err := s.Weekly.RecomputeWeek(r.Context(), entry.StartedAt); err != nil {
			fail(w, s.logger(), "activity updated but weekly metrics failed", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.Book.Encode([]activity.Entry{entry})[0])
}

func (s *Server) logActivity(w http.ResponseWriter, r *http.Request) {
	var form activity.ManualEntry
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	entry, err := form.Entry(s.Book.Location())
	if err != nil {
		fail(w, s.logger(), "invalid activity", err)
		return
	}
	if entry.ItemID == "" {
		entry.ItemID = uuid.NewString()
	}

	unlock := s.lockLog()
	defer unlock()
	sameDay, err := s.Book.ActivitiesBetween(r.Context(), entry.StartedAt, entry.StartedAt)
	if err != nil {
		fail(w, s.logger(), "failed to read activity log", err)
		return
	}
	for _, existing := range sameDay {
		if existing.Key() == entry.Key() {
			writeError(w, http.StatusConflict, "duplicate", "an activity with this date and timestamp is already logged")
			return
		}
	}
	if err := s.Book.AppendActivities(r.Context(), []activity.Entry{entry}); err != nil {
		fail(w, s.logger(), "failed to log activity", err)
		return
	}

	summary, err := s.Weekly.RecomputeWeek(r.Context(), entry.StartedAt)
	if err != nil {
		fail(w, s.logger(), "activity logged but weekly metrics failed", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string         `json:"message"`
		ItemID  string         `json:"itemId"`
		Weekly  weekly.Summary `json:"weekly"`
	}{messageActivityLogged, entry.ItemID, summary})
}

// PlanView is one training plan row.
type PlanView struct {
	Date               string `json:"date"`
	ExerciseType       string `json:"exercise_type"`
	DurationPlannedMin int    `json:"duration_planned_min"`
	DurationPlannedMax *int   `json:"duration_planned_max"`
	Notes              string `json:"notes"`
}

func (s *Server) trainingPlan(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.dateRange(r, "start", "end")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid date format")
		return
	}
	plan, err := s.Book.TrainingPlan(r.Context(), from, to)
	if err != nil {
		fail(w, s.logger(), "failed to read training plan", err)
		return
	}
	out := make([]PlanView, 0, len(plan))
	for _, p := range plan {
		out = append(out, PlanView{
			Date:               p.Date.Format(activity.DateLayout),
			ExerciseType:       p.ExerciseType,
			DurationPlannedMin: p.DurationPlannedMin,
			DurationPlannedMax: p.DurationPlannedMax,
			Notes:              p.Notes,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ProgressView is one weekly metric. Value is a number, or an HH:MM:SS
// string for pace metrics.
type ProgressView struct {
	Date       string      `json:"date"`
	MetricType string      `json:"metric_type"`
	Value      interface{} `json:"value"`
}

func (s *Server) progressMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.Book.ProgressMetrics(r.Context())
	if err != nil {
		fail(w, s.logger(), "failed to read progress metrics", err)
		return
	}
	out := make([]ProgressView, 0, len(metrics))
	for _, m := range metrics {
		view := ProgressView{Date: m.WeekStart, MetricType: m.Type, Value: m.Value}
		if !strings.Contains(strings.ToLower(m.Type), "pace") {
			if v, err := strconv.ParseFloat(m.Value, 64); err == nil {
				view.Value = v
			}
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

// dateRange reads two optional YYYY-MM-DD query parameters.
func (s *Server) dateRange(r *http.Request, fromKey, toKey string) (from, to time.Time, ok bool) {
	loc := s.Book.Location()
	q := r.URL.Query()
	if v := q.Get(fromKey); v != "" {
		t, err := time.ParseInLocation(activity.DateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if v := q.Get(toKey); v != "" {
		t, err := time.ParseInLocation(activity.DateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	return from, to, true
}
