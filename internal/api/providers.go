package api

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"trainlog/internal/fitnesssyncer"
	"trainlog/internal/strava"
	"trainlog/internal/workbook"
)

const (
	stateCookiePrefix = "trainlog_oauth_state_"
	stateCookieTTL    = 10 * time.Minute
)

func (s *Server) authorizeFitnessSyncer(w http.ResponseWriter, r *http.Request) {
	extra := url.Values{}
	extra.Set("scope", fitnesssyncer.Scope)
	s.redirectToConsent(w, r, fitnesssyncer.Provider, s.FitnessSyncerAuth, extra)
}

func (s *Server) connectStrava(w http.ResponseWriter, r *http.Request) {
	extra := strava.AuthorizeParams()
	if r.URL.Query().Get("force") == "1" {
		extra.Set("approval_prompt", "force")
	}
	s.redirectToConsent(w, r, strava.Provider, s.StravaAuth, extra)
}

func (s *Server) redirectToConsent(w http.ResponseWriter, r *http.Request, provider string, authorizer Authorizer, extra url.Values) {
	if authorizer == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "provider is not configured")
		return
	}
	state := uuid.NewString()
	target, err := authorizer.AuthorizeURL(state, extra)
	if err != nil {
		fail(w, s.logger(), "failed to build authorization url", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookiePrefix + provider,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// exchange validates the callback and trades its code for tokens. It writes
// the failure response itself and reports whether the caller may continue.
func (s *Server) exchange(w http.ResponseWriter, r *http.Request, provider string, authorizer Authorizer) (athleteID int64, ok bool) {
	if authorizer == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "provider is not configured")
		return 0, false
	}
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.logger().Warn("authorization denied", "provider", provider, "reason", reason)
		writeError(w, http.StatusBadRequest, "authorization_denied", "authorization was not granted")
		return 0, false
	}
	if !s.consumeState(w, r, provider, q.Get("state")) {
		writeError(w, http.StatusBadRequest, "invalid_state", "authorization state does not match")
		return 0, false
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Authorization code is missing")
		return 0, false
	}

	token, err := authorizer.ExchangeCode(r.Context(), code)
	if err != nil {
		fail(w, s.logger(), "Failed to exchange authorization code", err)
		return 0, false
	}
	if token.Athlete != nil {
		athleteID = token.Athlete.ID
	}
	s.logger().Info("provider connected", "provider", provider, "athlete", athleteID)
	return athleteID, true
}

func (s *Server) consumeState(w http.ResponseWriter, r *http.Request, provider, state string) bool {
	name := stateCookiePrefix + provider
	cookie, err := r.Cookie(name)
	if err != nil || state == "" {
		return false
	}
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: s.SecureCookies})
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

func (s *Server) fitnessSyncerCallback(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.exchange(w, r, fitnesssyncer.Provider, s.FitnessSyncerAuth); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Tokens saved successfully"})
}

func (s *Server) stravaCallback(w http.ResponseWriter, r *http.Request) {
	athleteID, ok := s.exchange(w, r, strava.Provider, s.StravaAuth)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message   string `json:"message"`
		AthleteID int64  `json:"athleteId,omitempty"`
	}{"Authorization successful!", athleteID})
}

// dataSources lists the connected sources and saves them, so the first
// one becomes the default sync source.
func (s *Server) dataSources(w http.ResponseWriter, r *http.Request) {
	if s.FitnessSyncer == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "provider is not configured")
		return
	}
	sources, err := s.FitnessSyncer.Client.ListDataSources(r.Context())
	if err != nil {
		fail(w, s.logger(), "failed to list data sources", err)
		return
	}
	saved := make([]workbook.DataSource, 0, len(sources))
	for _, src := range sources {
		saved = append(saved, workbook.DataSource{ID: src.ID, Name: src.Name})
	}
	if err := s.Book.SaveDataSources(r.Context(), saved); err != nil {
		fail(w, s.logger(), "failed to save data sources", err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.itemSource(w, r)
	if !ok {
		return
	}
	item, err := s.FitnessSyncer.Client.GetItem(r.Context(), sourceID, r.PathValue("id"))
	if err != nil {
		fail(w, s.logger(), "failed to fetch item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.itemSource(w, r)
	if !ok {
		return
	}
	if err := s.FitnessSyncer.Client.DeleteItem(r.Context(), sourceID, r.PathValue("id")); err != nil {
		fail(w, s.logger(), "failed to delete item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item deleted"})
}

func (s *Server) itemSource(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.FitnessSyncer == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "provider is not configured")
		return "", false
	}
	if id := r.URL.Query().Get("sourceId"); id != "" {
		return id, true
	}
	id, err := s.FitnessSyncer.ResolveSource(r.Context())
	if err != nil {
		fail(w, s.logger(), "failed to resolve data source", err)
		return "", false
	}
	return id, true
}
