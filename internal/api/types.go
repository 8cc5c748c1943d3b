package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ID is an opaque identifier. The backend emits integers for some resources
// and UUID strings for others; both decode to their string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

const (
	EventTypeOnline  = "Online"
	EventTypeOffline = "Offline"
	EventTypeHybrid  = "Hybrid"
)

type EventSummary struct {
	ID          ID       `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	City        string   `json:"city"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Source      string   `json:"source"`
	EventType   string   `json:"event_type"`
	// Score is the canonical relevance score: total_score, else relevance_score, else 0.
	Score          float64   `json:"score"`
	FoodScore      float64   `json:"food_score"`
	FoodLikelihood *float64  `json:"food_likelihood,omitempty"`
	Keywords       []string  `json:"keywords,omitempty"`
	StartDate      string    `json:"start_date,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasFood reports whether the backend thinks food is likely present.
func (e EventSummary) HasFood() bool {
	return e.FoodScore > 0
}

func (e EventSummary) HasLocation() bool {
	return e.Lat != nil && e.Lon != nil
}

func (e *EventSummary) UnmarshalJSON(b []byte) error {
	var w struct {
		ID             ID       `json:"id"`
		Title          string   `json:"title"`
		Description    *string  `json:"description"`
		URL            string   `json:"url"`
		City           string   `json:"city"`
		Lat            *float64 `json:"lat"`
		Lon            *float64 `json:"lon"`
		Source         string   `json:"source"`
		EventType      string   `json:"event_type"`
		Score          *float64 `json:"score"`
		TotalScore     *float64 `json:"total_score"`
		RelevanceScore *float64 `json:"relevance_score"`
		FoodScore      *float64 `json:"food_score"`
		FoodLikelihood *float64 `json:"food_likelihood"`
		Keywords       []string `json:"keywords"`
		StartDate      *string  `json:"start_date"`
		CreatedAt      string   `json:"created_at"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	created, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("event %s created_at: %w", w.ID, err)
	}
	*e = EventSummary{
		ID:             w.ID,
		Title:          w.Title,
		URL:            w.URL,
		City:           w.City,
		Lat:            w.Lat,
		Lon:            w.Lon,
		Source:         w.Source,
		EventType:      w.EventType,
		Score:          firstScore(w.TotalScore, w.RelevanceScore, w.Score),
		FoodLikelihood: w.FoodLikelihood,
		Keywords:       w.Keywords,
		CreatedAt:      created,
	}
	if w.Description != nil {
		e.Description = *w.Description
	}
	if w.FoodScore != nil {
		e.FoodScore = *w.FoodScore
	}
	if w.StartDate != nil {
		e.StartDate = *w.StartDate
	}
	return nil
}

func firstScore(candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}

// timestampLayouts covers RFC 3339 and the zone-less ISO form the backend
// serializes naive datetimes with (read as UTC).
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

const DefaultRadiusKM = 50

// SearchFilters are the query criteria for SearchEvents. Nil RadiusKM means
// "unset" and is sent as the default; zero-valued optional fields are omitted.
type SearchFilters struct {
	Location  string   `json:"location,omitempty"`
	RadiusKM  *float64 `json:"radius_km,omitempty"`
	MinScore  float64  `json:"min_score,omitempty"`
	Source    string   `json:"source,omitempty"`
	EventType string   `json:"event_type,omitempty"`
	FoodOnly  bool     `json:"food_only,omitempty"`
	Page      int      `json:"page,omitempty"`
	PerPage   int      `json:"per_page,omitempty"`
}

func Float64(v float64) *float64 { return &v }

// Radius returns the effective radius: the caller's value or DefaultRadiusKM.
func (f SearchFilters) Radius() float64 {
	if f.RadiusKM == nil {
		return DefaultRadiusKM
	}
	return *f.RadiusKM
}

func (f SearchFilters) Validate() error {
	if f.RadiusKM != nil && *f.RadiusKM <= 0 {
		return &ValidationError{Field: "radius_km", Reason: "must be greater than 0"}
	}
	if f.MinScore < 0 {
		return &ValidationError{Field: "min_score", Reason: "must not be negative"}
	}
	if err := wholeKM(f.Radius(), f.MinScore); err != nil {
		return err
	}
	if f.EventType != "" && !validEventType(f.EventType) {
		return &ValidationError{Field: "event_type", Reason: "must be Online, Offline or Hybrid"}
	}
	if f.Page < 0 {
		return &ValidationError{Field: "page", Reason: "must not be negative"}
	}
	if f.PerPage < 0 {
		return &ValidationError{Field: "per_page", Reason: "must not be negative"}
	}
	return nil
}

func validEventType(s string) bool {
	switch s {
	case EventTypeOnline, EventTypeOffline, EventTypeHybrid:
		return true
	}
	return false
}

// Clone returns a copy that shares no pointers with f.
func (f SearchFilters) Clone() SearchFilters {
	if f.RadiusKM != nil {
		f.RadiusKM = Float64(*f.RadiusKM)
	}
	return f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
)

type NotificationRule struct {
	ID           ID        `json:"id"`
	Location     string    `json:"location"`
	RadiusKM     float64   `json:"radius_km"`
	MinScore     float64   `json:"min_score"`
	FoodRequired bool      `json:"food_required"`
	Channel      string    `json:"channel"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r *NotificationRule) UnmarshalJSON(b []byte) error {
	type wire NotificationRule
	var w struct {
		wire
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	created, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("rule %s created_at: %w", w.ID, err)
	}
	*r = NotificationRule(w.wire)
	r.CreatedAt = created
	return nil
}

// RuleInput is the body of POST /notifications/rules.
type RuleInput struct {
	Location     string  `json:"location"`
	RadiusKM     float64 `json:"radius_km"`
	MinScore     float64 `json:"min_score"`
	FoodRequired bool    `json:"food_required"`
	Channel      string  `json:"channel"`
}

// DefaultRuleInput mirrors the backend's defaults for a new rule.
func DefaultRuleInput(location string) RuleInput {
	return RuleInput{
		Location:     location,
		RadiusKM:     DefaultRadiusKM,
		MinScore:     3,
		FoodRequired: true,
		Channel:      ChannelTelegram,
	}
}

func (in RuleInput) Validate() error {
	if strings.TrimSpace(in.Location) == "" {
		return &ValidationError{Field: "location", Reason: "must not be empty"}
	}
	if in.RadiusKM <= 0 {
		return &ValidationError{Field: "radius_km", Reason: "must be greater than 0"}
	}
	if in.MinScore < 0 {
		return &ValidationError{Field: "min_score", Reason: "must not be negative"}
	}
	if err := wholeKM(in.RadiusKM, in.MinScore); err != nil {
		return err
	}
	switch in.Channel {
	case ChannelTelegram, ChannelEmail:
	default:
		return &ValidationError{Field: "channel", Reason: "must be telegram or email"}
	}
	return nil
}

type Overview struct {
	TotalEvents    int            `json:"total_events"`
	FoodEvents     int            `json:"food_events"`
	TotalSources   int            `json:"total_sources"`
	TopCity        string         `json:"top_city"`
	EventsBySource map[string]int `json:"events_by_source"`
}

type Trend struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type IngestResult struct {
	Message   string `json:"message"`
	NewEvents int    `json:"new_events"`
}

type SavedSearch struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusKM     float64 `json:"radius_km"`
	MinScore     float64 `json:"min_score"`
	FoodRequired bool    `json:"food_required"`
}

func (s SavedSearch) Validate() error {
	if s.Latitude < -90 || s.Latitude > 90 {
		return &ValidationError{Field: "latitude", Reason: "must be within [-90, 90]"}
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return &ValidationError{Field: "longitude", Reason: "must be within [-180, 180]"}
	}
	if s.RadiusKM <= 0 {
		return &ValidationError{Field: "radius_km", Reason: "must be greater than 0"}
	}
	if s.MinScore < 0 {
		return &ValidationError{Field: "min_score", Reason: "must not be negative"}
	}
	return wholeKM(s.RadiusKM, s.MinScore)
}

// wholeKM rejects fractional radius and score thresholds; the backend only
// takes integers for both.
func wholeKM(radius, minScore float64) error {
	if radius != math.Trunc(radius) {
		return &ValidationError{Field: "radius_km", Reason: "must be a whole number"}
	}
	if minScore != math.Trunc(minScore) {
		return &ValidationError{Field: "min_score", Reason: "must be a whole number"}
	}
	return nil
}

const (
	FrequencyInstant = "instant"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
)

type NotificationPreferences struct {
	Frequency       string `json:"frequency"`
	TelegramEnabled bool   `json:"telegram_enabled"`
	EmailEnabled    bool   `json:"email_enabled"`
}

func (p NotificationPreferences) Validate() error {
	switch p.Frequency {
	case FrequencyInstant, FrequencyDaily, FrequencyWeekly:
		return nil
	}
	return &ValidationError{Field: "frequency", Reason: "must be instant, daily or weekly"}
}

type ActivityOverview struct {
	SavedSearch             *SavedSearch             `json:"saved_search"`
	NotificationPreferences *NotificationPreferences `json:"notification_preferences"`
	TotalFavorites          int                      `json:"total_favorites"`
	Email                   string                   `json:"email"`
	JoinedAt                string                   `json:"joined_at"`
}

type User struct {
	ID        ID     `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
