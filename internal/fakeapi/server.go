// Package fakeapi is an in-memory stand-in for the HackPlate backend, used by
// tests. It speaks the same paths, status codes and JSON shapes.
package fakeapi

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Event struct {
	ID             string
	Title          string
	City           string
	Lat, Lon       *float64
	Source         string
	EventType      string
	RelevanceScore float64
	// TotalScore, when set, is emitted alongside relevance_score.
	TotalScore *float64
	FoodScore  float64
	CreatedAt  time.Time
}

type Rule struct {
	ID           int     `json:"id"`
	Location     string  `json:"location"`
	RadiusKM     float64 `json:"radius_km"`
	MinScore     float64 `json:"min_score"`
	FoodRequired bool    `json:"food_required"`
	Channel      string  `json:"channel"`
	CreatedAt    string  `json:"created_at"`
}

type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	RequestID     string
}

type failure struct {
	status int
	detail string
}

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	tokens     map[string]string // token -> email
	users      map[string]string // email -> password
	events     []Event
	saved      map[string]map[string]bool // email -> event id set
	savedOrder map[string][]string
	rules      map[string][]Rule
	nextRuleID int
	prefs      map[string]gin.H
	searches   map[string]gin.H
	requests   []Request
	failures   map[string]failure
}

func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		tokens:     map[string]string{},
		users:      map[string]string{},
		saved:      map[string]map[string]bool{},
		savedOrder: map[string][]string{},
		rules:      map[string][]Rule{},
		nextRuleID: 1,
		prefs:      map[string]gin.H{},
		searches:   map[string]gin.H{},
		failures:   map[string]failure{},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(s.record, s.inject)

	r.POST("/auth/register", s.register)
	r.POST("/auth/login", s.login)
	r.GET("/auth/me", s.requireUser, s.me)

	r.GET("/events/", s.optionalUser, s.searchEvents)
	r.GET("/events/saved/list", s.requireUser, s.listSaved)
	r.GET("/events/:id", s.getEvent)
	r.POST("/events/:id/save", s.requireUser, s.saveEvent)
	r.DELETE("/events/:id/save", s.requireUser, s.unsaveEvent)

	r.GET("/notifications/rules", s.requireUser, s.listRules)
	r.POST("/notifications/rules", s.requireUser, s.createRule)
	r.DELETE("/notifications/rules/:id", s.requireUser, s.deleteRule)

	r.GET("/analytics/overview", s.overview)
	r.GET("/analytics/trends", s.trends)

	r.POST("/ingest", s.requireUser, s.ingest)

	r.GET("/activity/overview", s.requireUser, s.activityOverview)
	r.POST("/activity/saved-search", s.requireUser, s.updateSavedSearch)
	r.POST("/activity/preferences", s.requireUser, s.updatePreferences)
	return r
}

// AddUser registers a user and returns a bearer token for it.
func (s *Server) AddUser(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = "password"
	tok := "tok-" + uuid.NewString()
	s.tokens[tok] = email
	return tok
}

// AddEvent stores ev (assigning an id when empty) and returns its id.
func (s *Server) AddEvent(ev Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	if ev.EventType == "" {
		ev.EventType = "Offline"
	}
	s.events = append(s.events, ev)
	return ev.ID
}

// Fail makes every method+path request answer status until cleared with status 0.
func (s *Server) Fail(method, path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = failure{status: status, detail: detail}
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount counts recorded requests whose path has the given prefix.
func (s *Server) RequestCount(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) SavedIDs(email string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.savedOrder[email]...)
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Query:         c.Request.URL.RawQuery,
		Authorization: c.GetHeader("Authorization"),
		RequestID:     c.GetHeader("X-Request-ID"),
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.failures[c.Request.Method+" "+c.Request.URL.Path]
	s.mu.Unlock()
	if ok {
		c.AbortWithStatusJSON(f.status, gin.H{"detail": f.detail})
		return
	}
	c.Next()
}

const userKey = "fakeapi.user"

func (s *Server) userFrom(c *gin.Context) (string, bool, bool) {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h == "" {
		return "", false, true
	}
	tok := strings.TrimPrefix(h, "Bearer ")
	s.mu.Lock()
	email, ok := s.tokens[tok]
	s.mu.Unlock()
	return email, ok, false
}

func (s *Server) optionalUser(c *gin.Context) {
	email, ok, anonymous := s.userFrom(c)
	if !anonymous && !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired token"})
		return
	}
	if ok {
		c.Set(userKey, email)
	}
	c.Next()
}

func (s *Server) requireUser(c *gin.Context) {
	email, ok, _ := s.userFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Unauthorized"})
		return
	}
	c.Set(userKey, email)
	c.Next()
}

func eventJSON(ev Event) gin.H {
	h := gin.H{
		"id":              ev.ID,
		"title":           ev.Title,
		"description":     "",
		"url":             "https://example.org/" + ev.ID,
		"city":            ev.City,
		"event_type":      ev.EventType,
		"lat":             ev.Lat,
		"lon":             ev.Lon,
		"food_score":      ev.FoodScore,
		"relevance_score": ev.RelevanceScore,
		"source":          ev.Source,
		"keywords":        []string{},
		"start_date":      nil,
		// naive ISO timestamp, as the backend serializes it
		"created_at": ev.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000"),
	}
	if ev.TotalScore != nil {
		h["total_score"] = *ev.TotalScore
	}
	return h
}

func (s *Server) searchEvents(c *gin.Context) {
	location := strings.ToLower(c.Query("location"))
	minScore, _ := strconv.ParseFloat(c.DefaultQuery("min_score", "0"), 64)
	source := c.Query("source")
	eventType := c.Query("event_type")
	foodOnly := c.Query("food_only") == "true"
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	var matched []gin.H
	for _, ev := range s.events {
		if location != "" && !strings.Contains(strings.ToLower(ev.City), location) {
			continue
		}
		if ev.RelevanceScore < minScore {
			continue
		}
		if source != "" && ev.Source != source {
			continue
		}
		if eventType != "" && ev.EventType != eventType {
			continue
		}
		if foodOnly && ev.FoodScore <= 0 {
			continue
		}
		matched = append(matched, eventJSON(ev))
	}
	s.mu.Unlock()

	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	out := matched[start:end]
	if out == nil {
		out = []gin.H{}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) findEvent(id string) (Event, bool) {
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return Event{}, false
}

func (s *Server) getEvent(c *gin.Context) {
	s.mu.Lock()
	ev, ok := s.findEvent(c.Param("id"))
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Event not found"})
		return
	}
	c.JSON(http.StatusOK, eventJSON(ev))
}

func (s *Server) saveEvent(c *gin.Context) {
	email := c.GetString(userKey)
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findEvent(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Event not found"})
		return
	}
	set := s.saved[email]
	if set == nil {
		set = map[string]bool{}
		s.saved[email] = set
	}
	if set[id] {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Already saved"})
		return
	}
	set[id] = true
	s.savedOrder[email] = append(s.savedOrder[email], id)
	c.JSON(http.StatusCreated, gin.H{"message": "Event saved"})
}

func (s *Server) unsaveEvent(c *gin.Context) {
	email := c.GetString(userKey)
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved[email][id] {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not saved"})
		return
	}
	delete(s.saved[email], id)
	order := s.savedOrder[email][:0]
	for _, v := range s.savedOrder[email] {
		if v != id {
			order = append(order, v)
		}
	}
	s.savedOrder[email] = order
	c.JSON(http.StatusOK, gin.H{"message": "Event unsaved"})
}

func (s *Server) listSaved(c *gin.Context) {
	email := c.GetString(userKey)
	s.mu.Lock()
	out := []gin.H{}
	for _, id := range s.savedOrder[email] {
		if ev, ok := s.findEvent(id); ok {
			out = append(out, eventJSON(ev))
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) listRules(c *gin.Context) {
	email := c.GetString(userKey)
	s.mu.Lock()
	out := append([]Rule{}, s.rules[email]...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) createRule(c *gin.Context) {
	email := c.GetString(userKey)
	in := Rule{RadiusKM: 50, MinScore: 3, FoodRequired: true, Channel: "telegram"}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	in.ID = s.nextRuleID
	s.nextRuleID++
	in.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05")
	s.rules[email] = append(s.rules[email], in)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, in)
}

func (s *Server) deleteRule(c *gin.Context) {
	email := c.GetString(userKey)
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid rule id"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := s.rules[email]
	for i, r := range rules {
		if r.ID == id {
			s.rules[email] = append(rules[:i:i], rules[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Rule not found"})
}

func (s *Server) overview(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource := map[string]int{}
	byCity := map[string]int{}
	food := 0
	for _, ev := range s.events {
		bySource[ev.Source]++
		if ev.City != "" && ev.City != "Unknown" {
			byCity[ev.City]++
		}
		if ev.FoodScore > 0 {
			food++
		}
	}
	top := "N/A"
	best := 0
	cities := make([]string, 0, len(byCity))
	for city := range byCity {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	for _, city := range cities {
		if byCity[city] > best {
			top, best = city, byCity[city]
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total_events":     len(s.events),
		"food_events":      food,
		"total_sources":    len(bySource),
		"top_city":         top,
		"events_by_source": bySource,
	})
}

func (s *Server) trends(c *gin.Context) {
	s.mu.Lock()
	byDate := map[string]int{}
	for _, ev := range s.events {
		byDate[ev.CreatedAt.UTC().Format("2006-01-02")]++
	}
	s.mu.Unlock()
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	out := []gin.H{}
	for _, d := range dates {
		out = append(out, gin.H{"date": d, "count": byDate[d]})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) ingest(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}
	for i := 0; i < limit; i++ {
		s.AddEvent(Event{Title: "Ingested hackathon", City: "Pune", Source: "devfolio", RelevanceScore: 4})
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Ingestion complete. " + strconv.Itoa(limit) + " new events stored.",
		"new_events": limit,
	})
}

func (s *Server) activityOverview(c *gin.Context) {
	email := c.GetString(userKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, ok := s.prefs[email]
	if !ok {
		prefs = gin.H{"frequency": "instant", "telegram_enabled": false, "email_enabled": false}
		s.prefs[email] = prefs
	}
	var saved any
	if ss, ok := s.searches[email]; ok {
		saved = ss
	}
	c.JSON(http.StatusOK, gin.H{
		"saved_search":             saved,
		"notification_preferences": prefs,
		"total_favorites":          len(s.savedOrder[email]),
		"email":                    email,
		"joined_at":                "2026-01-01T00:00:00",
	})
}

func (s *Server) updateSavedSearch(c *gin.Context) {
	email := c.GetString(userKey)
	var body gin.H
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	s.searches[email] = body
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Saved search updated successfully"})
}

func (s *Server) updatePreferences(c *gin.Context) {
	email := c.GetString(userKey)
	var body gin.H
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	s.prefs[email] = body
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Preferences updated successfully"})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Email]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
		return
	}
	s.users[in.Email] = in.Password
	c.JSON(http.StatusCreated, gin.H{"id": len(s.users), "email": in.Email, "created_at": "2026-01-01T00:00:00"})
}

func (s *Server) login(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pw, ok := s.users[in.Email]; !ok || pw != in.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
		return
	}
	tok := "tok-" + uuid.NewString()
	s.tokens[tok] = in.Email
	c.JSON(http.StatusOK, gin.H{"access_token": tok, "token_type": "bearer"})
}

func (s *Server) me(c *gin.Context) {
	email := c.GetString(userKey)
	c.JSON(http.StatusOK, gin.H{"id": 1, "email": email, "created_at": "2026-01-01T00:00:00"})
}
