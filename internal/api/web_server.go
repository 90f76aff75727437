package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/abelzeko/aqua-monitor/internal/entities"
	"github.com/abelzeko/aqua-monitor/internal/scoring"
	"github.com/abelzeko/aqua-monitor/internal/usecases"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/predictor.html"))

// Default form values shown on first load
var defaultReading = entities.SensorReading{PH: 7.5, DissolvedOxygen: 5.0, Ammonia: 0.02}

// WebServer serves the predictor page and its JSON API
type WebServer struct {
	useCase  *usecases.AssessmentUseCase
	router   *chi.Mux
	validate *validator.Validate
	now      func() time.Time
}

// pageData is what the predictor template renders
type pageData struct {
	Year      int
	Reading   entities.SensorReading
	Result    *entities.RiskAssessment
	Error     string
	Subscribe string
	Ponds     []entities.AssessmentRecord
}

// NewWebServer creates the HTTP handlers
func NewWebServer(useCase *usecases.AssessmentUseCase) *WebServer {
	s := &WebServer{
		useCase:  useCase,
		router:   chi.NewRouter(),
		validate: validator.New(),
		now:      time.Now,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.handleIndex)
	s.router.Post("/predict", s.handlePredictForm)
	s.router.Post("/subscribe", s.handleSubscribe)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", useCase.Metrics().Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/predict", s.handlePredictAPI)
		r.Get("/ponds", s.handlePondsAPI)
	})

	return s
}

// ServeHTTP implements http.Handler
func (s *WebServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server on addr until ctx is cancelled
func (s *WebServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Web server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down web server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *WebServer) render(w http.ResponseWriter, status int, data pageData) {
	data.Year = s.now().Year()
	if ponds, err := s.useCase.GetLatestPondStatus(); err == nil {
		data.Ponds = ponds
	} else {
		log.Printf("Error fetching pond status for page: %v", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Printf("Error rendering page: %v", err)
	}
}

func (s *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pageData{Reading: defaultReading})
}

func (s *WebServer) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, pageData{Reading: defaultReading, Error: "Could not read the form."})
		return
	}

	reading, err := readingFromForm(r)
	if err != nil {
		s.render(w, http.StatusBadRequest, pageData{Reading: defaultReading, Error: err.Error()})
		return
	}

	rec, err := s.useCase.Assess(entities.SourceWeb, "", reading)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "Could not run the prediction. Please try again."
		if errors.Is(err, scoring.ErrInvalidInput) {
			status = http.StatusBadRequest
			msg = err.Error()
		} else {
			log.Printf("Error assessing web reading: %v", err)
		}
		s.render(w, status, pageData{Reading: reading, Error: msg})
		return
	}

	s.render(w, http.StatusOK, pageData{Reading: reading, Result: &rec.Assessment})
}

func (s *WebServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")

	created, err := s.useCase.Subscribe(entities.ChannelEmail, email)
	switch {
	case errors.Is(err, usecases.ErrInvalidEmail):
		s.render(w, http.StatusBadRequest, pageData{Reading: defaultReading, Subscribe: "Please enter a valid email address."})
	case err != nil:
		log.Printf("Error subscribing %s: %v", email, err)
		s.render(w, http.StatusInternalServerError, pageData{Reading: defaultReading, Subscribe: "Could not subscribe right now."})
	case created:
		s.render(w, http.StatusOK, pageData{Reading: defaultReading, Subscribe: "✓ Subscribed!"})
	default:
		s.render(w, http.StatusOK, pageData{Reading: defaultReading, Subscribe: "You are already subscribed."})
	}
}

// predictRequest is the body of POST /api/predict; every reading must be present
type predictRequest struct {
	PH              *float64 `json:"ph" validate:"required"`
	DissolvedOxygen *float64 `json:"dissolvedOxygen" validate:"required"`
	Ammonia         *float64 `json:"ammonia" validate:"required"`
}

func (s *WebServer) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	const badBody = "request body must be JSON with ph, dissolvedOxygen and ammonia"

	var req predictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, badBody)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, badBody)
		return
	}

	reading := entities.SensorReading{PH: *req.PH, DissolvedOxygen: *req.DissolvedOxygen, Ammonia: *req.Ammonia}
	rec, err := s.useCase.Assess(entities.SourceWeb, "", reading)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidInput) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("Error assessing API reading: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, rec.Assessment)
}

// pondStatus is the JSON shape of one pond in /api/ponds
type pondStatus struct {
	Pond      string                  `json:"pond"`
	Timestamp time.Time               `json:"timestamp"`
	Result    entities.RiskAssessment `json:"assessment"`
}

func (s *WebServer) handlePondsAPI(w http.ResponseWriter, r *http.Request) {
	records, err := s.useCase.GetLatestPondStatus()
	if err != nil {
		log.Printf("Error fetching pond status: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]pondStatus, 0, len(records))
	for _, rec := range records {
		out = append(out, pondStatus{Pond: rec.Pond, Timestamp: rec.Timestamp, Result: rec.Assessment})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readingFromForm parses the ph, do and nh3 form fields
func readingFromForm(r *http.Request) (entities.SensorReading, error) {
	fields := []string{"ph", "do", "nh3"}
	var values [3]float64
	for i, name := range fields {
		raw := strings.TrimSpace(strings.Replace(r.FormValue(name), ",", ".", 1))
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return entities.SensorReading{}, errors.New("pH, dissolved oxygen and ammonia must all be numbers")
		}
		values[i] = v
	}
	return entities.SensorReading{PH: values[0], DissolvedOxygen: values[1], Ammonia: values[2]}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
