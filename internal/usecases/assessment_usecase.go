// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/abelzeko/aqua-monitor/internal/entities"
	"github.com/abelzeko/aqua-monitor/internal/integration"
	"github.com/abelzeko/aqua-monitor/internal/integration/openai"
	"github.com/abelzeko/aqua-monitor/internal/metrics"
	"github.com/abelzeko/aqua-monitor/internal/repository"
	"github.com/abelzeko/aqua-monitor/internal/scoring"
)

var (
	// ErrInvalidEmail is returned by Subscribe for malformed email addresses
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInterpreterUnavailable is returned when free-text queries are not configured
	ErrInterpreterUnavailable = errors.New("query interpreter not configured")
)

// PondFeed fetches readings from one telemetry page
type PondFeed interface {
	FetchPondReadings(url string) ([]integration.PondReading, error)
}

// AssessmentUseCase handles business logic around water-quality assessments
type AssessmentUseCase struct {
	repo        repository.AssessmentRepository
	feed        PondFeed
	interpreter openai.QueryInterpreter
	metrics     *metrics.Metrics
	feedURLs    []string
	validate    *validator.Validate
	now         func() time.Time
}

// NewAssessmentUseCase creates a new assessment use case.
// feed and interpreter may be nil when a binary does not need them.
func NewAssessmentUseCase(repo repository.AssessmentRepository, feed PondFeed, interpreter openai.QueryInterpreter, m *metrics.Metrics, feedURLs []string) *AssessmentUseCase {
	if m == nil {
		m = metrics.New()
	}
	return &AssessmentUseCase{
		repo:        repo,
		feed:        feed,
		interpreter: interpreter,
		metrics:     m,
		feedURLs:    feedURLs,
		validate:    validator.New(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Metrics returns the collectors the use case reports to
func (uc *AssessmentUseCase) Metrics() *metrics.Metrics {
	return uc.metrics
}

// Assess validates and scores a reading, then stores the result
func (uc *AssessmentUseCase) Assess(source, pond string, reading entities.SensorReading) (*entities.AssessmentRecord, error) {
	if err := scoring.Validate(reading); err != nil {
		uc.metrics.ObserveInvalidReading(source)
		return nil, err
	}

	rec := uc.newRecord(source, pond, reading, uc.now())
	if err := uc.repo.SaveAssessments([]entities.AssessmentRecord{rec}); err != nil {
		return nil, fmt.Errorf("failed to save assessment: %w", err)
	}
	uc.observe(rec)

	log.Printf("Assessed %s reading (pond '%s'): %s risk, mortality %s%%",
		source, pond, rec.Assessment.RiskLevel, rec.Assessment.MortalityRate)
	return &rec, nil
}

func (uc *AssessmentUseCase) newRecord(source, pond string, reading entities.SensorReading, ts time.Time) entities.AssessmentRecord {
	return entities.AssessmentRecord{
		ID:         uuid.NewString(),
		Source:     source,
		Pond:       pond,
		Assessment: scoring.ScoreReading(reading),
		Timestamp:  ts,
	}
}

// observe counts a stored assessment
func (uc *AssessmentUseCase) observe(rec entities.AssessmentRecord) {
	uc.metrics.ObserveAssessment(rec.Source, rec.Assessment.RiskLevel.String(), rec.Assessment.MortalityRatePercent)
}

// RefreshPondReadings scrapes every configured feed, scores each pond and saves the results.
// A failing feed is skipped; the refresh fails only if every feed fails.
func (uc *AssessmentUseCase) RefreshPondReadings() error {
	log.Println("Starting pond readings refresh process...")

	if uc.feed == nil || len(uc.feedURLs) == 0 {
		return errors.New("no pond feeds configured")
	}

	var records []entities.AssessmentRecord
	failed := 0
	for _, url := range uc.feedURLs {
		readings, err := uc.feed.FetchPondReadings(url)
		if err != nil {
			log.Printf("Warning: failed to fetch pond feed %s: %v", url, err)
			uc.metrics.ObserveFeedRefresh("error")
			failed++
			continue
		}
		uc.metrics.ObserveFeedRefresh("ok")
		log.Printf("Successfully fetched %d pond readings from %s", len(readings), url)

		for _, r := range readings {
			reading := entities.SensorReading{PH: r.PH, DissolvedOxygen: r.DissolvedOxygen, Ammonia: r.Ammonia}
			if err := scoring.Validate(reading); err != nil {
				log.Printf("Warning: skipping pond %s: %v", r.Pond, err)
				uc.metrics.ObserveInvalidReading(entities.SourceFeed)
				continue
			}
			records = append(records, uc.newRecord(entities.SourceFeed, r.Pond, reading, r.Timestamp.UTC()))
		}
	}

	if failed == len(uc.feedURLs) {
		return fmt.Errorf("all %d pond feeds failed", failed)
	}

	if len(records) == 0 {
		log.Println("No valid pond readings found")
		return nil
	}

	if err := uc.repo.SaveAssessments(records); err != nil {
		return fmt.Errorf("failed to save pond assessments: %w", err)
	}
	for _, rec := range records {
		uc.observe(rec)
	}
	return nil
}

// GetHistory returns recent assessments for a source, newest first
func (uc *AssessmentUseCase) GetHistory(source string, limit int) ([]entities.AssessmentRecord, error) {
	log.Printf("Retrieving %d recent %s assessments", limit, source)
	return uc.repo.GetRecentAssessments(source, limit)
}

// GetLatestPondStatus returns the latest feed assessment for every pond
func (uc *AssessmentUseCase) GetLatestPondStatus() ([]entities.AssessmentRecord, error) {
	log.Println("Retrieving latest pond status")
	return uc.repo.GetLatestByPond()
}

// GetLastUpdateTime returns when feed data was last recorded
func (uc *AssessmentUseCase) GetLastUpdateTime() (time.Time, error) {
	return uc.repo.GetLastUpdateTime()
}

// Subscribe adds a newsletter (email) or digest (telegram) subscriber.
// It reports false when the address was already subscribed.
func (uc *AssessmentUseCase) Subscribe(channel, address string) (bool, error) {
	address = strings.TrimSpace(address)

	switch channel {
	case entities.ChannelEmail:
		if err := uc.validate.Var(address, "required,email"); err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidEmail, address)
		}
		address = strings.ToLower(address)
	case entities.ChannelTelegram:
		if address == "" {
			return false, errors.New("telegram chat ID is required")
		}
	default:
		return false, fmt.Errorf("unknown subscription channel %q", channel)
	}

	created, err := uc.repo.AddSubscriber(entities.Subscriber{
		ID:        uuid.NewString(),
		Channel:   channel,
		Address:   address,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return false, err
	}

	log.Printf("Subscribe %s '%s': new=%t", channel, address, created)
	return created, nil
}

// Unsubscribe removes a subscriber, reporting whether one existed
func (uc *AssessmentUseCase) Unsubscribe(channel, address string) (bool, error) {
	return uc.repo.RemoveSubscriber(channel, strings.TrimSpace(address))
}

// ListTelegramSubscribers returns the chats that receive the digest
func (uc *AssessmentUseCase) ListTelegramSubscribers() ([]entities.Subscriber, error) {
	return uc.repo.ListSubscribers(entities.ChannelTelegram)
}

// PondDigest summarizes one pond over the digest window
type PondDigest struct {
	Pond              string
	WorstRisk         entities.RiskLevel
	PeakMortalityRate float64
	Readings          int
	Latest            entities.AssessmentRecord
}

// Digest is the per-pond summary sent to subscribers
type Digest struct {
	Since time.Time
	Ponds []PondDigest
}

// BuildDigest summarizes feed assessments recorded within window, worst ponds first
func (uc *AssessmentUseCase) BuildDigest(window time.Duration) (*Digest, error) {
	since := uc.now().Add(-window)
	records, err := uc.repo.GetAssessmentsSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessments for digest: %w", err)
	}

	byPond := make(map[string]*PondDigest)
	for _, rec := range records {
		d, ok := byPond[rec.Pond]
		if !ok {
			d = &PondDigest{Pond: rec.Pond, Latest: rec}
			byPond[rec.Pond] = d
		}
		d.Readings++
		if rec.Assessment.RiskLevel > d.WorstRisk {
			d.WorstRisk = rec.Assessment.RiskLevel
		}
		if rec.Assessment.MortalityRatePercent > d.PeakMortalityRate {
			d.PeakMortalityRate = rec.Assessment.MortalityRatePercent
		}
		if rec.Timestamp.After(d.Latest.Timestamp) {
			d.Latest = rec
		}
	}

	digest := &Digest{Since: since}
	for _, d := range byPond {
		digest.Ponds = append(digest.Ponds, *d)
	}
	sort.Slice(digest.Ponds, func(i, j int) bool {
		a, b := digest.Ponds[i], digest.Ponds[j]
		if a.WorstRisk != b.WorstRisk {
			return a.WorstRisk > b.WorstRisk
		}
		return a.Pond < b.Pond
	})

	log.Printf("Built digest for %d ponds since %s", len(digest.Ponds), since.Format(time.RFC3339))
	return digest, nil
}

// QueryResult is the outcome of a free-text query. Record is set when readings were assessed.
type QueryResult struct {
	Message string
	Record  *entities.AssessmentRecord
}

// HandleNaturalLanguageQuery interprets a user's free-text message and assesses any readings in it
func (uc *AssessmentUseCase) HandleNaturalLanguageQuery(ctx context.Context, source, query string) (*QueryResult, error) {
	if uc.interpreter == nil {
		return nil, ErrInterpreterUnavailable
	}
	log.Printf("Interpreting natural language query: %s", query)

	agentResp, err := uc.interpreter.InterpretUserQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to interpret query: %w", err)
	}

	log.Printf("Agent response: Command='%s', Complete=%t, Message='%s'",
		agentResp.CommandName, agentResp.ReadingsComplete, agentResp.UserMessage)

	switch agentResp.CommandName {
	case openai.CommandAssessWaterQuality:
		if !agentResp.ReadingsComplete {
			// Agent asks for the missing values
			return &QueryResult{Message: agentResp.UserMessage}, nil
		}
		rec, err := uc.Assess(source, "", entities.SensorReading{
			PH:              agentResp.PH,
			DissolvedOxygen: agentResp.DissolvedOxygen,
			Ammonia:         agentResp.Ammonia,
		})
		if err != nil {
			return nil, err
		}
		return &QueryResult{Message: agentResp.UserMessage, Record: rec}, nil
	case openai.CommandGeneralQuery:
		return &QueryResult{Message: agentResp.UserMessage}, nil
	default:
		log.Printf("Agent returned unexpected command: %s", agentResp.CommandName)
		return &QueryResult{Message: "I'm not sure how to respond to that. You can use /help for commands."}, nil
	}
}
