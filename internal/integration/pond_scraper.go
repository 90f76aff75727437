// Package integration handles external service interactions
package integration

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker/v2"
)

// PondReading is one row scraped from a pond controller telemetry page
type PondReading struct {
	Pond            string
	PH              float64
	DissolvedOxygen float64
	Ammonia         float64
	Timestamp       time.Time
}

// PondScraper fetches and parses pond controller telemetry pages
type PondScraper struct {
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	location *time.Location
}

var readingsAtRe = regexp.MustCompile(`Readings at:\s*(\d{1,2}\.\d{1,2}\.\d{4})\.?\s+(\d{1,2}:\d{2})`)

// NewPondScraper creates a scraper whose requests time out after timeout.
// Page timestamps are read as wall-clock time in location; nil means UTC.
func NewPondScraper(timeout time.Duration, location *time.Location) *PondScraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if location == nil {
		location = time.UTC
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "pond-feed",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	return &PondScraper{
		client:   &http.Client{Timeout: timeout},
		breaker:  breaker,
		location: location,
	}
}

// FetchPondReadings retrieves and parses one telemetry page
func (ps *PondScraper) FetchPondReadings(url string) ([]PondReading, error) {
	log.Printf("Sending HTTP request to pond feed %s", url)

	res, err := ps.breaker.Execute(func() (*http.Response, error) {
		res, err := ps.client.Get(url)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusInternalServerError {
			res.Body.Close()
			return nil, fmt.Errorf("server error: %d %s", res.StatusCode, res.Status)
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Printf("Pond feed circuit is open, skipping %s", url)
		} else {
			log.Printf("Error fetching pond feed: %v", err)
		}
		return nil, fmt.Errorf("failed to fetch pond feed %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Printf("Received unexpected status code: %d %s", res.StatusCode, res.Status)
		return nil, fmt.Errorf("unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		log.Printf("Error parsing HTML: %v", err)
		return nil, fmt.Errorf("failed to parse pond feed %s: %w", url, err)
	}

	return ps.ParseReadings(doc), nil
}

// ParseReadings extracts pond rows from a telemetry document.
// Rows need four cells: pond, pH, DO, NH3. Rows with non-numeric values are skipped.
func (ps *PondScraper) ParseReadings(doc *goquery.Document) []PondReading {
	timestamp := ps.ExtractTimestamp(doc)

	var data []PondReading
	processedRows := 0
	skippedRows := 0

	doc.Find("table tr").Each(func(index int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		processedRows++

		pond := strings.TrimSpace(cells.Eq(0).Text())
		if pond == "" {
			skippedRows++
			return
		}

		var values [3]float64
		for i := range values {
			text := cells.Eq(i + 1).Text()
			v, err := parseNumber(text)
			if err != nil {
				log.Printf("Warning: Skipping pond %s with non-numeric value '%s'", pond, strings.TrimSpace(text))
				skippedRows++
				return
			}
			values[i] = v
		}

		data = append(data, PondReading{
			Pond:            pond,
			PH:              values[0],
			DissolvedOxygen: values[1],
			Ammonia:         values[2],
			Timestamp:       timestamp,
		})
	})

	log.Printf("Pond feed: processed %d rows, found %d valid readings, skipped %d", processedRows, len(data), skippedRows)
	return data
}

// ExtractTimestamp finds the "Readings at: DD.MM.YYYY HH:MM" header, read in the
// scraper's location and returned in UTC.
// It falls back to the current time when the header is missing or malformed.
func (ps *PondScraper) ExtractTimestamp(doc *goquery.Document) time.Time {
	var timestamp time.Time

	for _, selector := range []string{"h1", "h2", "h3", "h4", "p", "div"} {
		doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			match := readingsAtRe.FindStringSubmatch(s.Text())
			if len(match) != 3 {
				return true
			}
			t, err := time.ParseInLocation("2.1.2006 15:04", match[1]+" "+match[2], ps.location)
			if err != nil {
				log.Printf("Error parsing feed timestamp '%s %s': %v", match[1], match[2], err)
				return true
			}
			timestamp = t.UTC()
			return false
		})
		if !timestamp.IsZero() {
			return timestamp
		}
	}

	log.Printf("Timestamp text not found, using current time")
	return time.Now().UTC().Truncate(time.Second)
}

// parseNumber accepts both "7.5" and "7,5"
func parseNumber(text string) (float64, error) {
	text = strings.TrimSpace(strings.Replace(text, ",", ".", 1))
	return strconv.ParseFloat(text, 64)
}
