package simulate

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/okian/guardline/internal/domain/model"
	"github.com/okian/guardline/internal/domain/types"
	"github.com/okian/guardline/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

const percentageMultiplier = 100

type counters struct {
	submitted  atomic.Int64
	successful atomic.Int64
	duplicate  atomic.Int64
	failed     atomic.Int64
	mismatches atomic.Int64
	armed      atomic.Int64
	rescored   atomic.Int64
}

// Run plays the configured scenario for every subject, checks each returned
// score against local scoring and resolves the subjects afterwards.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("scenario", cfg.Scenario),
		logger.Int("subjects", cfg.Subjects),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	if _, err := steps(cfg.Scenario, cfg.Count); err != nil {
		return stats, err
	}
	v, err := newVerifier(cfg.Timezone, cfg.WindowSize)
	if err != nil {
		return stats, err
	}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	var (
		c       counters
		mu      sync.Mutex
		report  []Submission
		wg      sync.WaitGroup
		subject = make(chan string, cfg.Workers)
		prefix  = uuid.NewString()[:8]
	)
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range subject {
				subs := playSubject(ctx, client, v, cfg, id, &c)
				mu.Lock()
				report = append(report, subs...)
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(subject)
		for i := 0; i < cfg.Subjects; i++ {
			select {
			case <-ctx.Done():
				return
			case subject <- fmt.Sprintf("sim-%s-%d", prefix, i):
			}
		}
	}()
	wg.Wait()

	stats.EventsSubmitted = int(c.submitted.Load())
	stats.EventsSuccessful = int(c.successful.Load())
	stats.EventsDuplicate = int(c.duplicate.Load())
	stats.EventsFailed = int(c.failed.Load())
	stats.Mismatches = int(c.mismatches.Load())
	stats.Armed = int(c.armed.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, report); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		} else {
			log.Info(ctx, "report saved", logger.String("file", cfg.OutputFile))
		}
	}
	displayFinalStats(ctx, stats)

	switch {
	case ctx.Err() != nil:
		return stats, ctx.Err()
	case stats.Mismatches > 0:
		return stats, fmt.Errorf("%w: %d of %d events", ErrMismatch, stats.Mismatches, stats.EventsSuccessful)
	case c.rescored.Load() > 0:
		return stats, fmt.Errorf("%w: %d subjects", ErrNotDuplicate, c.rescored.Load())
	}
	return stats, nil
}

func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: /healthz %d", ErrUnexpectedStatus, status)
	}
	return nil
}

// playSubject submits every step for one subject in order, resubmits the last
// event id to probe deduplication and finally confirms safety.
func playSubject(ctx context.Context, client *HTTPClient, v *verifier, cfg *Config, subjectID string, c *counters) []Submission {
	log := logger.Get()
	plan, _ := steps(cfg.Scenario, cfg.Count)

	var (
		recent []model.Event
		last   types.EventRequest
		out    = make([]Submission, 0, len(plan))
	)
	for i, step := range plan {
		if ctx.Err() != nil {
			return out
		}
		if i > 0 && cfg.Interval > 0 {
			time.Sleep(cfg.Interval)
		}
		now := cfg.Now()
		req := buildRequest(subjectID, step, recent, now)

		c.submitted.Add(1)
		var resp types.EventResponse
		if err := client.Post(ctx, "/v1/events", req, &resp); err != nil {
			c.failed.Add(1)
			log.Warn(ctx, "event submission failed",
				logger.String("subject", subjectID),
				logger.String("type", string(step.Kind)),
				logger.Error(err))
			continue
		}
		c.successful.Add(1)
		if resp.Armed {
			c.armed.Add(1)
		}

		var expected int
		recent, expected = v.expect(recent, req, now)
		if !v.matches(resp, expected) {
			c.mismatches.Add(1)
			log.Warn(ctx, "score mismatch",
				logger.String("subject", subjectID),
				logger.String("event", req.EventID),
				logger.Int("score", resp.Score),
				logger.Int("expected", expected),
				logger.String("level", string(resp.Level)))
		} else if cfg.Verbose {
			log.Info(ctx, "event scored",
				logger.String("subject", subjectID),
				logger.String("type", string(step.Kind)),
				logger.Int("score", resp.Score),
				logger.Bool("armed", resp.Armed))
		}
		out = append(out, Submission{
			SubjectID: subjectID,
			EventID:   req.EventID,
			Type:      string(step.Kind),
			Score:     resp.Score,
			Expected:  expected,
			Level:     string(resp.Level),
			Armed:     resp.Armed,
		})
		last = req
	}

	if last.EventID != "" {
		var resp types.EventResponse
		if err := client.Post(ctx, "/v1/events", last, &resp); err != nil {
			log.Warn(ctx, "duplicate probe failed", logger.String("subject", subjectID), logger.Error(err))
		} else if resp.Duplicate {
			c.duplicate.Add(1)
		} else {
			c.rescored.Add(1)
			log.Warn(ctx, "resubmitted event was scored again", logger.String("subject", subjectID), logger.String("event", last.EventID))
		}
	}

	if err := client.Post(ctx, "/v1/alerts/safe", types.SafeRequest{SubjectID: subjectID}, nil); err != nil {
		log.Warn(ctx, "failed to resolve subject", logger.String("subject", subjectID), logger.Error(err))
	}
	return out
}

func saveReport(filename string, report []Submission) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(filename, data, reportPermission)
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, eventsPerSecond float64
	if stats.EventsSubmitted > 0 {
		successRate = float64(stats.EventsSuccessful) / float64(stats.EventsSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsSuccessful", stats.EventsSuccessful),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("mismatches", stats.Mismatches),
		logger.Int("armed", stats.Armed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
