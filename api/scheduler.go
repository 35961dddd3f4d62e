/*
scheduler.go - Overdue issuance scheduler

PURPOSE:
  Periodically lists outstanding issuances past their due date and logs
  them, so staff see overdue loans without polling the API.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Read-only: it never returns, fines or otherwise mutates an issuance

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(issuance, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - issued_books.go: GET /get-overdue-issued-books (same query, on demand)
  - library/issuance.go: ListOverdue
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/library-engine/library"
)

// OverdueScheduler reports overdue issuances on a ticker.
type OverdueScheduler struct {
	Issuance      *library.Issuance
	CheckInterval time.Duration
	Enabled       bool

	log    logrus.FieldLogger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// OverdueReport is the result of one check.
type OverdueReport struct {
	CheckedAt time.Time
	Overdue   int
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(issuance *library.Issuance, log logrus.FieldLogger) *OverdueScheduler {
	return &OverdueScheduler{
		Issuance:      issuance,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log.WithField("component", "overdue-scheduler"),
	}
}

// Start begins the scheduler. Starting twice is a no-op.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.WithField("interval", s.CheckInterval.String()).Info("started")
}

// Stop stops the scheduler and waits for an in-flight check.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("stopped")
}

func (s *OverdueScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one check (for testing/admin).
func (s *OverdueScheduler) RunNow(ctx context.Context) (OverdueReport, error) {
	now := s.Issuance.Now()
	report := OverdueReport{CheckedAt: now}

	overdue, err := s.Issuance.ListOverdue(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("failed to list overdue issued books")
		return report, err
	}

	for _, v := range overdue {
		entry := s.log.WithFields(logrus.Fields{
			"issued_book_id": v.ID,
			"book_id":        v.BookID,
			"reader_id":      v.ReaderID,
			"due_date":       v.DueDate.Format("2006-01-02"),
			"days_overdue":   int(now.Sub(v.DueDate).Hours() / 24),
		})
		if v.Reader != nil {
			entry = entry.WithField("reader_email", v.Reader.Email)
		}
		entry.Warn("issued book is overdue")
	}

	report.Overdue = len(overdue)
	s.log.WithField("overdue", report.Overdue).Info("overdue check completed")
	return report, nil
}
