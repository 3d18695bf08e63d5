// Package scheduler runs the inquiry pipeline over every active email
// connection on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/nikhil/creatortent/internal/inquiry"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/models"
)

// Lister returns the connections to sync.
type Lister interface {
	ListActiveConnections(ctx context.Context) ([]models.EmailConnection, error)
}

// Syncer syncs one connection.
type Syncer interface {
	SyncConnection(ctx context.Context, conn models.EmailConnection) (inquiry.Result, error)
}

// Summary totals one pass over all connections.
type Summary struct {
	Connections int `json:"connections"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Inquiries   int `json:"inquiries"`
	AutoReplies int `json:"auto_replies"`
}

// Scheduler fans sync passes out over a bounded number of goroutines.
type Scheduler struct {
	lister      Lister
	syncer      Syncer
	concurrency int
	// perConnection bounds a single connection's pass.
	perConnection time.Duration
	log           *logger.Logger

	cron *cron.Cron
}

// New returns a Scheduler running at most concurrency syncs at once.
func New(lister Lister, syncer Syncer, concurrency int) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		lister:        lister,
		syncer:        syncer,
		concurrency:   concurrency,
		perConnection: 5 * time.Minute,
		log:           logger.NewLogger("sync-scheduler"),
	}
}

// RunOnce syncs every active connection. A failing connection is logged and
// counted; it never stops the others.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	conns, err := s.lister.ListActiveConnections(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list connections: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Connections: len(conns)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.perConnection)
			defer cancel()

			res, err := s.syncer.SyncConnection(cctx, conn)

			mu.Lock()
			defer mu.Unlock()
			summary.Inquiries += res.Inquiries
			summary.AutoReplies += res.AutoReplies
			if err != nil {
				summary.Failed++
				s.log.WithConnection(conn.ID, conn.Provider).Warn("Connection sync failed", "error", err)
				return nil
			}
			summary.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("Sync pass finished", "connections", summary.Connections, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "inquiries", summary.Inquiries)
	return summary, ctx.Err()
}

// Start schedules RunOnce on spec (standard cron or "@every 10m"). A pass
// still running when the next one is due is skipped.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	l := cronLogger{s.log}
	c := cron.New(cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)), cron.WithLogger(l))
	if _, err := c.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.log.Info("Sync scheduler started", "schedule", spec, "concurrency", s.concurrency)
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// cronLogger adapts the zap wrapper to cron's logger interface.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
