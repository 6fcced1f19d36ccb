// Package poller runs the fetch/decode/deliver loop.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/florianw/stationpoller/internal/graphite"
	"github.com/florianw/stationpoller/internal/protocol"
	"github.com/florianw/stationpoller/internal/schema"
	"github.com/florianw/stationpoller/internal/station"
	"github.com/florianw/stationpoller/internal/telemetry"
	"github.com/florianw/stationpoller/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fetcher retrieves one validated response frame from the station
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
	FetchCommand(ctx context.Context, cmd []byte) ([]byte, error)
}

// Deliverer sends one batch to the collector
type Deliverer interface {
	Deliver(ctx context.Context, batch types.Batch, prefix string) error
}

// Config holds the poll loop settings
type Config struct {
	Interval      time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	CycleDeadline time.Duration
	MetricPrefix  string
	PollMinMax    bool
}

// Poller drives the fixed-interval poll loop. Exactly one cycle is in
// flight at a time; cycle failures never stop the loop.
type Poller struct {
	config  Config
	fetcher Fetcher
	sink    Deliverer
	schema  schema.Schema
	metrics *telemetry.Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// New creates a poller with defaults applied
func New(config Config, fetcher Fetcher, sink Deliverer, s schema.Schema, metrics *telemetry.Metrics, logger *zap.SugaredLogger) *Poller {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 10
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.CycleDeadline == 0 {
		config.CycleDeadline = 45 * time.Second
	}

	return &Poller{
		config:  config,
		fetcher: fetcher,
		sink:    sink,
		schema:  s,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Run polls immediately and then on every tick until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	p.logger.Infof("starting poll loop, interval %v, max %d retries per cycle", p.config.Interval, p.config.MaxRetries)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle guards one cycle with a watchdog deadline and a panic
// barrier. Uptime takes priority over surfacing any single failure.
func (p *Poller) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("poll cycle panicked: %v", r)
			if p.metrics != nil {
				p.metrics.CyclesFailed.Inc()
			}
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, p.config.CycleDeadline)
	defer cancel()

	if p.metrics != nil {
		p.metrics.CyclesTotal.Inc()
	}

	cycleID := uuid.New().String()[:8]

	attempts, err := p.Cycle(cycleCtx)
	if err != nil {
		p.logger.Errorf("[%s] cycle failed after %d attempts: %v", cycleID, attempts, err)
		if p.metrics != nil {
			p.metrics.CyclesFailed.Inc()
		}
		return
	}

	p.logger.Infof("[%s] cycle completed in %d attempt(s)", cycleID, attempts)
	if p.metrics != nil {
		p.metrics.CyclesSucceeded.Inc()
	}
}

// Cycle performs one poll cycle: up to MaxRetries attempts of
// fetch→decode→deliver, stopping at the first successful delivery.
// It returns the number of attempts made.
func (p *Poller) Cycle(ctx context.Context) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return attempt - 1, fmt.Errorf("cycle deadline reached: %w", ctx.Err())
			case <-time.After(p.config.RetryDelay):
			}
		}

		if err := p.attempt(ctx); err != nil {
			lastErr = err
			p.countAttempt(err)
			p.logger.Warnf("attempt %d/%d failed: %v", attempt, p.config.MaxRetries, err)
			continue
		}

		p.countAttempt(nil)
		return attempt, nil
	}

	return p.config.MaxRetries, fmt.Errorf("all %d attempts failed, last error: %w", p.config.MaxRetries, lastErr)
}

// attempt is one full fetch→decode→deliver sequence. A delivery failure
// causes a fresh fetch on the next attempt, never a bare resend.
func (p *Poller) attempt(ctx context.Context) error {
	frame, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}

	timestamp := p.now().Unix()
	batch, err := protocol.Decode(frame, p.schema, timestamp)
	if err != nil {
		return err
	}

	if p.config.PollMinMax {
		batch = append(batch, p.fetchExtremes(ctx, timestamp)...)
	}

	return p.sink.Deliver(ctx, batch, p.config.MetricPrefix)
}

// fetchExtremes fetches the min and max value frames. These are
// best-effort extras; a failure only logs and never fails the cycle.
func (p *Poller) fetchExtremes(ctx context.Context, timestamp int64) types.Batch {
	var extra types.Batch

	for _, e := range []struct {
		suffix string
		cmd    []byte
	}{
		{".min", protocol.CmdReadMin},
		{".max", protocol.CmdReadMax},
	} {
		suffix := e.suffix
		frame, err := p.fetcher.FetchCommand(ctx, e.cmd)
		if err != nil {
			p.logger.Warnf("skipping %s values: %v", suffix[1:], err)
			continue
		}
		batch, err := protocol.Decode(frame, p.schema, timestamp)
		if err != nil {
			p.logger.Warnf("skipping %s values: %v", suffix[1:], err)
			continue
		}
		for _, r := range batch {
			r.Name += suffix
			extra = append(extra, r)
		}
	}

	return extra
}

func (p *Poller) countAttempt(err error) {
	if p.metrics == nil {
		return
	}

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, station.ErrConnect):
		result = "connect_error"
	case errors.Is(err, protocol.ErrProtocol):
		result = "protocol_error"
	case errors.Is(err, graphite.ErrSend):
		result = "send_error"
	default:
		result = "other"
	}

	p.metrics.Attempts.WithLabelValues(result).Inc()
}
