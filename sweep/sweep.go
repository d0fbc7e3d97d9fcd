// Package sweep proactively refreshes access tokens that are about to expire and clears
// out expired OAuth states.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/integrations"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/organizations"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = time.Hour
	// DefaultWindow is how close to expiry a token must be to get refreshed.
	DefaultWindow = 30 * time.Minute
	pageSize      = 100
)

// Skip reasons, also used as the outcome label of skipped connections.
const (
	SkipInactive       = "skipped_inactive"
	SkipNotExpiring    = "skipped_not_expiring"
	SkipNoRefreshToken = "skipped_no_refresh_token"
)

type Refresher interface {
	RefreshConnection(ctx context.Context, key connections.Key) (*integrations.RefreshResult, error)
}

type ConnectionLister interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]*connections.Connection, error)
	ListLegacy(ctx context.Context, organizationID string, provider providers.Name, userIDs []string) ([]*connections.LegacyRecord, error)
}

// Summary counts what a single sweep did.
type Summary struct {
	Organizations     int            `json:"organizations"`
	Examined          int            `json:"examined"`
	Legacy            int            `json:"legacy"`
	Refreshed         int            `json:"refreshed"`
	Failed            int            `json:"failed"`
	Deactivated       int            `json:"deactivated"`
	ReconnectRequired int            `json:"reconnectRequired"`
	Skipped           map[string]int `json:"skipped"`
	StatesPurged      int            `json:"statesPurged"`
	Duration          time.Duration  `json:"duration"`
}

type Sweeper struct {
	organizations organizations.Repo
	connections   ConnectionLister
	refresher     Refresher
	states        oauthstate.Repo
	interval      time.Duration
	window        time.Duration
	providers     []providers.Name
	metrics       *Metrics
	now           func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(s *Sweeper) {
		s.window = d
	}
}

// WithProviders names the providers whose unmigrated legacy records are swept too.
// Legacy records that get refreshed are migrated on the way.
func WithProviders(names ...providers.Name) Option {
	return func(s *Sweeper) {
		s.providers = names
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// New builds a sweeper. states may be nil to skip the state purge.
func New(orgs organizations.Repo, conns ConnectionLister, refresher Refresher, states oauthstate.Repo, opts ...Option) *Sweeper {
	s := &Sweeper{
		organizations: orgs,
		connections:   conns,
		refresher:     refresher,
		states:        states,
		interval:      DefaultInterval,
		window:        DefaultWindow,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a sweep immediately and then every interval until Stop. Only the first
// call starts the loop.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		s.started = true
		go s.run()
		log.Info().Dur("interval", s.interval).Msg("Refresh sweep started")
	})
}

// Stop waits for an in-progress sweep to finish. It is a no-op before Start and
// after the first call. Start and Stop must not race each other.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		// A later Start finds the once spent and does nothing.
		s.startOnce.Do(func() {})
		close(s.stopCh)
		if s.started {
			<-s.doneCh
			log.Info().Msg("Refresh sweep stopped")
		}
	})
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.runLogged(ctx)
	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("Refresh sweep failed")
	}
}

// RunOnce walks every organization's connections sequentially. A failure on one
// connection never stops the sweep; only listing errors abort it.
func (s *Sweeper) RunOnce(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Skipped: map[string]int{}}

	for offset := 0; ; offset += pageSize {
		orgs, err := s.organizations.List(ctx, offset, pageSize)
		if err != nil {
			return sum, err
		}
		for _, org := range orgs {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			sum.Organizations++
			s.sweepOrganization(ctx, org, sum)
		}
		if len(orgs) < pageSize {
			break
		}
	}

	if s.states != nil {
		purged, err := s.states.DeleteExpired(ctx, s.now())
		if err != nil {
			log.Error().Err(err).Msg("Failed to purge expired OAuth states")
		}
		sum.StatesPurged = purged
	}

	sum.Duration = time.Since(start)
	if s.metrics != nil {
		s.metrics.Runs.Inc()
		s.metrics.StatesPurged.Add(float64(sum.StatesPurged))
		s.metrics.Duration.Observe(sum.Duration.Seconds())
	}
	log.Info().
		Int("organizations", sum.Organizations).
		Int("examined", sum.Examined).
		Int("legacy", sum.Legacy).
		Int("refreshed", sum.Refreshed).
		Int("failed", sum.Failed).
		Int("deactivated", sum.Deactivated).
		Int("reconnectRequired", sum.ReconnectRequired).
		Int("statesPurged", sum.StatesPurged).
		Dur("duration", sum.Duration).
		Msg("Refresh sweep completed")
	return sum, nil
}

func (s *Sweeper) sweepOrganization(ctx context.Context, org *organizations.Organization, sum *Summary) {
	conns, err := s.connections.ListByOrganization(ctx, org.ID)
	if err != nil {
		log.Error().Err(err).Str("organizationId", org.ID).Msg("Failed to list connections")
		return
	}
	for _, c := range conns {
		s.sweepConnection(ctx, org.ID, c, connections.KeyOf(c), sum)
	}

	for _, provider := range s.providers {
		records, err := s.connections.ListLegacy(ctx, org.ID, provider, org.MemberIDs)
		if err != nil {
			log.Error().Err(err).
				Str("organizationId", org.ID).
				Str("provider", provider.String()).
				Msg("Failed to list legacy connections")
			continue
		}
		for _, rec := range records {
			sum.Legacy++
			s.sweepConnection(ctx, org.ID, rec.Connection, rec.Key, sum)
		}
	}
}

func (s *Sweeper) sweepConnection(ctx context.Context, organizationID string, c *connections.Connection, key connections.Key, sum *Summary) {
	sum.Examined++
	if reason := s.skipReason(c, s.now()); reason != "" {
		sum.Skipped[reason]++
		s.count(c, reason)
		if reason == SkipNoRefreshToken {
			log.Info().
				Str("organizationId", organizationID).
				Str("provider", c.Provider.String()).
				Msg("Connection is expiring but has no refresh token")
		}
		return
	}

	res, err := s.refresher.RefreshConnection(ctx, key)
	outcome := integrations.OutcomeNotAttempted
	if res != nil {
		outcome = res.Outcome
	}
	switch outcome {
	case integrations.OutcomeRefreshed:
		sum.Refreshed++
	case integrations.OutcomeDeactivated:
		sum.Deactivated++
	case integrations.OutcomeReconnectRequired:
		sum.ReconnectRequired++
	default:
		sum.Failed++
	}
	s.count(c, string(outcome))
	if err != nil && outcome == integrations.OutcomeNotAttempted {
		log.Warn().Err(err).
			Str("organizationId", organizationID).
			Str("provider", c.Provider.String()).
			Msg("Connection was not refreshed")
	}
}

func (s *Sweeper) skipReason(c *connections.Connection, now time.Time) string {
	switch {
	case !c.IsActive || c.RequiresReconnection || c.Migrated():
		return SkipInactive
	case !c.ExpiresWithin(now, s.window):
		return SkipNotExpiring
	case c.RefreshToken == "":
		return SkipNoRefreshToken
	}
	return ""
}

func (s *Sweeper) count(c *connections.Connection, outcome string) {
	if s.metrics != nil {
		s.metrics.Connections.WithLabelValues(c.Provider.String(), outcome).Inc()
	}
}
