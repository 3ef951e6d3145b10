package dashboard

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/webfleet-sh/webfleet/pkg/manager"
	"github.com/webfleet-sh/webfleet/pkg/resilience"
)

// defaultInterval is the monitoring sample period.
const defaultInterval = 15 * time.Second

// statusConcurrency bounds how many app status checks run at once.
const statusConcurrency = 4

// appView is the per-app payload pushed to dashboards.
type appView struct {
	Application
	ServiceState string `json:"service_state"`
	Reachable    bool   `json:"reachable"`
}

// Monitor periodically samples system usage and app health, persists the
// samples and pushes them to connected dashboards.
type Monitor struct {
	mgr      *manager.Manager
	store    *Store
	hub      *Hub
	log      zerolog.Logger
	interval time.Duration

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// NewMonitor creates a monitor with the default interval.
func NewMonitor(mgr *manager.Manager, store *Store, hub *Hub, log zerolog.Logger) *Monitor {
	return &Monitor{
		mgr:      mgr,
		store:    store,
		hub:      hub,
		log:      log,
		interval: defaultInterval,
		breakers: make(map[string]*resilience.Breaker),
	}
}

// Run samples until ctx is done. The first sample happens immediately so
// a freshly opened dashboard is not empty for a full interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	if usage, err := SampleUsage(); err == nil {
		if err := m.store.InsertUsage(usage); err != nil {
			m.log.Warn().Err(err).Msg("store usage sample")
		}
		m.hub.Broadcast(Event{Type: "usage", Data: usage})
	} else {
		m.log.Warn().Err(err).Msg("sample system usage")
	}

	views, err := m.refreshApps(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("refresh application status")
		return
	}
	m.hub.Broadcast(Event{Type: "applications", Data: views})
}

// refreshApps reloads the registry, mirrors it into SQLite and collects
// live status for each app concurrently.
func (m *Monitor) refreshApps(ctx context.Context) ([]appView, error) {
	doc, err := m.mgr.Registry().Load()
	if err != nil {
		return nil, err
	}
	apps := doc.List()

	views := make([]appView, len(apps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for i, app := range apps {
		g.Go(func() error {
			view := appView{Application: Application{
				Domain:  app.Domain,
				Port:    app.Port,
				AppType: app.AppType,
				Source:  app.Source,
				Branch:  app.Branch,
				SSL:     app.SSL,
				Status:  app.Status,
			}}

			var status *manager.AppStatus
			err := m.breaker(app.Domain).Execute(func() error {
				var statusErr error
				status, statusErr = m.mgr.Status(ctx, app.Domain)
				return statusErr
			})
			if err != nil {
				view.ServiceState = "unknown"
				m.logAppIssue(app.Domain, err)
			} else {
				view.ServiceState = status.ServiceState
				view.Reachable = status.Reachable
				view.Status = status.App.Status
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(views))
	for _, view := range views {
		domains = append(domains, view.Domain)
		if err := m.store.UpsertApplication(view.Application); err != nil {
			m.log.Warn().Err(err).Str("domain", view.Domain).Msg("mirror application")
		}
	}
	if err := m.store.PruneApplications(domains); err != nil {
		m.log.Warn().Err(err).Msg("prune application mirror")
	}
	return views, nil
}

// breaker returns the per-app circuit breaker, creating it on first use.
// A flapping app stops being probed for a while instead of slowing every
// monitoring cycle down.
func (m *Monitor) breaker(domain string) *resilience.Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[domain]
	if !ok {
		b = resilience.NewBreaker("status:" + domain)
		m.breakers[domain] = b
	}
	return b
}

func (m *Monitor) logAppIssue(domain string, err error) {
	line := LogLine{
		Level:   "warning",
		Source:  domain,
		Message: fmt.Sprintf("status check failed: %v", err),
	}
	if storeErr := m.store.InsertLog(line); storeErr != nil {
		m.log.Warn().Err(storeErr).Msg("store log line")
	}
	m.hub.Broadcast(Event{Type: "log", Data: line})
}

// SampleUsage reads load, memory and root-filesystem usage from the
// kernel interfaces.
func SampleUsage() (UsageSample, error) {
	sample := UsageSample{SampledAt: time.Now()}

	load, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return sample, fmt.Errorf("read loadavg: %w", err)
	}
	if fields := strings.Fields(string(load)); len(fields) > 0 {
		sample.CPULoad, _ = strconv.ParseFloat(fields[0], 64)
	}

	total, available, err := readMeminfo()
	if err != nil {
		return sample, err
	}
	sample.MemoryTotal = total
	sample.MemoryUsed = total - available

	var fs unix.Statfs_t
	if err := unix.Statfs("/", &fs); err != nil {
		return sample, fmt.Errorf("statfs /: %w", err)
	}
	sample.DiskTotal = fs.Blocks * uint64(fs.Bsize)
	sample.DiskUsed = (fs.Blocks - fs.Bavail) * uint64(fs.Bsize)

	return sample, nil
}

func readMeminfo() (total, available uint64, err error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0, fmt.Errorf("read meminfo: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, parseErr := strconv.ParseUint(fields[1], 10, 64)
		if parseErr != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = kb * 1024
		case "MemAvailable:":
			available = kb * 1024
		}
	}
	return total, available, nil
}
