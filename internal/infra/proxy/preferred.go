package proxy

import (
	"log/slog"
	"net/url"
	"sync"
	"time"

	"feedgate/internal/infra/store"
)

const preferredKey = "by-host"

// preferredEntry is the persisted form: endpoint name plus the epoch-millis
// timestamp it was recorded at.
type preferredEntry struct {
	Name string `json:"name"`
	TS   int64  `json:"ts"`
}

// preferredHosts remembers which endpoint last succeeded for each target
// host, so repeat visits skip straight to a known-working relay. Entries
// expire after the configured TTL and are cleared when the remembered
// endpoint fails for that host.
type preferredHosts struct {
	ttl    time.Duration
	snaps  *store.SnapshotStore
	logger *slog.Logger
	clock  func() time.Time

	mu    sync.Mutex
	hosts map[string]preferredEntry
}

func newPreferredHosts(ttl time.Duration, snaps *store.SnapshotStore, logger *slog.Logger) *preferredHosts {
	p := &preferredHosts{
		ttl:    ttl,
		snaps:  snaps,
		logger: logger,
		clock:  time.Now,
		hosts:  make(map[string]preferredEntry),
	}
	p.restore()
	return p
}

// get returns the remembered endpoint name for a host, dropping the entry
// when it has aged past the TTL.
func (p *preferredHosts) get(host string) (string, bool) {
	if host == "" {
		return "", false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.hosts[host]
	if !ok {
		return "", false
	}
	if p.clock().Sub(time.UnixMilli(e.TS)) > p.ttl {
		delete(p.hosts, host)
		p.persistLocked()
		return "", false
	}
	return e.Name, true
}

// set remembers the endpoint that just succeeded for a host.
func (p *preferredHosts) set(host, endpointName string) {
	if host == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.hosts[host] = preferredEntry{Name: endpointName, TS: p.clock().UnixMilli()}
	p.persistLocked()
}

// clear forgets the preferred endpoint for a host, but only when the failing
// endpoint is the one remembered.
func (p *preferredHosts) clear(host, endpointName string) {
	if host == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.hosts[host]; ok && e.Name == endpointName {
		delete(p.hosts, host)
		p.persistLocked()
	}
}

// persistLocked writes the host map through to the snapshot store.
// Failures are logged and swallowed. Callers hold p.mu.
func (p *preferredHosts) persistLocked() {
	if p.snaps == nil {
		return
	}
	if err := p.snaps.Put(store.BucketPreferred, preferredKey, p.hosts); err != nil {
		p.logger.Warn("failed to persist preferred proxies", slog.Any("error", err))
	}
}

func (p *preferredHosts) restore() {
	if p.snaps == nil {
		return
	}
	var hosts map[string]preferredEntry
	ok, err := p.snaps.Get(store.BucketPreferred, preferredKey, &hosts)
	if err != nil || !ok {
		return
	}
	p.hosts = hosts
}

// targetHost extracts the hostname of a feed URL for preferred-endpoint
// bookkeeping. Unparseable URLs yield an empty host and are not remembered.
func targetHost(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
