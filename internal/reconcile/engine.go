package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/evanofslack/ddns-sync/internal/address"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/evanofslack/ddns-sync/internal/state"
	"github.com/evanofslack/ddns-sync/internal/store"
)

var errPublicUnavailable = errors.New("public address unavailable this cycle")

type Engine interface {
	Reconcile(ctx context.Context) Results
}

type engine struct {
	store   *store.Store
	public  address.Resolver
	local   address.Resolver
	journal state.Journal
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

// addresses is the pair every record of a cycle observes.
type addresses struct {
	public    netip.Addr
	publicErr error
	local     netip.Addr
}

func (a addresses) forSource(source address.Kind) (netip.Addr, error) {
	if source == address.Public {
		return a.public, a.publicErr
	}
	return a.local, nil
}

// NewEngine builds the cycle runner. timeout bounds every single resolver
// and provider call; zero leaves calls unbounded.
func NewEngine(s *store.Store, public, local address.Resolver, journal state.Journal, metrics *metrics.Metrics, timeout time.Duration) *engine {
	return &engine{
		store:   s,
		public:  public,
		local:   local,
		journal: journal,
		metrics: metrics,
		timeout: timeout,
		now:     time.Now,
	}
}

// Reconcile runs one cycle: resolve both addresses, then push the matching
// address to every tracked record in configuration order. Errors are logged
// and collected, never returned.
func (e *engine) Reconcile(ctx context.Context) Results {
	results := Results{}

	pub, pubErr := e.resolve(ctx, address.Public, e.public)
	local, localErr := e.resolve(ctx, address.Local, e.local)
	if localErr != nil {
		slog.Error("Can't get local area address, skipping cycle", "error", localErr)
		results.Skipped = true
		return results
	}
	if pubErr != nil {
		slog.Warn("Can't get public address, skipping records tracking it", "error", pubErr)
	}
	results.Public, results.Local = pub, local
	slog.Info("Fetched addresses", "local", local, "public", pub)

	addrs := addresses{public: pub, publicErr: pubErr, local: local}
	for _, account := range e.store.Accounts {
		for _, domain := range account.Domains {
			for _, rec := range domain.Records {
				source, ok := account.Source(rec.ID)
				if !ok {
					slog.Error("Record has no tracked source", "account", account.Name, "zone", domain.Name, "name", rec.Sub, "id", rec.ID)
					continue
				}

				err := e.sync(ctx, account, domain, rec, source, addrs)
				record := rec.Provider(domain.Name)
				if err != nil {
					slog.Error("Update record failed", "account", account.Name, "zone", domain.Name, "name", rec.Sub, "error", err)
					results.Failures = append(results.Failures, OperationResult{Record: record, Error: err.Error()})
					continue
				}
				slog.Debug("Synced DNS record", "name", rec.Sub, "zone", domain.Name, "value", rec.Value)
				results.Updated = append(results.Updated, record)
			}
		}
	}
	return results
}

// sync points rec at the address its source resolved to and pushes it.
// An unavailable address leaves rec untouched.
func (e *engine) sync(ctx context.Context, account *store.Account, domain *store.Domain, rec *store.Record, source address.Kind, addrs addresses) error {
	entry := state.Entry{
		Account:     account.Name,
		Zone:        domain.Name,
		Name:        rec.Sub,
		ID:          rec.ID,
		Source:      source.String(),
		Value:       rec.Value,
		LastAttempt: e.now().Unix(),
	}

	desired, err := addrs.forSource(source)
	if err != nil {
		err = errPublicUnavailable
	} else {
		rec.Value = desired.String()
		entry.Value = rec.Value
		err = e.update(ctx, account.Provider, rec.Provider(domain.Name))
	}

	if err != nil {
		entry.Error = err.Error()
	}
	e.metrics.IncRecordUpdate(domain.Name, source.String(), err == nil)
	if jerr := e.journal.Record(ctx, entry); jerr != nil {
		slog.Warn("Failed to write sync journal", "zone", domain.Name, "name", rec.Sub, "error", jerr)
	}
	return err
}

func (e *engine) resolve(ctx context.Context, kind address.Kind, r address.Resolver) (netip.Addr, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	addr, err := r.Resolve(ctx)
	if err == nil && !addr.IsValid() {
		err = address.ErrNoAddress
	}
	e.metrics.IncResolution(kind.String(), err == nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s address: %w", kind, err)
	}
	return addr, nil
}

func (e *engine) update(ctx context.Context, p provider.Provider, record provider.Record) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return p.Update(ctx, record.Zone, record)
}

func (e *engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}
