// Package store holds the records kept in sync: accounts own domains, domains
// own records, and each account maps record ids to the address they track.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/evanofslack/ddns-sync/internal/address"
	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

const recordType = "A"

type Record struct {
	ID    string
	Sub   string
	Type  string
	Value string // last value pushed, or the remote value found at setup
	TTL   int
}

// Provider returns the record in the form a provider updates.
func (r *Record) Provider(zone string) provider.Record {
	return provider.Record{
		ID:   r.ID,
		Name: r.Sub,
		Type: r.Type,
		Data: r.Value,
		Zone: zone,
		TTL:  provider.TTL(r.TTL),
	}
}

type Domain struct {
	Name    string
	Records []*Record
}

type Account struct {
	Name     string
	Provider provider.Provider
	Domains  []*Domain
	sources  map[string]address.Kind
}

// Source reports which address the record with id tracks.
func (a *Account) Source(id string) (address.Kind, bool) {
	k, ok := a.sources[id]
	return k, ok
}

// Store is the active set of records, built once at startup.
type Store struct {
	Accounts []*Account
}

// Len counts the records in the active set.
func (s *Store) Len() int {
	n := 0
	for _, a := range s.Accounts {
		for _, d := range a.Domains {
			n += len(d.Records)
		}
	}
	return n
}

// ZoneCounts counts the records in the active set per zone, summed across
// accounts sharing a zone.
func (s *Store) ZoneCounts() map[string]int {
	counts := make(map[string]int)
	for _, a := range s.Accounts {
		for _, d := range a.Domains {
			counts[d.Name] += len(d.Records)
		}
	}
	return counts
}

// AccountSpec pairs a configured account with the provider built for it.
type AccountSpec struct {
	Name     string
	Provider provider.Provider
	Domains  []config.Domain
}

// Build looks up every configured record at its provider. Records the
// provider does not know are skipped; they are never created. Build only
// fails when ctx is done.
func Build(ctx context.Context, specs []AccountSpec, timeout time.Duration) (*Store, error) {
	s := &Store{}
	for _, spec := range specs {
		account := &Account{
			Name:     spec.Name,
			Provider: spec.Provider,
			sources:  make(map[string]address.Kind),
		}
		for _, d := range spec.Domains {
			slog.Info("Checking DNS records", "account", spec.Name, "zone", d.Name, "configured", len(d.Records))
			domain := &Domain{Name: d.Name}
			for _, rc := range d.Records {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				record, ok := lookup(ctx, spec.Provider, d.Name, rc, timeout)
				if !ok {
					continue
				}
				if _, dup := account.sources[record.ID]; dup {
					slog.Warn("Skipping duplicate record", "account", spec.Name, "zone", d.Name, "name", rc.Name, "id", record.ID)
					continue
				}
				source := address.Local
				if rc.Public {
					source = address.Public
				}
				account.sources[record.ID] = source
				domain.Records = append(domain.Records, record)
				slog.Info("Tracking DNS record",
					"index", len(domain.Records),
					"name", rc.Name+"."+d.Name,
					"public", rc.Public,
					"ttl", rc.TTL,
					"value", record.Value)
			}
			account.Domains = append(account.Domains, domain)
		}
		s.Accounts = append(s.Accounts, account)
	}
	return s, nil
}

func lookup(ctx context.Context, p provider.Provider, zone string, rc config.Record, timeout time.Duration) (*Record, bool) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	found, err := p.Lookup(ctx, zone, rc.Name, recordType)
	if err != nil {
		slog.Error("Skipping unresolvable record", "zone", zone, "name", rc.Name, "error", err)
		return nil, false
	}
	if found.ID == "" {
		slog.Error("Skipping record without id", "zone", zone, "name", rc.Name)
		return nil, false
	}
	return &Record{
		ID:    found.ID,
		Sub:   rc.Name,
		Type:  recordType,
		Value: found.Data,
		TTL:   rc.TTL,
	}, true
}
