package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/evanofslack/ddns-sync/internal/state"
	"github.com/evanofslack/ddns-sync/internal/store"
)

type MockResolver struct {
	addrs []string // one per call, the last one repeats
	err   error
	calls int
}

func (m *MockResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	m.calls++
	if m.err != nil {
		return netip.Addr{}, m.err
	}
	i := min(m.calls-1, len(m.addrs)-1)
	return netip.MustParseAddr(m.addrs[i]), nil
}

type MockProvider struct {
	records   map[string]provider.Record
	updateErr map[string]error // by record name
	updates   []provider.Record
}

func (m *MockProvider) Lookup(ctx context.Context, zone, name, recordType string) (provider.Record, error) {
	r, ok := m.records[name]
	if !ok {
		return provider.Record{}, fmt.Errorf("%s: %w", name, provider.ErrRecordNotFound)
	}
	return r, nil
}

func (m *MockProvider) Update(ctx context.Context, zone string, r provider.Record) error {
	if err := m.updateErr[r.Name]; err != nil {
		return err
	}
	m.updates = append(m.updates, r)
	return nil
}

func newProvider() *MockProvider {
	return &MockProvider{
		records: map[string]provider.Record{
			"home": {ID: "1", Name: "home", Type: "A", Data: "192.168.1.9"},
			"www":  {ID: "2", Name: "www", Type: "A", Data: "198.51.100.9"},
			"nas":  {ID: "3", Name: "nas", Type: "A", Data: "192.168.1.9"},
		},
		updateErr: map[string]error{},
	}
}

func buildStore(t *testing.T, p provider.Provider) *store.Store {
	t.Helper()
	specs := []store.AccountSpec{{
		Name:     "cloudflare",
		Provider: p,
		Domains: []config.Domain{{
			Name: "example.com",
			Records: []config.Record{
				{Name: "home", TTL: 600},
				{Name: "www", Public: true, TTL: 600},
				{Name: "nas", TTL: 600},
			},
		}},
	}}
	s, err := store.Build(context.Background(), specs, time.Second)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 tracked records, got %d", s.Len())
	}
	return s
}

func newEngine(t *testing.T, s *store.Store, public, local *MockResolver) (*engine, state.Journal) {
	t.Helper()
	journal, err := state.New(metrics.New(false))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	return NewEngine(s, public, local, journal, metrics.New(false), time.Second), journal
}

func values(updates []provider.Record) map[string]string {
	v := map[string]string{}
	for _, u := range updates {
		v[u.Name] = u.Data
	}
	return v
}

func TestEngine(t *testing.T) {
	tests := []struct {
		name          string
		public        *MockResolver
		local         *MockResolver
		updateErr     map[string]error
		expected      map[string]string
		expectSkipped bool
		expectFailed  []string
	}{
		{
			name:   "each record gets the address it tracks",
			public: &MockResolver{addrs: []string{"203.0.113.7"}},
			local:  &MockResolver{addrs: []string{"192.168.1.5"}},
			expected: map[string]string{
				"home": "192.168.1.5",
				"www":  "203.0.113.7",
				"nas":  "192.168.1.5",
			},
		},
		{
			name:          "local unavailable skips the cycle",
			public:        &MockResolver{addrs: []string{"203.0.113.7"}},
			local:         &MockResolver{err: errors.New("no route")},
			expected:      map[string]string{},
			expectSkipped: true,
		},
		{
			name:   "public unavailable only skips public records",
			public: &MockResolver{err: errors.New("timeout")},
			local:  &MockResolver{addrs: []string{"192.168.1.5"}},
			expected: map[string]string{
				"home": "192.168.1.5",
				"nas":  "192.168.1.5",
			},
			expectFailed: []string{"www"},
		},
		{
			name:      "one failed update does not stop the others",
			public:    &MockResolver{addrs: []string{"203.0.113.7"}},
			local:     &MockResolver{addrs: []string{"192.168.1.5"}},
			updateErr: map[string]error{"home": errors.New("rate limited")},
			expected: map[string]string{
				"www": "203.0.113.7",
				"nas": "192.168.1.5",
			},
			expectFailed: []string{"home"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider()
			if tt.updateErr != nil {
				p.updateErr = tt.updateErr
			}
			e, _ := newEngine(t, buildStore(t, p), tt.public, tt.local)

			results := e.Reconcile(context.Background())

			if results.Skipped != tt.expectSkipped {
				t.Fatalf("expected skipped=%v, got %v", tt.expectSkipped, results.Skipped)
			}
			got := values(p.updates)
			if len(got) != len(tt.expected) {
				t.Errorf("expected %d updates, got %d: %v", len(tt.expected), len(got), got)
			}
			for name, want := range tt.expected {
				if got[name] != want {
					t.Errorf("%s: expected %s, got %s", name, want, got[name])
				}
			}
			if len(results.Failures) != len(tt.expectFailed) {
				t.Fatalf("expected %d failures, got %+v", len(tt.expectFailed), results.Failures)
			}
			for i, name := range tt.expectFailed {
				if results.Failures[i].Record.Name != name {
					t.Errorf("failure %d: expected %s, got %s", i, name, results.Failures[i].Record.Name)
				}
			}
		})
	}
}

func TestEngineSkippedKeepsValues(t *testing.T) {
	p := newProvider()
	s := buildStore(t, p)
	e, _ := newEngine(t, s, &MockResolver{addrs: []string{"203.0.113.7"}}, &MockResolver{err: errors.New("down")})

	results := e.Reconcile(context.Background())
	if results.Status() != "skipped" {
		t.Fatalf("expected skipped status, got %s", results.Status())
	}
	for _, rec := range s.Accounts[0].Domains[0].Records {
		if want := p.records[rec.Sub].Data; rec.Value != want {
			t.Errorf("%s: expected value to stay %s, got %s", rec.Sub, want, rec.Value)
		}
	}
}

func TestEngineRepeatedCycles(t *testing.T) {
	p := newProvider()
	public := &MockResolver{addrs: []string{"203.0.113.7"}}
	local := &MockResolver{addrs: []string{"192.168.1.5", "192.168.1.5", "192.168.1.6"}}
	e, journal := newEngine(t, buildStore(t, p), public, local)

	first := e.Reconcile(context.Background())
	second := e.Reconcile(context.Background())
	if first.Status() != "success" || second.Status() != "success" {
		t.Fatalf("expected two successful cycles, got %s and %s", first.Status(), second.Status())
	}
	if len(p.updates) != 6 {
		t.Fatalf("expected every record pushed every cycle, got %d updates", len(p.updates))
	}
	if values(p.updates[:3])["home"] != values(p.updates[3:])["home"] {
		t.Errorf("expected identical values for identical addresses")
	}

	third := e.Reconcile(context.Background())
	if third.Local != netip.MustParseAddr("192.168.1.6") {
		t.Fatalf("expected new local address, got %s", third.Local)
	}
	latest := values(p.updates[6:])
	if latest["home"] != "192.168.1.6" || latest["nas"] != "192.168.1.6" {
		t.Errorf("expected local records to follow the new address, got %v", latest)
	}
	if latest["www"] != "203.0.113.7" {
		t.Errorf("expected public record unchanged, got %s", latest["www"])
	}

	entries, err := journal.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected one journal entry per record, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Error != "" || entry.Failures != 0 {
			t.Errorf("expected clean entry, got %+v", entry)
		}
	}
}

func TestEngineJournalCountsFailures(t *testing.T) {
	p := newProvider()
	p.updateErr["www"] = errors.New("forbidden")
	e, journal := newEngine(t, buildStore(t, p),
		&MockResolver{addrs: []string{"203.0.113.7"}},
		&MockResolver{addrs: []string{"192.168.1.5"}})

	e.Reconcile(context.Background())
	results := e.Reconcile(context.Background())
	if results.Status() != "partial" {
		t.Fatalf("expected partial status, got %s", results.Status())
	}

	entries, err := journal.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, entry := range entries {
		if entry.Name != "www" {
			continue
		}
		if entry.Failures != 2 {
			t.Errorf("expected 2 consecutive failures, got %d", entry.Failures)
		}
		if entry.Error == "" {
			t.Errorf("expected error to be recorded")
		}
		return
	}
	t.Fatalf("expected a journal entry for www")
}
