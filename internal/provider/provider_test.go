package provider

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/libdns/libdns"
)

type MockLibdns struct {
	records  map[string][]libdns.Record
	getErr   error
	setErr   error
	setCalls []libdns.Record
	setZones []string
	getZones []string
}

func (m *MockLibdns) GetRecords(ctx context.Context, zone string) ([]libdns.Record, error) {
	m.getZones = append(m.getZones, zone)
	return m.records[zone], m.getErr
}

func (m *MockLibdns) SetRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	m.setZones = append(m.setZones, zone)
	m.setCalls = append(m.setCalls, recs...)
	return recs, m.setErr
}

func TestLibdnsLookup(t *testing.T) {
	mock := &MockLibdns{records: map[string][]libdns.Record{
		"example.com.": {
			libdns.TXT{Name: "home", Text: "hello"},
			libdns.Address{Name: "home", IP: netip.MustParseAddr("192.168.1.5"), TTL: 10 * time.Minute},
			libdns.Address{Name: "@", IP: netip.MustParseAddr("203.0.113.9"), TTL: time.Minute},
		},
	}}
	p := NewLibdns(mock, metrics.New(false))

	tests := []struct {
		name      string
		lookup    string
		expected  Record
		expectErr error
	}{
		{
			name:   "matching A record",
			lookup: "home",
			expected: Record{
				ID: "home", Name: "home", Type: "A", Data: "192.168.1.5", Zone: "example.com", TTL: 10 * time.Minute,
			},
		},
		{
			name:   "apex",
			lookup: "@",
			expected: Record{
				ID: "@", Name: "@", Type: "A", Data: "203.0.113.9", Zone: "example.com", TTL: time.Minute,
			},
		},
		{
			name:      "missing record",
			lookup:    "nas",
			expectErr: ErrRecordNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Lookup(context.Background(), "example.com", tt.lookup, "A")
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if got != tt.expected {
				t.Fatalf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}

	if mock.getZones[0] != "example.com." {
		t.Errorf("expected fully qualified zone, got %q", mock.getZones[0])
	}
}

func TestLibdnsLookupError(t *testing.T) {
	mock := &MockLibdns{getErr: errors.New("connection refused")}
	p := NewLibdns(mock, metrics.New(false))

	_, err := p.Lookup(context.Background(), "example.com", "home", "A")
	if err == nil || errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestLibdnsUpdate(t *testing.T) {
	mock := &MockLibdns{}
	p := NewLibdns(mock, metrics.New(false))

	record := Record{ID: "home", Name: "home", Type: "A", Data: "192.168.1.9", Zone: "example.com", TTL: TTL(600)}
	for i := 0; i < 2; i++ {
		if err := p.Update(context.Background(), "example.com", record); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	if len(mock.setCalls) != 2 {
		t.Fatalf("expected 2 set calls, got %d", len(mock.setCalls))
	}
	rr := mock.setCalls[1].RR()
	if rr.Name != "home" || rr.Type != "A" || rr.Data != "192.168.1.9" || rr.TTL != 10*time.Minute {
		t.Fatalf("unexpected record sent: %+v", rr)
	}
	if mock.setZones[0] != "example.com." {
		t.Errorf("expected fully qualified zone, got %q", mock.setZones[0])
	}

	mock.setErr = errors.New("refused")
	if err := p.Update(context.Background(), "example.com", record); err == nil {
		t.Fatal("expected error from failing provider")
	}

	bad := record
	bad.Data = ""
	if err := p.Update(context.Background(), "example.com", bad); err == nil {
		t.Fatal("expected error for empty value")
	}
}

func TestToLibdnsUnsupported(t *testing.T) {
	_, err := ToLibdns(Record{Name: "www", Type: "CNAME", Data: "example.com"})
	if err == nil {
		t.Fatal("expected error for unsupported record type")
	}
}

func TestRecordFQDN(t *testing.T) {
	tests := map[string]Record{
		"home.example.com": {Name: "home", Zone: "example.com"},
		"example.com":      {Name: "@", Zone: "example.com"},
	}
	for want, r := range tests {
		if got := r.FQDN(); got != want {
			t.Errorf("FQDN() = %q, want %q", got, want)
		}
	}
}

type nopProvider struct{}

func (nopProvider) Lookup(ctx context.Context, zone, name, recordType string) (Record, error) {
	return Record{}, ErrRecordNotFound
}

func (nopProvider) Update(ctx context.Context, zone string, record Record) error { return nil }

func TestRegistry(t *testing.T) {
	Register("test-nop", func(account config.Account, m *metrics.Metrics) (Provider, error) {
		if account.Token == "" {
			return nil, errors.New("token required")
		}
		return nopProvider{}, nil
	})

	if _, err := New(config.Account{Provider: "test-nop", Token: "t"}, metrics.New(false)); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := New(config.Account{Provider: "test-nop"}, metrics.New(false)); err == nil {
		t.Fatal("expected factory error to propagate")
	}

	_, err := New(config.Account{Provider: "carrier-pigeon"}, metrics.New(false))
	if err == nil || !strings.Contains(err.Error(), "test-nop") {
		t.Fatalf("expected unsupported provider error listing registered ones, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("test-nop", nil)
}
