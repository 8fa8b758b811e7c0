package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by Lookup when the zone holds no record
// with the requested name and type.
var ErrRecordNotFound = errors.New("record not found")

// Provider is the capability the sync engine needs from a DNS host.
// Update must be safe to call repeatedly with the same value.
type Provider interface {
	Lookup(ctx context.Context, zone, name, recordType string) (Record, error)
	Update(ctx context.Context, zone string, record Record) error
}

type Record struct {
	ID   string
	Name string // relative to Zone, "@" for the apex
	Type string
	Data string
	Zone string
	TTL  time.Duration
}

// FQDN returns the record's absolute name without the trailing dot.
func (r Record) FQDN() string {
	if r.Name == "" || r.Name == "@" {
		return r.Zone
	}
	return r.Name + "." + r.Zone
}

// TTL converts a ttl in seconds as found in configuration.
func TTL(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
