package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/libdns/libdns"
)

// LibdnsProvider is the subset of the libdns interfaces the adapter needs.
type LibdnsProvider interface {
	libdns.RecordGetter
	libdns.RecordSetter
}

// Libdns adapts any libdns provider to Provider. libdns records carry no
// stable identifier, so the record name serves as ID.
type Libdns struct {
	provider LibdnsProvider
	metrics  *metrics.Metrics
}

func NewLibdns(p LibdnsProvider, metrics *metrics.Metrics) *Libdns {
	return &Libdns{provider: p, metrics: metrics}
}

func (l *Libdns) Lookup(ctx context.Context, zone, name, recordType string) (Record, error) {
	slog.Debug("Looking up DNS record", "zone", zone, "name", name, "type", recordType)

	records, err := l.provider.GetRecords(ctx, libdnsZone(zone))
	if err != nil {
		l.metrics.IncDNSRequest("read", zone, false)
		return Record{}, fmt.Errorf("get records for zone %s: %w", zone, err)
	}
	l.metrics.IncDNSRequest("read", zone, true)

	for _, r := range records {
		rr := r.RR()
		if rr.Type == recordType && sameName(rr.Name, name) {
			record := FromLibdns(r, zone)
			record.ID = record.Name
			return record, nil
		}
	}
	return Record{}, fmt.Errorf("%s %s.%s: %w", recordType, name, zone, ErrRecordNotFound)
}

func (l *Libdns) Update(ctx context.Context, zone string, record Record) error {
	slog.Info("Updating DNS record", "zone", zone, "name", record.Name, "type", record.Type, "data", record.Data)

	r, err := ToLibdns(record)
	if err != nil {
		l.metrics.IncDNSRequest("update", zone, false)
		return err
	}

	if _, err := l.provider.SetRecords(ctx, libdnsZone(zone), []libdns.Record{r}); err != nil {
		l.metrics.IncDNSRequest("update", zone, false)
		return fmt.Errorf("set record %s: %w", record.FQDN(), err)
	}
	l.metrics.IncDNSRequest("update", zone, true)
	return nil
}

func FromLibdns(r libdns.Record, zone string) Record {
	rr := r.RR()
	return Record{
		Name: rr.Name,
		Type: rr.Type,
		Data: rr.Data,
		TTL:  rr.TTL,
		Zone: zone,
	}
}

func ToLibdns(r Record) (libdns.Record, error) {
	switch r.Type {
	case "A", "AAAA":
		addr, err := netip.ParseAddr(r.Data)
		if err != nil {
			return nil, fmt.Errorf("fail parse ip addr %s, err=%w", r.Data, err)
		}
		return libdns.Address{
			Name: libdnsName(r.Name),
			IP:   addr,
			TTL:  r.TTL,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported record type %s", r.Type)
	}
}

// libdns zones are fully qualified.
func libdnsZone(zone string) string {
	if strings.HasSuffix(zone, ".") {
		return zone
	}
	return zone + "."
}

func libdnsName(name string) string {
	if name == "" {
		return "@"
	}
	return name
}

func sameName(a, b string) bool {
	return strings.EqualFold(libdnsName(a), libdnsName(b))
}
