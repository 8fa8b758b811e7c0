package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

func init() {
	provider.Register("cloudflare", func(account config.Account, metrics *metrics.Metrics) (provider.Provider, error) {
		return New(account, metrics)
	})
}

type CloudflareProvider struct {
	client  *cloudflare.API
	metrics *metrics.Metrics

	mu    sync.Mutex
	zones map[string]string // Cache zone name to ID mapping
}

func New(account config.Account, metrics *metrics.Metrics, opts ...cloudflare.Option) (*CloudflareProvider, error) {
	token := account.Token
	if token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}

	client, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare client: %w", err)
	}

	return &CloudflareProvider{
		client:  client,
		metrics: metrics,
		zones:   make(map[string]string),
	}, nil
}

// zoneID resolves and caches the zone id. Zone ids never change for the
// lifetime of a zone.
func (p *CloudflareProvider) zoneID(zone string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.zones[zone]; ok {
		return id, nil
	}
	id, err := p.client.ZoneIDByName(zone)
	if err != nil {
		p.metrics.IncDNSRequest("read", zone, false)
		return "", fmt.Errorf("failed to get zone ID for %s: %w", zone, err)
	}
	p.metrics.IncDNSRequest("read", zone, true)
	p.zones[zone] = id
	return id, nil
}

func (p *CloudflareProvider) Lookup(ctx context.Context, zone, name, recordType string) (provider.Record, error) {
	fqdn := provider.Record{Name: name, Zone: zone}.FQDN()
	slog.Info("Looking up DNS record", "zone", zone, "name", fqdn, "type", recordType)
	start := time.Now()

	zoneID, err := p.zoneID(zone)
	if err != nil {
		return provider.Record{}, err
	}

	records, _, err := p.client.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type: recordType,
		Name: fqdn,
	})
	if err != nil {
		p.metrics.IncDNSRequest("read", zone, false)
		return provider.Record{}, fmt.Errorf("failed to list DNS records: %w", err)
	}
	p.metrics.IncDNSRequest("read", zone, true)
	slog.Debug("Retrieved DNS records", "zone", zone, "name", fqdn, "count", len(records), "duration", time.Since(start))

	if len(records) == 0 {
		return provider.Record{}, fmt.Errorf("%s %s: %w", recordType, fqdn, provider.ErrRecordNotFound)
	}
	r := records[0]
	return provider.Record{
		ID:   r.ID,
		Name: name,
		Type: r.Type,
		Data: r.Content,
		TTL:  time.Duration(r.TTL) * time.Second,
		Zone: zone,
	}, nil
}

func (p *CloudflareProvider) Update(ctx context.Context, zone string, record provider.Record) error {
	slog.Info("Updating DNS record", "zone", zone, "name", record.Name, "type", record.Type, "data", record.Data)
	start := time.Now()

	zoneID, err := p.zoneID(zone)
	if err != nil {
		return err
	}

	ttl := int(record.TTL.Seconds())
	if ttl <= 0 {
		ttl = 1 // automatic
	}
	params := cloudflare.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    record.Type,
		Name:    record.FQDN(),
		Content: record.Data,
		TTL:     ttl,
	}

	if _, err := p.client.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), params); err != nil {
		p.metrics.IncDNSRequest("update", zone, false)
		return fmt.Errorf("failed to update DNS record: %w", err)
	}

	p.metrics.IncDNSRequest("update", zone, true)
	slog.Debug("Updated DNS record", "zone", zone, "name", record.Name, "type", record.Type, "duration", time.Since(start))
	return nil
}
