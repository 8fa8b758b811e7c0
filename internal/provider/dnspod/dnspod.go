package dnspod

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

const (
	defaultEndpoint = "https://dnsapi.cn"
	userAgent       = "ddns-sync/1.0 (github.com/evanofslack/ddns-sync)"
	defaultLineID   = "0"

	codeOK        = "1"
	codeNoRecords = "10"
)

func init() {
	provider.Register("dnspod", func(account config.Account, metrics *metrics.Metrics) (provider.Provider, error) {
		return New(account, metrics)
	})
}

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

type DNSPodProvider struct {
	endpoint   string
	loginToken string
	http       Httper
	metrics    *metrics.Metrics
}

// New builds a DNSPod client. The account id and token form the API login
// token; settings may override "endpoint" and "timeout".
func New(account config.Account, metrics *metrics.Metrics) (*DNSPodProvider, error) {
	if account.ID == "" || account.Token == "" {
		return nil, fmt.Errorf("dnspod: account id and token required")
	}

	endpoint := defaultEndpoint
	if v := account.Settings["endpoint"]; v != "" {
		endpoint = strings.TrimSuffix(v, "/")
	}

	timeout := 15 * time.Second
	if v := account.Settings["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("dnspod: invalid timeout %q: %w", v, err)
		}
		timeout = d
	}

	return &DNSPodProvider{
		endpoint:   endpoint,
		loginToken: account.ID + "," + account.Token,
		http:       &http.Client{Timeout: timeout},
		metrics:    metrics,
	}, nil
}

type status struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type record struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	TTL    string `json:"ttl"`
	LineID string `json:"line_id"`
}

type listResponse struct {
	Status  status   `json:"status"`
	Records []record `json:"records"`
}

type modifyResponse struct {
	Status status `json:"status"`
}

func (p *DNSPodProvider) Lookup(ctx context.Context, zone, name, recordType string) (provider.Record, error) {
	slog.Info("Looking up DNS record", "zone", zone, "name", name, "type", recordType)

	form := url.Values{}
	form.Set("domain", zone)
	form.Set("sub_domain", name)
	form.Set("record_type", recordType)

	var resp listResponse
	if err := p.call(ctx, "Record.List", form, &resp); err != nil {
		p.metrics.IncDNSRequest("read", zone, false)
		return provider.Record{}, err
	}

	switch resp.Status.Code {
	case codeOK:
	case codeNoRecords:
		p.metrics.IncDNSRequest("read", zone, true)
		return provider.Record{}, fmt.Errorf("%s %s.%s: %w", recordType, name, zone, provider.ErrRecordNotFound)
	default:
		p.metrics.IncDNSRequest("read", zone, false)
		return provider.Record{}, fmt.Errorf("dnspod Record.List: %s (code %s)", resp.Status.Message, resp.Status.Code)
	}
	p.metrics.IncDNSRequest("read", zone, true)

	for _, r := range resp.Records {
		if r.Type != recordType || !strings.EqualFold(r.Name, name) {
			continue
		}
		ttl, _ := strconv.Atoi(r.TTL)
		return provider.Record{
			ID:   r.ID,
			Name: r.Name,
			Type: r.Type,
			Data: r.Value,
			TTL:  provider.TTL(ttl),
			Zone: zone,
		}, nil
	}
	return provider.Record{}, fmt.Errorf("%s %s.%s: %w", recordType, name, zone, provider.ErrRecordNotFound)
}

func (p *DNSPodProvider) Update(ctx context.Context, zone string, r provider.Record) error {
	slog.Info("Updating DNS record", "zone", zone, "name", r.Name, "type", r.Type, "data", r.Data)

	form := url.Values{}
	form.Set("domain", zone)
	form.Set("record_id", r.ID)
	form.Set("sub_domain", r.Name)
	form.Set("record_type", r.Type)
	form.Set("record_line_id", defaultLineID)
	form.Set("value", r.Data)
	if ttl := int(r.TTL.Seconds()); ttl > 0 {
		form.Set("ttl", strconv.Itoa(ttl))
	}

	var resp modifyResponse
	if err := p.call(ctx, "Record.Modify", form, &resp); err != nil {
		p.metrics.IncDNSRequest("update", zone, false)
		return err
	}
	if resp.Status.Code != codeOK {
		p.metrics.IncDNSRequest("update", zone, false)
		return fmt.Errorf("dnspod Record.Modify: %s (code %s)", resp.Status.Message, resp.Status.Code)
	}
	p.metrics.IncDNSRequest("update", zone, true)
	return nil
}

func (p *DNSPodProvider) call(ctx context.Context, action string, form url.Values, out any) error {
	form.Set("login_token", p.loginToken)
	form.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/"+action, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("dnspod %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dnspod %s, status=%d", action, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse dnspod %s response, err=%w", action, err)
	}
	return nil
}
