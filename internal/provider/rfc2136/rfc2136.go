// Package rfc2136 updates records on any name server that accepts dynamic
// updates (BIND, Knot, PowerDNS, ...), optionally signed with TSIG.
//
// Provider implements the libdns getter and setter interfaces; the engine
// uses it through provider.Libdns. Records are read with a zone transfer.
package rfc2136

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/libdns/libdns"
	"github.com/miekg/dns"
)

const fudge = 300

func init() {
	provider.Register("rfc2136", func(account config.Account, metrics *metrics.Metrics) (provider.Provider, error) {
		p, err := New(account)
		if err != nil {
			return nil, err
		}
		return provider.NewLibdns(p, metrics), nil
	})
}

type Provider struct {
	Server       string
	Net          string
	KeyName      string
	KeySecret    string
	KeyAlgorithm string
	Timeout      time.Duration
}

// New reads the provider from account settings: server (required), net,
// key_name, key_secret, key_algorithm and timeout. The account id and token
// act as key name and secret when the settings leave them out.
func New(account config.Account) (*Provider, error) {
	s := account.Settings
	p := &Provider{
		Server:       s["server"],
		Net:          s["net"],
		KeyName:      s["key_name"],
		KeySecret:    s["key_secret"],
		KeyAlgorithm: s["key_algorithm"],
		Timeout:      10 * time.Second,
	}
	if p.Server == "" {
		return nil, fmt.Errorf("rfc2136: missing required setting 'server'")
	}
	if p.Net == "" {
		p.Net = "udp"
	}
	if p.Net != "udp" && p.Net != "tcp" {
		return nil, fmt.Errorf("rfc2136: invalid net %q", p.Net)
	}
	if p.KeyName == "" {
		p.KeyName = account.ID
	}
	if p.KeySecret == "" {
		p.KeySecret = account.Token
	}
	if (p.KeyName == "") != (p.KeySecret == "") {
		return nil, fmt.Errorf("rfc2136: key name and secret must be set together")
	}
	if p.KeyName != "" {
		p.KeyName = dns.Fqdn(p.KeyName)
	}
	if p.KeyAlgorithm == "" {
		p.KeyAlgorithm = dns.HmacSHA256
	}
	p.KeyAlgorithm = dns.Fqdn(strings.ToLower(p.KeyAlgorithm))
	if v := s["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("rfc2136: invalid timeout %q: %w", v, err)
		}
		p.Timeout = d
	}
	return p, nil
}

func (p *Provider) signed() bool {
	return p.KeyName != ""
}

func (p *Provider) tsigSecret() map[string]string {
	if !p.signed() {
		return nil
	}
	return map[string]string{p.KeyName: p.KeySecret}
}

// GetRecords transfers the zone and returns its records, SOA excluded.
func (p *Provider) GetRecords(ctx context.Context, zone string) ([]libdns.Record, error) {
	zone = dns.Fqdn(zone)

	m := new(dns.Msg)
	m.SetAxfr(zone)
	if p.signed() {
		m.SetTsig(p.KeyName, p.KeyAlgorithm, fudge, time.Now().Unix())
	}

	t := &dns.Transfer{
		DialTimeout:  p.Timeout,
		ReadTimeout:  p.Timeout,
		WriteTimeout: p.Timeout,
		TsigSecret:   p.tsigSecret(),
	}
	ch, err := t.In(m, p.Server)
	if err != nil {
		return nil, fmt.Errorf("zone transfer %s: %w", zone, err)
	}

	return collect(ctx, ch, zone)
}

// collect reads ch until the transfer closes it, even after a failure, so
// the transfer goroutine can finish and release its connection.
func collect(ctx context.Context, ch <-chan *dns.Envelope, zone string) ([]libdns.Record, error) {
	var (
		records []libdns.Record
		err     error
	)
	for env := range ch {
		if err != nil {
			continue
		}
		if env.Error != nil {
			err = fmt.Errorf("zone transfer %s: %w", zone, env.Error)
			continue
		}
		for _, rr := range env.RR {
			if rr.Header().Rrtype == dns.TypeSOA {
				continue
			}
			records = append(records, toLibdns(rr, zone))
		}
		err = ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SetRecords replaces the RRset of every given record with that record.
func (p *Provider) SetRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	zone = dns.Fqdn(zone)

	m := new(dns.Msg)
	m.SetUpdate(zone)
	for _, rec := range recs {
		rr, err := fromLibdns(rec, zone)
		if err != nil {
			return nil, err
		}
		m.RemoveRRset([]dns.RR{rr})
		m.Insert([]dns.RR{rr})
	}
	if p.signed() {
		m.SetTsig(p.KeyName, p.KeyAlgorithm, fudge, time.Now().Unix())
	}

	c := &dns.Client{Net: p.Net, Timeout: p.Timeout, TsigSecret: p.tsigSecret()}
	in, _, err := c.ExchangeContext(ctx, m, p.Server)
	if err != nil {
		return nil, fmt.Errorf("dynamic update %s: %w", zone, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dynamic update %s: %s", zone, dns.RcodeToString[in.Rcode])
	}
	return recs, nil
}

func toLibdns(rr dns.RR, zone string) libdns.Record {
	hdr := rr.Header()
	name := libdns.RelativeName(hdr.Name, zone)
	ttl := time.Duration(hdr.Ttl) * time.Second

	if a, ok := rr.(*dns.A); ok {
		return libdns.RR{Name: name, TTL: ttl, Type: "A", Data: a.A.String()}
	}
	data := strings.TrimSpace(strings.TrimPrefix(rr.String(), hdr.String()))
	return libdns.RR{Name: name, TTL: ttl, Type: dns.TypeToString[hdr.Rrtype], Data: data}
}

func fromLibdns(rec libdns.Record, zone string) (dns.RR, error) {
	r := rec.RR()
	if r.Data == "" {
		return nil, errors.New("refusing to publish a record without data")
	}
	fqdn := libdns.AbsoluteName(r.Name, zone)
	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", fqdn, int(r.TTL.Seconds()), r.Type, r.Data))
	if err != nil {
		return nil, fmt.Errorf("build %s record for %s: %w", r.Type, fqdn, err)
	}
	return rr, nil
}
