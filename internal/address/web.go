package address

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebResolver constructs a resolver that asks external web services for the
// public address.
//
// Each service must answer "200 OK" with an IPv4 address on the first line
// of the body. Services are tried in order and the first valid answer wins.
func WebResolver(timeout time.Duration, serviceURL ...string) (Resolver, error) {
	if len(serviceURL) == 0 {
		return nil, errors.New("no external IP lookup services were provided")
	}
	var urls []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		if pu.Scheme != "http" && pu.Scheme != "https" {
			return nil, fmt.Errorf("unsupported scheme in %q", u)
		}
		urls = append(urls, pu)
	}
	return &webResolver{
		http:        &http.Client{Timeout: timeout},
		serviceURLs: urls,
	}, nil
}

type webResolver struct {
	http        Httper
	serviceURLs []*url.URL
}

func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error
	for _, u := range wr.serviceURLs {
		addr, err := wr.lookup(ctx, u)
		if err == nil {
			return addr, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", u.Host, err))
		if ctx.Err() != nil {
			break
		}
	}
	return netip.Addr{}, errors.Join(errs...)
}

func (wr *webResolver) lookup(ctx context.Context, u *url.URL) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "text/plain")

	resp, err := wr.http.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	line, _ := bufio.NewReader(resp.Body).ReadString('\n')
	ip, err := netip.ParseAddr(strings.TrimSpace(line))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address: %w", ip, ErrNoAddress)
	}
	return ip, nil
}
