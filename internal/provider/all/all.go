// Package all registers every built-in DNS provider.
package all

import (
	_ "github.com/evanofslack/ddns-sync/internal/provider/cloudflare"
	_ "github.com/evanofslack/ddns-sync/internal/provider/dnspod"
	_ "github.com/evanofslack/ddns-sync/internal/provider/rfc2136"
)
