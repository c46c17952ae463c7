package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to CDP resource types. Images and
// stylesheets are listed for completeness; blocking them breaks captures.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
	"Ping":       proto.NetworkResourceTypePing,
	"Manifest":   proto.NetworkResourceTypeManifest,
}

// adDomains are ad, analytics and tracking hosts that add nothing to a
// listing screenshot and often inject their own overlays.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"criteo.net":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"moatads.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"quantserve.com":        {},
	"hotjar.com":            {},
	"clarity.ms":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"chartbeat.com":         {},
	"media.net":             {},
	"openx.net":             {},
	"casalemedia.com":       {},
	"demdex.net":            {},
	"krxd.net":              {},
	"sharethis.com":         {},
	"addthis.com":           {},
	"moengage.com":          {},
	"clevertap-prod.com":    {},
	"wzrkt.com":             {},
	"webengage.com":         {},
	"izooto.com":            {},
	"onesignal.com":         {},
	"tawk.to":               {},
	"zopim.com":             {},
}

// isAdDomain reports whether host or any parent domain is blocklisted.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return false
}

// requestFilter decides which in-flight requests a session drops.
type requestFilter struct {
	types    map[proto.NetworkResourceType]struct{}
	blockAds bool
}

func newRequestFilter(blockedTypes []string, blockAds bool) requestFilter {
	types := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			types[rt] = struct{}{}
		}
	}
	return requestFilter{types: types, blockAds: blockAds}
}

func (f requestFilter) empty() bool {
	return len(f.types) == 0 && !f.blockAds
}

func (f requestFilter) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := f.types[rt]; ok {
		return true
	}
	if f.blockAds {
		if u, err := url.Parse(rawURL); err == nil && isAdDomain(u.Hostname()) {
			return true
		}
	}
	return false
}

// setupHijack installs the request filter on page. It returns nil when
// nothing is blocked; otherwise the caller must Stop the router.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	filter := newRequestFilter(blockedTypes, blockAds)
	if filter.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if filter.blocks(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}
