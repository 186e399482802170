package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceAliases maps config names to CDP resource types.
var resourceAliases = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// blockedTypes resolves config names, accepting raw CDP type names too.
func blockedTypes(names []string) map[proto.NetworkResourceType]bool {
	out := make(map[proto.NetworkResourceType]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if t, ok := resourceAliases[n]; ok {
			out[t] = true
			continue
		}
		for _, t := range resourceAliases {
			if strings.ToLower(string(t)) == n {
				out[t] = true
			}
		}
	}
	return out
}

// blockResources fails requests for the configured types. Blocking
// stylesheets changes what CSS badges report.
func blockResources(page *rod.Page, names []string) *rod.HijackRouter {
	blocked := blockedTypes(names)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
