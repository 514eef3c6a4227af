package checker

import (
	"strings"

	"github.com/August26/proxymatrix/internal/model"
)

// AnonymityInput is what the echo endpoint told us about the request.
type AnonymityInput struct {
	// Origin: the caller IP(s) the echo service saw, possibly "a, b".
	Origin string

	// PublicIP: the tester's own address, or model.PublicIPUnknown.
	PublicIP string

	// Headers: request headers as the echo service received them.
	Headers map[string]string
}

// leakHeaders reveal that a proxy sits in the path.
var leakHeaders = []string{
	"Via",
	"X-Forwarded-For",
	"Forwarded",
	"X-Forwarded-Host",
	"X-Real-Ip",
	"Proxy-Connection",
}

// DetermineAnonymity classifies a working proxy:
// own IP visible in the origin => transparent, proxy headers => anonymous,
// otherwise elite. An empty origin means the echo could not be read.
func DetermineAnonymity(in AnonymityInput) model.Anonymity {
	if strings.TrimSpace(in.Origin) == "" {
		return model.AnonymityUnknown
	}

	if in.PublicIP != "" && in.PublicIP != model.PublicIPUnknown {
		for _, tok := range strings.Split(in.Origin, ",") {
			if strings.TrimSpace(tok) == in.PublicIP {
				return model.AnonymityTransparent
			}
		}
	}

	for k, v := range in.Headers {
		if v == "" {
			continue
		}
		for _, h := range leakHeaders {
			if strings.EqualFold(k, h) {
				return model.AnonymityAnonymous
			}
		}
	}

	return model.AnonymityElite
}

func firstIPToken(origin string) string {
	if origin == "" {
		return ""
	}
	parts := strings.Split(origin, ",")
	return strings.TrimSpace(parts[0])
}
