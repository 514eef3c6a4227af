package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/August26/proxymatrix/internal/model"
)

const (
	DefaultGeoURL = "http://ip-api.com/json/"

	// ip-api.com free tier allows 45 requests per minute.
	DefaultGeoRatePerMinute = 45
)

var ErrBudgetExhausted = errors.New("geo lookup budget exhausted")

// ipAPIResponse matches the fields we use from ip-api.com/json/<ip>.
type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
	Country     string `json:"country"`
	ISP         string `json:"isp"`
}

// IPAPI resolves through the ip-api.com JSON endpoint.
type IPAPI struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewIPAPI builds a resolver. perMinute <= 0 means no local budget.
// When the budget is spent lookups are skipped instead of queued, so a
// burst of working proxies never waits on the geo service.
func NewIPAPI(client *http.Client, baseURL string, perMinute float64) *IPAPI {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultGeoURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	a := &IPAPI{http: client, baseURL: baseURL}
	if perMinute > 0 {
		burst := int(perMinute)
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
	}
	return a
}

func (a *IPAPI) Lookup(ctx context.Context, ip string) (model.GeoInfo, error) {
	if a.limiter != nil && !a.limiter.Allow() {
		return model.GeoInfo{}, ErrBudgetExhausted
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+url.PathEscape(ip), nil)
	if err != nil {
		return model.GeoInfo{}, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return model.GeoInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.GeoInfo{}, fmt.Errorf("ip-api status %d", resp.StatusCode)
	}

	var parsed ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.GeoInfo{}, fmt.Errorf("decode ip-api response: %w", err)
	}
	if parsed.Status != "success" {
		return model.GeoInfo{}, fmt.Errorf("%w: %s", ErrNoData, parsed.Message)
	}

	info := model.GeoInfo{
		CountryCode: parsed.CountryCode,
		Country:     parsed.Country,
		ISP:         parsed.ISP,
	}
	if info.CountryCode == "" {
		info.CountryCode = model.CountryUnknown
	}
	if info.ISP == "" {
		info.ISP = model.ISPUnknown
	}
	return info, nil
}
