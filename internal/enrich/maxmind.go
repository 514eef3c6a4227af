package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/August26/proxymatrix/internal/model"
)

// MaxMind resolves from local GeoLite2 databases. The country database may
// be a Country or City edition; the ASN database is optional and supplies
// the provider name.
type MaxMind struct {
	country *geoip2.Reader
	asn     *geoip2.Reader
}

func OpenMaxMind(countryPath, asnPath string) (*MaxMind, error) {
	if countryPath == "" {
		return nil, errors.New("geoip country database path is empty")
	}
	country, err := geoip2.Open(countryPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	m := &MaxMind{country: country}

	if asnPath != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			_ = country.Close()
			return nil, fmt.Errorf("open asn database: %w", err)
		}
		m.asn = asn
	}
	return m, nil
}

func (m *MaxMind) Lookup(_ context.Context, ip string) (model.GeoInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return model.GeoInfo{}, fmt.Errorf("%w: invalid ip %q", ErrNoData, ip)
	}

	rec, err := m.country.Country(parsed)
	if err != nil {
		return model.GeoInfo{}, err
	}
	if rec.Country.IsoCode == "" {
		return model.GeoInfo{}, ErrNoData
	}

	info := model.GeoInfo{
		CountryCode: rec.Country.IsoCode,
		Country:     rec.Country.Names["en"],
		ISP:         model.ISPUnknown,
	}
	if m.asn != nil {
		// we treat the ASN organisation as the ISP
		if a, err := m.asn.ASN(parsed); err == nil && a.AutonomousSystemOrganization != "" {
			info.ISP = a.AutonomousSystemOrganization
		}
	}
	return info, nil
}

func (m *MaxMind) Close() error {
	var errs []error
	if m.country != nil {
		errs = append(errs, m.country.Close())
	}
	if m.asn != nil {
		errs = append(errs, m.asn.Close())
	}
	return errors.Join(errs...)
}
