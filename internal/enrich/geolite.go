package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

const (
	GeoLiteASNFileName     = "GeoLite2-ASN.mmdb"
	GeoLiteCountryFileName = "GeoLite2-Country.mmdb"
)

// GeoLite answers lookups from local MaxMind databases.
type GeoLite struct {
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader
}

// OpenGeoLite opens whichever of the country and ASN databases exist in dir.
// It fails only when neither is usable.
func OpenGeoLite(dir string) (*GeoLite, error) {
	g := &GeoLite{}
	var errs []error

	open := func(name string) *geoip2.Reader {
		path := filepath.Join(dir, name)
		reader, err := geoip2.Open(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn("GeoLite database unusable", "path", path, "error", err)
			}
			errs = append(errs, err)
			return nil
		}
		return reader
	}

	g.countryDB = open(GeoLiteCountryFileName)
	g.asnDB = open(GeoLiteASNFileName)

	if g.countryDB == nil && g.asnDB == nil {
		return nil, fmt.Errorf("geolite: no databases in %s: %w", dir, errors.Join(errs...))
	}
	return g, nil
}

func (g *GeoLite) Lookup(_ context.Context, address string) (map[string]string, error) {
	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("geolite: invalid address %q", address)
	}

	fields := make(map[string]string, 4)
	var errs []error

	if g.countryDB != nil {
		record, err := g.countryDB.Country(ip)
		if err != nil {
			errs = append(errs, fmt.Errorf("geolite country: %w", err))
		} else {
			setIfNotEmpty(fields, FieldCountryCode, record.Country.IsoCode)
			setIfNotEmpty(fields, FieldCountry, record.Country.Names["en"])
		}
	}

	if g.asnDB != nil {
		record, err := g.asnDB.ASN(ip)
		if err != nil {
			errs = append(errs, fmt.Errorf("geolite asn: %w", err))
		} else {
			if record.AutonomousSystemNumber != 0 {
				fields[FieldASN] = "AS" + strconv.FormatUint(uint64(record.AutonomousSystemNumber), 10)
			}
			setIfNotEmpty(fields, FieldOrg, record.AutonomousSystemOrganization)
		}
	}

	return fields, errors.Join(errs...)
}

func (g *GeoLite) Close() error {
	var errs []error
	if g.countryDB != nil {
		errs = append(errs, g.countryDB.Close())
	}
	if g.asnDB != nil {
		errs = append(errs, g.asnDB.Close())
	}
	return errors.Join(errs...)
}

func setIfNotEmpty(fields map[string]string, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
