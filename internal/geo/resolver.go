package geo

import (
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

const unknownCountry = "Unknown"

// Resolver maps IPv4 addresses to a country name using a local GeoLite2
// database. A Resolver built from a missing or unreadable database stays
// usable and answers "Unknown" for everything.
type Resolver struct {
	mu sync.RWMutex
	db *geoip2.Reader
}

func NewResolver(databasePath string) *Resolver {
	r := &Resolver{}
	if databasePath == "" {
		return r
	}

	db, err := geoip2.Open(databasePath)
	if err != nil {
		log.Warn("GeoIP database unavailable, country enrichment disabled", "path", databasePath, "error", err)
		return r
	}

	r.db = db
	return r
}

func (r *Resolver) Country(ipAddress string) string {
	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return unknownCountry
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return unknownCountry
	}

	record, err := db.Country(ip)
	if err != nil {
		return unknownCountry
	}

	if name, ok := record.Country.Names["en"]; ok && name != "" {
		return name
	}
	if record.Country.IsoCode != "" {
		return record.Country.IsoCode
	}
	return unknownCountry
}

func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
