// Package delivery gives a rough delivery date from a postal code. It is a
// prefix lookup, not a carrier quote.
package delivery

import (
	"strings"
	"time"
	"unicode"
)

type Zone string

const (
	ZoneMetro    Zone = "metro"
	ZoneStandard Zone = "standard"
	ZoneRemote   Zone = "remote"
)

const (
	MetroDays    = 3
	StandardDays = 5
	RemoteDays   = 7
)

var (
	metroPrefixes  = []string{"110", "400", "560", "600", "700", "500", "411", "380"}
	remotePrefixes = []string{"744", "18", "19", "79"}
)

type Estimation struct {
	PostalCode string    `json:"postal_code"`
	Zone       Zone      `json:"zone"`
	Days       int       `json:"days"`
	Date       time.Time `json:"estimated_date"`
}

// Estimate returns the delivery estimate for postalCode counted from now.
// Metro prefixes win over remote ones.
func Estimate(postalCode string, now time.Time) Estimation {
	code := normalize(postalCode)
	zone, days := ZoneStandard, StandardDays
	switch {
	case hasAnyPrefix(code, metroPrefixes):
		zone, days = ZoneMetro, MetroDays
	case hasAnyPrefix(code, remotePrefixes):
		zone, days = ZoneRemote, RemoteDays
	}
	return Estimation{
		PostalCode: code,
		Zone:       zone,
		Days:       days,
		Date:       now.AddDate(0, 0, days),
	}
}

func normalize(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	if s == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
