package tracking

import (
	"regexp"
	"strings"
)

const defaultCarrier = "usps"

var (
	reUPS        = regexp.MustCompile(`^1Z[0-9A-Z]{16}$`)
	reUSPSLength = regexp.MustCompile(`^[0-9]{20,22}$`)
	reUSPSPrefix = regexp.MustCompile(`^(94|92|93|95|42)[0-9]{16,}$`)
	reFedEx      = regexp.MustCompile(`^([0-9]{12,14}|[0-9]{22})$`)
)

// DetectCarrier guesses the carrier slug from the tracking number shape.
// USPS is checked before FedEx, so 22-digit numbers resolve to usps.
// Unmatched numbers also resolve to usps.
func DetectCarrier(trackingNumber string) string {
	n := cleanTrackingNumber(trackingNumber)
	switch {
	case reUPS.MatchString(n):
		return "ups"
	case reUSPSLength.MatchString(n), reUSPSPrefix.MatchString(n):
		return "usps"
	case reFedEx.MatchString(n):
		return "fedex"
	default:
		return defaultCarrier
	}
}

var carrierAliases = map[string]string{
	"usps":                         "usps",
	"us postal service":            "usps",
	"u.s. postal service":          "usps",
	"united states postal service": "usps",
	"ups":                          "ups",
	"united parcel service":        "ups",
	"fedex":                        "fedex",
	"fedex ground":                 "fedex",
	"fed ex":                       "fedex",
	"federal express":              "fedex",
	"dhl":                          "dhl",
	"dhl express":                  "dhl",
	"dhl ecommerce":                "dhl",
}

// ResolveCarrier returns a lowercase carrier slug for hint, falling back to
// DetectCarrier when hint is empty. Unrecognized hints are lowercased as-is.
func ResolveCarrier(hint, trackingNumber string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return DetectCarrier(trackingNumber)
	}
	if slug, ok := carrierAliases[h]; ok {
		return slug
	}
	return strings.ReplaceAll(h, " ", "-")
}

func cleanTrackingNumber(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}
