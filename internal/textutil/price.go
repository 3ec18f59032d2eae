package textutil

import (
	"regexp"
	"strconv"
	"strings"
)

var priceRe = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// currencyRe matches a currency-optional numeric form, used by single-product
// validation.
var currencyRe = regexp.MustCompile(`^\s*(?:[$€£¥]|USD|EUR|GBP|CAD)?\s*\d[\d,]*(?:\.\d{1,2})?\s*$`)

// ParsePrice coerces a price string by stripping currency markers and
// grouping separators. Returns (0, false) when no numeric value is present.
func ParsePrice(s string) (float64, bool) {
	m := priceRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsPriceString reports whether s looks like a currency-optional numeric
// price ("$128.00", "128", "USD 42.50").
func IsPriceString(s string) bool {
	return currencyRe.MatchString(s)
}
