package provider

import (
	"math/rand"
	"strings"
)

// A-share instrument ids are bare numeric codes ("600519", "000001",
// "510300"). Market membership is determined by prefix:
// Shanghai: 600/601/603/605/688 stocks, 51x/56x/58x ETFs.
// Shenzhen: 000/001/002/003/300/301 stocks, 15x/16x ETFs.

func isShanghaiCode(code string) bool {
	for _, p := range []string{"600", "601", "603", "605", "688", "51", "56", "58"} {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// isETFCode reports whether the code is an exchange-traded fund rather than
// a common stock. ETFs need different endpoints on some sources.
func isETFCode(code string) bool {
	for _, p := range []string{"51", "56", "58", "15", "16"} {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// stripSuffix accepts exchange-qualified ids ("600519.SH") and returns the
// bare numeric code.
func stripSuffix(code string) string {
	if i := strings.IndexByte(code, '.'); i > 0 {
		return code[:i]
	}
	return code
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
}

// randomUserAgent picks a browser UA per request so the free endpoints do
// not see a constant client fingerprint.
func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
