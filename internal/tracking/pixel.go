package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Pixel is a 1x1 transparent PNG served by the open-tracking endpoint.
var Pixel = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89, 0x00, 0x00, 0x00,
	0x0D, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9C, 0x63, 0x60, 0x18, 0x05, 0xA3,
	0x60, 0x14, 0x8C, 0x02, 0x08, 0x00, 0x00, 0x04, 0x10, 0x00, 0x01, 0x27,
	0x6B, 0xF7, 0x4C, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

// OpenURL returns the open-tracking pixel URL for a tracking ID
func OpenURL(baseURL, trackingID string) string {
	return strings.TrimSuffix(baseURL, "/") + "/t/o/" + trackingID
}

// ClickURL returns the click-tracking redirect URL for a target link
func ClickURL(baseURL, trackingID, target string) string {
	return strings.TrimSuffix(baseURL, "/") + "/t/c/" + trackingID + "?u=" + url.QueryEscape(target)
}

// InjectPixel appends the open-tracking pixel to an HTML body. It goes
// before </body> when one exists so clients that truncate trailing markup
// still load it.
func InjectPixel(html, baseURL, trackingID string) string {
	img := fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none" alt="">`,
		OpenURL(baseURL, trackingID))

	if i := strings.LastIndex(strings.ToLower(html), "</body>"); i >= 0 {
		return html[:i] + img + html[i:]
	}
	return html + img
}

var hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

// RewriteLinks points every absolute link in the body at the
// click-tracking redirect. Anchors, mailto links, and already-rewritten
// tracking URLs are left alone.
func RewriteLinks(html, baseURL, trackingID string) string {
	prefix := strings.TrimSuffix(baseURL, "/") + "/t/"

	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(target, prefix) {
			return match
		}
		return `href="` + ClickURL(baseURL, trackingID, target) + `"`
	})
}
