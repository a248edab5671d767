package fetcher

import (
	"net/http"
	"strings"
)

// BlockType names the anti-bot mechanism that answered a request.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// jsShellMaxBytes bounds how small a page must be to count as an empty
// JavaScript shell.
const jsShellMaxBytes = 2000

var (
	cloudflareMarkers = []string{"checking your browser", "cf-browser-verification", "cf-challenge"}
	captchaMarkers    = []string{"captcha"} // also matches recaptcha and hcaptcha
)

// DetectBlock reports whether a registry or operator site returned an
// anti-bot page instead of content.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		h := resp.Header
		if h.Get("cf-ray") != "" || h.Get("cf-cache-status") != "" || strings.EqualFold(h.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	if containsAny(lower, cloudflareMarkers) {
		return true, BlockCloudflare
	}
	if containsAny(lower, captchaMarkers) {
		return true, BlockCaptcha
	}

	if len(body) < jsShellMaxBytes {
		noscript := strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript")
		if noscript || strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
