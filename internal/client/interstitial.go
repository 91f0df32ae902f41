package client

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Markers seen on challenge pages served with 200 OK in place of JSON
var antiBotMarkers = []string{
	"captcha",
	"cf-chl",
	"just a moment",
	"attention required",
	"verify you are human",
	"checking your browser",
}

const sniffWindow = 4096

// detectInterstitial reports whether body is a challenge page rather than an API payload.
// The returned string describes the page for logs.
func detectInterstitial(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", false
	}
	// JSON documents are never treated as challenges even if a title mentions a marker
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return "", false
	}

	head := trimmed
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	lower := strings.ToLower(string(head))

	looksHTML := strings.HasPrefix(lower, "<!doctype html") ||
		strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower, "<body")

	marker := ""
	for _, m := range antiBotMarkers {
		if strings.Contains(lower, m) {
			marker = m
			break
		}
	}

	if !looksHTML && marker == "" {
		return "", false
	}

	desc := pageTitle(trimmed)
	if desc == "" {
		desc = marker
	}
	if desc == "" {
		desc = "html document"
	}
	return desc, true
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
