package application

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/dfryer1193/webpress/shared/fetch"
	"golang.org/x/net/html"
)

const relWebmention = "webmention"

// DiscoverEndpoint finds the webmention endpoint advertised by a fetched target.
// The HTTP Link header wins over <link>/<a> elements in the document.
func DiscoverEndpoint(resp *fetch.Response) (string, bool) {
	base := resp.URL

	if endpoint, ok := endpointFromLinkHeader(resp.Header.Values("Link"), base); ok {
		return endpoint, true
	}

	if !isHTML(resp.Header.Get("Content-Type")) {
		return "", false
	}
	data := parseMicroformats(resp.Body, base)
	if endpoints := data.Rels[relWebmention]; len(endpoints) > 0 {
		return endpoints[0], true
	}
	return "", false
}

func isHTML(contentType string) bool {
	// servers that omit the header usually serve HTML
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html")
}

// endpointFromLinkHeader parses RFC 8288 Link header values looking for rel="webmention".
func endpointFromLinkHeader(values []string, base *url.URL) (string, bool) {
	for _, value := range values {
		for _, link := range splitLinks(value) {
			target, params, ok := strings.Cut(link, ">")
			if !ok {
				continue
			}
			target = strings.TrimSpace(target)
			if !strings.HasPrefix(target, "<") {
				continue
			}
			target = target[1:]

			for _, param := range strings.Split(params, ";") {
				name, val, found := strings.Cut(strings.TrimSpace(param), "=")
				if !found || !strings.EqualFold(strings.TrimSpace(name), "rel") {
					continue
				}
				val = strings.Trim(strings.TrimSpace(val), `"`)
				for _, rel := range strings.Fields(val) {
					if strings.EqualFold(rel, relWebmention) {
						return resolve(base, target)
					}
				}
			}
		}
	}
	return "", false
}

// splitLinks splits a header value on commas outside angle brackets and quotes.
func splitLinks(value string) []string {
	var links []string
	depth, quoted, start := 0, false, 0
	for i, r := range value {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			depth++
		case r == '>' && !quoted && depth > 0:
			depth--
		case r == ',' && !quoted && depth == 0:
			links = append(links, value[start:i])
			start = i + 1
		}
	}
	return append(links, value[start:])
}

func resolve(base *url.URL, ref string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String(), true
}

// ExtractLinks returns the distinct absolute http(s) hrefs of <a> elements in rendered HTML,
// resolved against base, in document order.
func ExtractLinks(base *url.URL, content string) []string {
	var links []string
	seen := make(map[string]struct{})

	tokenizer := html.NewTokenizer(bytes.NewReader([]byte(content)))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "href" {
					if link, ok := absoluteHTTP(base, string(val)); ok {
						if _, dup := seen[link]; !dup {
							seen[link] = struct{}{}
							links = append(links, link)
						}
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func absoluteHTTP(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
