package application

import (
	"bytes"
	"net/url"
	"slices"
	"strings"

	"willnorris.com/go/microformats"
)

func parseMicroformats(body []byte, base *url.URL) *microformats.Data {
	return microformats.Parse(bytes.NewReader(body), base)
}

// findEntry returns the first h-entry in document order, searching nested children.
func findEntry(items []*microformats.Microformat) *microformats.Microformat {
	for _, item := range items {
		if slices.Contains(item.Type, "h-entry") {
			return item
		}
		if nested := findEntry(item.Children); nested != nil {
			return nested
		}
	}
	return nil
}

// firstURL returns the first value of a property as a URL string. Embedded
// microformats such as an h-cite contribute their own url property.
func firstURL(item *microformats.Microformat, property string) (string, bool) {
	values := item.Properties[property]
	if len(values) == 0 {
		return "", false
	}

	switch v := values[0].(type) {
	case string:
		return nonEmpty(v)
	case *microformats.Microformat:
		if u, ok := firstURL(v, "url"); ok {
			return u, true
		}
		return nonEmpty(v.Value)
	case map[string]string:
		return nonEmpty(v["value"])
	case map[string]interface{}:
		if s, ok := v["value"].(string); ok {
			return nonEmpty(s)
		}
	}
	return "", false
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
