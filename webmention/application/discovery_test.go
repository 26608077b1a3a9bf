package application

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dfryer1193/webpress/shared/fetch"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func TestEndpointFromLinkHeader(t *testing.T) {
	base := mustURL(t, "https://remote.example/posts/1")

	tests := []struct {
		name   string
		values []string
		want   string
		wantOK bool
	}{
		{"Absolute", []string{`<https://remote.example/wm>; rel="webmention"`}, "https://remote.example/wm", true},
		{"Relative", []string{`</wm>; rel=webmention`}, "https://remote.example/wm", true},
		{"Rel list", []string{`<https://x.example/e>; rel="webmention other"`}, "https://x.example/e", true},
		{"Among other links", []string{`<https://a.example/>; rel="hub", <https://b.example/wm>; rel="webmention"`}, "https://b.example/wm", true},
		{"Comma inside URL", []string{`<https://b.example/wm?a=1,2>; rel="webmention"`}, "https://b.example/wm?a=1,2", true},
		{"Second header value", []string{`<https://a.example/>; rel="hub"`, `</endpoint>; rel="webmention"`}, "https://remote.example/endpoint", true},
		{"Case insensitive", []string{`<https://b.example/wm>; REL="WebMention"`}, "https://b.example/wm", true},
		{"Not advertised", []string{`<https://a.example/>; rel="hub"`}, "", false},
		{"No header", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := endpointFromLinkHeader(tt.values, base)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscoverEndpoint_HeaderBeatsDocument(t *testing.T) {
	resp := &fetch.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Link":         {`<https://remote.example/from-header>; rel="webmention"`},
			"Content-Type": {"text/html"},
		},
		Body: []byte(`<link rel="webmention" href="/from-document">`),
		URL:  mustURL(t, "https://remote.example/post"),
	}

	endpoint, ok := DiscoverEndpoint(resp)
	assert.True(t, ok)
	assert.Equal(t, "https://remote.example/from-header", endpoint)
}

func TestDiscoverEndpoint_Document(t *testing.T) {
	resp := &fetch.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(`<html><body><a rel="webmention" href="/wm">endpoint</a></body></html>`),
		URL:        mustURL(t, "https://remote.example/post"),
	}

	endpoint, ok := DiscoverEndpoint(resp)
	assert.True(t, ok)
	assert.Equal(t, "https://remote.example/wm", endpoint)
}

func TestDiscoverEndpoint_NonHTMLBodyIgnored(t *testing.T) {
	resp := &fetch.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`<link rel="webmention" href="/wm">`),
		URL:        mustURL(t, "https://remote.example/post"),
	}

	_, ok := DiscoverEndpoint(resp)
	assert.False(t, ok)
}

func TestExtractLinks(t *testing.T) {
	base := mustURL(t, "https://blog.example/post/abc123")
	content := `<p><a href="https://a.example/x">a</a> <a href="/post/def456">own</a>
<a href="#top">anchor</a> <a href="mailto:me@example.com">mail</a>
<a href="https://a.example/x#frag">dup</a> <img src="https://img.example/i.png"></p>`

	got := ExtractLinks(base, content)
	assert.Equal(t, []string{"https://a.example/x", "https://blog.example/post/def456"}, got)
}
