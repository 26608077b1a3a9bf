package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	blogdomain "github.com/dfryer1193/webpress/blog/domain"
	"github.com/dfryer1193/webpress/shared/fetch"
	"github.com/dfryer1193/webpress/webmention/application"
)

type postMap map[string]*blogdomain.Post

func (p postMap) Get(id string) (*blogdomain.Post, bool) {
	post, ok := p[id]
	return post, ok
}

func setupRouter(t *testing.T, sourceHTML string) (*gin.Engine, *int32, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var fetches int32
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, sourceHTML)
	}))
	t.Cleanup(source.Close)

	receiver := application.NewReceiver(
		postMap{"abc123": {ID: "abc123"}},
		fetch.NewClient(source.Client(), 0),
		nil,
		time.Second,
	)

	router := gin.New()
	NewWebmentionHandler(receiver).RegisterRoutes(router)
	return router, &fetches, source.URL + "/reply"
}

func postMention(router http.Handler, contentType string, form url.Values, host string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, EndpointPath, strings.NewReader(form.Encode()))
	req.Host = host
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleWebmention(t *testing.T) {
	const reply = `<div class="h-entry"><a class="u-in-reply-to" href="http://blog.example/post/abc123">re</a></div>`

	tests := []struct {
		name        string
		html        string
		contentType string
		target      string
		host        string
		wantStatus  int
		wantFetches int32
	}{
		{"Accepted", reply, "application/x-www-form-urlencoded", "http://blog.example/post/abc123", "blog.example", http.StatusOK, 1},
		{"Wrong content type", reply, "application/json", "http://blog.example/post/abc123", "blog.example", http.StatusUnsupportedMediaType, 0},
		{"Host mismatch", reply, "application/x-www-form-urlencoded", "http://blog.example/post/abc123", "other.example", http.StatusNotFound, 0},
		{"Unknown post", reply, "application/x-www-form-urlencoded", "http://blog.example/post/zzzzzz", "blog.example", http.StatusNotFound, 0},
		{"No h-entry", "<p>hi</p>", "application/x-www-form-urlencoded", "http://blog.example/post/abc123", "blog.example", http.StatusBadRequest, 1},
		{"No reply", `<div class="h-entry">hi</div>`, "application/x-www-form-urlencoded", "http://blog.example/post/abc123", "blog.example", http.StatusNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, fetches, sourceURL := setupRouter(t, tt.html)

			w := postMention(router, tt.contentType, url.Values{
				"source": {sourceURL},
				"target": {tt.target},
			}, tt.host)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantFetches, atomic.LoadInt32(fetches))
		})
	}
}

func TestHandleWebmention_MiddlewareRunsFirst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	blocked := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTooManyRequests)
	}
	NewWebmentionHandler(application.NewReceiver(postMap{}, nil, nil, time.Second)).RegisterRoutes(router, blocked)

	w := postMention(router, "application/x-www-form-urlencoded", url.Values{}, "blog.example")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRequestScheme(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"Plain", "", "http"},
		{"Forwarded https", "https", "https"},
		{"Forwarded list", "HTTPS, http", "https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, EndpointPath, nil)
			if tt.header != "" {
				req.Header.Set("X-Forwarded-Proto", tt.header)
			}
			assert.Equal(t, tt.want, RequestScheme(req))
		})
	}
}
