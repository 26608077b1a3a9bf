package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dfryer1193/webpress/webmention/application"
	"github.com/dfryer1193/webpress/webmention/domain"
	"github.com/gin-gonic/gin"
)

const EndpointPath = "/webmentions"

// MentionReceiver verifies inbound webmentions.
type MentionReceiver interface {
	Receive(ctx context.Context, req application.ReceiveRequest) (*domain.Mention, error)
}

var _ MentionReceiver = (*application.Receiver)(nil)

type WebmentionHandler struct {
	receiver MentionReceiver
}

func NewWebmentionHandler(receiver MentionReceiver) *WebmentionHandler {
	return &WebmentionHandler{
		receiver: receiver,
	}
}

// RegisterRoutes mounts the endpoint. Extra handlers, such as a rate limiter, run first.
func (h *WebmentionHandler) RegisterRoutes(r gin.IRouter, middleware ...gin.HandlerFunc) {
	handlers := append(middleware, h.HandleWebmention)
	r.POST(EndpointPath, handlers...)
}

// HandleWebmention answers with a bare status code.
func (h *WebmentionHandler) HandleWebmention(c *gin.Context) {
	req := application.ReceiveRequest{
		ContentType: c.GetHeader("Content-Type"),
		Body:        c.Request.Body,
		Host:        c.Request.Host,
		Scheme:      RequestScheme(c.Request),
	}

	_, err := h.receiver.Receive(c.Request.Context(), req)
	c.Status(domain.StatusFor(err))
}

// RequestScheme honours X-Forwarded-Proto from a fronting proxy.
func RequestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.ToLower(strings.TrimSpace(first))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
