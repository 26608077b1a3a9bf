package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	blogdomain "github.com/dfryer1193/webpress/blog/domain"
	"github.com/dfryer1193/webpress/shared/fetch"
	"github.com/dfryer1193/webpress/webmention/domain"
	"github.com/rs/zerolog/log"
	"willnorris.com/go/microformats"
)

const (
	formContentType = "application/x-www-form-urlencoded"
	maxFormSize     = 64 << 10
)

// PostLookup is the read access the receiver needs from the post store.
type PostLookup interface {
	Get(id string) (*blogdomain.Post, bool)
}

// ReceiverMetrics counts verification outcomes.
type ReceiverMetrics interface {
	RecordReceive(outcome string, duration time.Duration)
}

type noopReceiverMetrics struct{}

func (noopReceiverMetrics) RecordReceive(string, time.Duration) {}

// ReceiveRequest is an inbound webmention as seen by the HTTP layer.
type ReceiveRequest struct {
	ContentType string
	Body        io.Reader
	// Host and Scheme describe the origin this server was reached at.
	Host   string
	Scheme string
}

// Receiver verifies inbound webmentions against the post store and the source page.
type Receiver struct {
	posts   PostLookup
	fetcher fetch.Fetcher
	metrics ReceiverMetrics
	timeout time.Duration
}

// NewReceiver creates a receiver. A nil metrics is replaced by a no-op and a zero timeout
// by fetch.DefaultTimeout.
func NewReceiver(posts PostLookup, fetcher fetch.Fetcher, metrics ReceiverMetrics, timeout time.Duration) *Receiver {
	if metrics == nil {
		metrics = noopReceiverMetrics{}
	}
	if timeout <= 0 {
		timeout = fetch.DefaultTimeout
	}
	return &Receiver{
		posts:   posts,
		fetcher: fetcher,
		metrics: metrics,
		timeout: timeout,
	}
}

// Receive verifies a webmention claim. Steps run in order and stop at the first failure:
// media type, claim shape, source fetch, h-entry presence, in-reply-to corroboration.
// Use domain.StatusFor to turn the error into a response status.
func (r *Receiver) Receive(ctx context.Context, req ReceiveRequest) (*domain.Mention, error) {
	start := time.Now()
	mention, err := r.receive(ctx, req)

	outcome := domain.Outcome(err)
	r.metrics.RecordReceive(outcome, time.Since(start))

	if err != nil {
		log.Warn().Err(err).Str("outcome", outcome).Int("status", domain.StatusFor(err)).Msg("Rejected webmention")
		return nil, err
	}
	log.Info().
		Str("source", mention.Source.String()).
		Str("target", mention.Target.String()).
		Str("postID", mention.PostID).
		Msg("Accepted webmention")
	return mention, nil
}

func (r *Receiver) receive(ctx context.Context, req ReceiveRequest) (*domain.Mention, error) {
	mediaType, _, err := mime.ParseMediaType(req.ContentType)
	if err != nil || mediaType != formContentType {
		return nil, domain.ErrUnsupportedMediaType
	}

	form, err := readForm(req.Body)
	if err != nil {
		return nil, &domain.ValidationError{Reason: err.Error()}
	}

	source, target, postID, err := r.validate(req, form)
	if err != nil {
		return nil, err
	}

	// verification runs to completion even if the client goes away
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	resp, err := r.fetcher.Get(fetchCtx, source.String())
	if err != nil {
		return nil, &domain.TransportError{URL: source.String(), Err: err}
	}
	if !resp.OK() {
		return nil, &domain.TransportError{URL: source.String(), StatusCode: resp.StatusCode}
	}

	base := source
	if resp.URL != nil {
		base = resp.URL
	}
	entry := findEntry(parseMicroformats(resp.Body, base).Items)
	if entry == nil {
		return nil, domain.ErrNoEntry
	}

	if err := r.corroborate(entry, base); err != nil {
		return nil, err
	}

	return &domain.Mention{Source: source, Target: target, PostID: postID}, nil
}

func readForm(body io.Reader) (url.Values, error) {
	if body == nil {
		return url.Values{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, maxFormSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read form: %w", err)
	}
	if len(data) > maxFormSize {
		return nil, fmt.Errorf("form exceeds %d bytes", maxFormSize)
	}
	return url.ParseQuery(string(data))
}

// validate checks the claim without network access.
func (r *Receiver) validate(req ReceiveRequest, form url.Values) (*url.URL, *url.URL, string, error) {
	if !isHTTPScheme(req.Scheme) {
		return nil, nil, "", &domain.ValidationError{Reason: "unsupported request scheme " + req.Scheme}
	}
	origin := &url.URL{Scheme: req.Scheme, Host: req.Host, Path: "/"}

	source, err := parseClaimURL(origin, form.Get("source"))
	if err != nil {
		return nil, nil, "", &domain.ValidationError{Reason: "source: " + err.Error()}
	}
	target, err := parseClaimURL(origin, form.Get("target"))
	if err != nil {
		return nil, nil, "", &domain.ValidationError{Reason: "target: " + err.Error()}
	}

	if !sameHost(target.Host, req.Host) {
		return nil, nil, "", &domain.ValidationError{Reason: "target host " + target.Host + " is not served here"}
	}
	id, ok := blogdomain.PostIDFromPath(target.Path)
	if !ok {
		return nil, nil, "", &domain.ValidationError{Reason: "target " + target.Path + " is not a post"}
	}
	if _, ok := r.posts.Get(id); !ok {
		return nil, nil, "", &domain.ValidationError{Reason: "post " + id + " does not exist"}
	}

	return source, target, id, nil
}

// corroborate checks that the entry's first in-reply-to names a post that exists here.
// Any existing post is enough; the reply does not have to name the target itself.
func (r *Receiver) corroborate(entry *microformats.Microformat, base *url.URL) error {
	raw, ok := firstURL(entry, "in-reply-to")
	if !ok {
		return &domain.CorroborationError{Reason: "h-entry has no in-reply-to"}
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return &domain.CorroborationError{Reason: "in-reply-to is not a URL"}
	}
	replyTo := base.ResolveReference(ref)

	id, ok := blogdomain.PostIDFromPath(replyTo.Path)
	if !ok {
		return &domain.CorroborationError{Reason: "in-reply-to " + replyTo.String() + " is not a post URL"}
	}
	if _, ok := r.posts.Get(id); !ok {
		return &domain.CorroborationError{Reason: "post " + id + " does not exist"}
	}
	return nil
}

func parseClaimURL(origin *url.URL, raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("missing")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	u := origin.ResolveReference(ref)
	if !isHTTPScheme(u.Scheme) || u.Host == "" {
		return nil, fmt.Errorf("%s is not an http(s) URL", raw)
	}
	return u, nil
}

func isHTTPScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

func sameHost(a, b string) bool {
	return strings.EqualFold(a, b)
}
