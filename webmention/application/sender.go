package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dfryer1193/webpress/shared/fetch"
	"github.com/dfryer1193/webpress/webmention/domain"
	"github.com/rs/zerolog/log"
)

// ErrNoEndpoint is returned when a target advertises no webmention endpoint.
var ErrNoEndpoint = errors.New("target does not advertise a webmention endpoint")

// SenderMetrics counts outbound delivery outcomes.
type SenderMetrics interface {
	RecordDelivery(outcome string)
}

type noopSenderMetrics struct{}

func (noopSenderMetrics) RecordDelivery(string) {}

// Sender delivers outbound webmentions.
type Sender struct {
	fetcher    fetch.Fetcher
	deliveries domain.DeliveryRepository
	metrics    SenderMetrics
	timeout    time.Duration
	now        func() time.Time

	// Service lifecycle context - cancelled when Close() is called
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	// mu orders background starts against Close so wg.Wait never races wg.Go.
	mu     sync.Mutex
	closed bool
}

// NewSender creates a sender. deliveries may be nil, in which case nothing is recorded
// and links are re-notified on every call.
func NewSender(fetcher fetch.Fetcher, deliveries domain.DeliveryRepository, metrics SenderMetrics, timeout time.Duration) *Sender {
	if metrics == nil {
		metrics = noopSenderMetrics{}
	}
	if timeout <= 0 {
		timeout = fetch.DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	return &Sender{
		fetcher:    fetcher,
		deliveries: deliveries,
		metrics:    metrics,
		timeout:    timeout,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		wg:         &wg,
	}
}

// Close cancels in-flight deliveries and waits for them to return.
func (s *Sender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	return nil
}

// Notify sends one webmention in the background. Failures are logged, never returned.
func (s *Sender) Notify(sourceURL string, targetURL string) {
	started := s.goBackground(func() {
		s.sendAndLog(sourceURL, targetURL)
	})
	if !started {
		log.Warn().Str("source", sourceURL).Str("target", targetURL).Msg("Sender closed, dropping webmention")
	}
}

// NotifyLinks sends a webmention to every outbound link in the rendered HTML of sourceURL,
// skipping links back to the same host and targets that already accepted one.
func (s *Sender) NotifyLinks(sourceURL string, content string) {
	source, err := url.Parse(sourceURL)
	if err != nil {
		log.Error().Err(err).Str("source", sourceURL).Msg("Failed to parse source URL")
		return
	}
	s.goBackground(func() {
		for _, target := range ExtractLinks(source, content) {
			if s.ctx.Err() != nil {
				return
			}
			if t, err := url.Parse(target); err == nil && sameHost(t.Host, source.Host) {
				continue
			}
			if s.alreadyDelivered(sourceURL, target) {
				log.Debug().Str("source", sourceURL).Str("target", target).Msg("Webmention already delivered")
				continue
			}
			s.sendAndLog(sourceURL, target)
		}
	})
}

// goBackground runs fn on the wait group unless Close has begun.
func (s *Sender) goBackground(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Go(fn)
	return true
}

func (s *Sender) sendAndLog(sourceURL, targetURL string) {
	if err := s.Send(s.ctx, sourceURL, targetURL); err != nil {
		log.Warn().Err(err).Str("source", sourceURL).Str("target", targetURL).Msg("Failed to send webmention")
		return
	}
	log.Info().Str("source", sourceURL).Str("target", targetURL).Msg("Sent webmention")
}

func (s *Sender) alreadyDelivered(sourceURL, targetURL string) bool {
	if s.deliveries == nil {
		return false
	}
	delivered, err := s.deliveries.Delivered(s.ctx, sourceURL, targetURL)
	if err != nil {
		log.Error().Err(err).Str("target", targetURL).Msg("Failed to check delivery log")
		return false
	}
	return delivered
}

// Send makes one synchronous delivery attempt: fetch the target, discover its endpoint and
// post the source/target pair to it. The attempt is recorded in the delivery log.
func (s *Sender) Send(ctx context.Context, sourceURL string, targetURL string) error {
	delivery := domain.Delivery{Source: sourceURL, Target: targetURL}
	err := s.send(ctx, &delivery)

	delivery.SentAt = s.now().UTC()
	if err != nil {
		delivery.Error = err.Error()
	}
	s.metrics.RecordDelivery(deliveryOutcome(err))
	s.record(delivery)

	return err
}

func (s *Sender) send(ctx context.Context, delivery *domain.Delivery) error {
	target, err := url.Parse(delivery.Target)
	if err != nil || !isHTTPScheme(target.Scheme) || target.Host == "" {
		return fmt.Errorf("invalid target URL %q", delivery.Target)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.fetcher.Get(ctx, target.String())
	if err != nil {
		return &domain.TransportError{URL: target.String(), Err: err}
	}
	if !resp.OK() {
		return &domain.TransportError{URL: target.String(), StatusCode: resp.StatusCode}
	}

	endpoint, ok := DiscoverEndpoint(resp)
	if !ok {
		return ErrNoEndpoint
	}
	delivery.Endpoint = endpoint

	posted, err := s.fetcher.PostForm(ctx, endpoint, url.Values{
		"source": {delivery.Source},
		"target": {delivery.Target},
	})
	if err != nil {
		return &domain.TransportError{URL: endpoint, Err: err}
	}
	delivery.StatusCode = posted.StatusCode
	if !posted.OK() {
		return &domain.TransportError{URL: endpoint, StatusCode: posted.StatusCode}
	}
	return nil
}

func (s *Sender) record(delivery domain.Delivery) {
	if s.deliveries == nil {
		return
	}
	// the log outlives a cancelled send
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 5*time.Second)
	defer cancel()

	if err := s.deliveries.Record(ctx, delivery); err != nil {
		log.Error().Err(err).Str("target", delivery.Target).Msg("Failed to record webmention delivery")
	}
}

func deliveryOutcome(err error) string {
	var transport *domain.TransportError
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, ErrNoEndpoint):
		return "no_endpoint"
	case errors.As(err, &transport):
		return "failed"
	default:
		return "invalid"
	}
}
