package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/plans"
)

// webhookAck is the body returned for every accepted delivery.
type webhookAck struct {
	Received bool `json:"received"`
}

// handleWebhook handles POST /webhooks/subscription.
//
// The raw body is authenticated before any parsing. Authenticated deliveries
// are always acknowledged with 200 unless reconciliation itself fails, so the
// provider only redelivers events we could not process.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	event, err := s.verifier.Verify(body, r.Header.Get(SignatureHeader))
	if err != nil {
		var sigErr *billing.SignatureError
		if errors.As(err, &sigErr) && s.metrics != nil {
			s.metrics.WebhookAuthFailures.WithLabelValues(sigErr.Reason).Inc()
		}
		s.logger.WithError(err).Warn("rejected webhook delivery")
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()

	seen, err := s.dedup.Seen(ctx, event.ID)
	if err != nil {
		// The dedup log is an optimization. Conditional writes keep
		// redelivered events idempotent, so a log outage is survivable.
		s.logger.WithError(err).WithField("event_id", event.ID).Warn("dedup lookup failed")
	}
	if seen {
		if s.metrics != nil {
			s.metrics.DedupHitsTotal.WithLabelValues(s.dedupBackend).Inc()
			s.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), string(billing.ResultDuplicate)).Inc()
		}
		s.logger.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		}).Info("skipping duplicate event")
		httputil.WriteSuccess(w, webhookAck{Received: true})
		return
	}
	if s.metrics != nil {
		s.metrics.DedupMissesTotal.WithLabelValues(s.dedupBackend).Inc()
	}

	outcome, err := s.dispatcher.Dispatch(ctx, event)
	if err != nil {
		if s.metrics != nil {
			s.metrics.WebhookHandlerErrors.WithLabelValues(string(event.Type)).Inc()
		}
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		}).Error("failed to process event")

		if plans.IsUnknownPlan(err) {
			httputil.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		httputil.WriteInternalError(w, fmt.Errorf("failed to process event %s", event.ID))
		return
	}

	// Marked only after success so failed deliveries stay eligible for
	// redelivery.
	if err := s.dedup.Mark(ctx, event.ID); err != nil {
		s.logger.WithError(err).WithField("event_id", event.ID).Warn("failed to mark event as processed")
	}

	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), string(outcome.Result)).Inc()
		s.metrics.WebhookEventDuration.WithLabelValues(string(event.Type)).Observe(time.Since(start).Seconds())
	}

	s.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"result":     string(outcome.Result),
		"tenant_id":  outcome.TenantID,
	}).Info("processed webhook event")

	httputil.WriteSuccess(w, webhookAck{Received: true})
}
