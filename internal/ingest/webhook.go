package ingest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/observability"
)

const (
	maxBodyBytes = 1 << 20

	// Route path constants.
	routeIndex    = "/"
	routeWebhook  = "/webhooks/inbound-email"
	routeInsights = "/api/v1/insights"

	// Content type constants.
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json; charset=utf-8"

	// Webhook metric statuses.
	statusReceived   = "received"
	statusDuplicate  = "duplicate"
	statusEmpty      = "empty"
	statusBadRequest = "bad_request"
	statusError      = "error"

	// Intake adapter labels.
	adapterWebhook = "webhook"
	adapterFeed    = "feed"

	// Insight listing limits.
	defaultInsightsLimit = 50
	maxInsightsLimit     = 200

	// Log field constants.
	logFieldMessageID = "message_id"
	logFieldSender    = "sender"
)

// Handler serves the inbound-email webhook and the insights read API.
type Handler struct {
	repo   Repository
	logger *zerolog.Logger
}

// NewHandler creates the HTTP intake handler.
func NewHandler(repo Repository, logger *zerolog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// ServeHTTP routes intake and read-API requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case routeWebhook:
		h.handleInbound(w, r)
	case routeInsights:
		h.handleInsights(w, r)
	case routeIndex:
		h.handleIndex(w, r)
	default:
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown endpoint"})
	}
}

// handleInbound accepts one inbound email payload and enqueues it. The
// response is immediate; extraction and merging happen asynchronously in
// the pipeline worker.
func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		observability.WebhookRequests.WithLabelValues(statusBadRequest).Inc()
		h.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})

		return
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		observability.WebhookRequests.WithLabelValues(statusBadRequest).Inc()
		h.logger.Warn().Err(err).Msg("Webhook payload is not valid JSON")
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})

		return
	}

	newsletter, err := ParseInbound(payload, time.Now())
	if err != nil {
		// Acknowledged so the provider does not redeliver mail that will
		// never produce insights.
		observability.WebhookRequests.WithLabelValues(statusEmpty).Inc()
		h.logger.Info().
			Str(logFieldSender, stringField(payload, senderKeys...)).
			Msg("Discarded contentless inbound email")
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})

		return
	}

	inserted, err := h.repo.EnqueueNewsletter(r.Context(), newsletter)
	if err != nil {
		observability.WebhookRequests.WithLabelValues(statusError).Inc()
		h.logger.Error().Err(err).Str(logFieldMessageID, newsletter.MessageID).Msg("Failed to enqueue newsletter")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})

		return
	}

	if inserted {
		observability.WebhookRequests.WithLabelValues(statusReceived).Inc()
		observability.NewslettersIngested.WithLabelValues(adapterWebhook).Inc()
		h.logger.Info().
			Str(logFieldMessageID, newsletter.MessageID).
			Str(logFieldSender, newsletter.Sender).
			Msg("Newsletter queued for processing")
	} else {
		observability.WebhookRequests.WithLabelValues(statusDuplicate).Inc()
		observability.NewslettersDuplicate.WithLabelValues(adapterWebhook).Inc()
		h.logger.Debug().Str(logFieldMessageID, newsletter.MessageID).Msg("Newsletter already received, skipping")
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// indexResponse is the service banner served at the root path.
type indexResponse struct {
	Message  string         `json:"message"`
	Queue    map[string]int `json:"queue,omitempty"`
	Insights int            `json:"insights"`
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := indexResponse{
		Message: "nutshell is running. POST inbound email to " + routeWebhook + ", read insights at " + routeInsights + ".",
	}

	if stats, err := h.repo.GetNewsletterQueueStats(r.Context()); err == nil {
		queue := make(map[string]int, len(stats))
		for _, s := range stats {
			queue[s.Status] = s.Count
		}

		resp.Queue = queue
	}

	if total, err := h.repo.CountInsights(r.Context()); err == nil {
		resp.Insights = total
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// insightView is the wire shape of one stored insight.
type insightView struct {
	ID                 string                  `json:"id"`
	Headline           string                  `json:"headline"`
	Summary            string                  `json:"summary"`
	RelevanceScore     int                     `json:"relevance_score"`
	Category           string                  `json:"category"`
	Links              []string                `json:"links,omitempty"`
	Tags               []string                `json:"tags,omitempty"`
	CompaniesMentioned []string                `json:"companies_mentioned,omitempty"`
	KeyPeople          []string                `json:"key_people,omitempty"`
	Sources            []domain.SourceMetadata `json:"sources"`
	MentionCount       int                     `json:"mention_count"`
	FirstSeen          time.Time               `json:"first_seen"`
	LastSeen           time.Time               `json:"last_seen"`
}

type insightsResponse struct {
	Insights []insightView `json:"insights"`
	Count    int           `json:"count"`
}

// handleInsights lists stored insights, most-mentioned first, then most
// recently seen. Optional query parameters: category, limit.
func (h *Handler) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET required"})

		return
	}

	category := r.URL.Query().Get("category")

	limit := defaultInsightsLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})

			return
		}

		limit = parsed
		if limit > maxInsightsLimit {
			limit = maxInsightsLimit
		}
	}

	insights, err := h.repo.ListInsights(r.Context(), category, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list insights")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})

		return
	}

	views := make([]insightView, 0, len(insights))
	for i := range insights {
		views = append(views, toInsightView(&insights[i]))
	}

	h.writeJSON(w, http.StatusOK, insightsResponse{Insights: views, Count: len(views)})
}

func toInsightView(in *domain.StoredInsight) insightView {
	return insightView{
		ID:                 in.ID,
		Headline:           in.Headline,
		Summary:            in.Summary,
		RelevanceScore:     in.RelevanceScore,
		Category:           in.Category,
		Links:              in.Links,
		Tags:               in.Tags,
		CompaniesMentioned: in.CompaniesMentioned,
		KeyPeople:          in.KeyPeople,
		Sources:            in.Sources,
		MentionCount:       in.MentionCount,
		FirstSeen:          in.FirstSeen,
		LastSeen:           in.LastSeen,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("write json failed")
	}
}
