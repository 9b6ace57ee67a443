package extraction

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"mailcal/internal/events"
)

var errEmptyBody = errors.New("email body is empty")

// parser is the extraction collaborator boundary
type parser interface {
	ParseSchedule(ctx context.Context, body string) (*ParsedSchedule, error)
}

// publisher is the slice of the bus client the handler needs
type publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Handler consumes analysis requests and emits exactly one correlated result
// event per request, regardless of outcome. Extraction failures never escape
// to the bus; they become FAILURE results with a human-readable reason.
type Handler struct {
	parser    parser
	publisher publisher
	logger    zerolog.Logger
}

// NewHandler creates the analysis-request handler
func NewHandler(p parser, pub publisher, logger zerolog.Logger) *Handler {
	return &Handler{
		parser:    p,
		publisher: pub,
		logger:    logger,
	}
}

// HandleAnalysisRequest processes one email.analysis.request message. The
// only error it returns is a publish failure, which fails the delivery so the
// bus redelivers the request.
func (h *Handler) HandleAnalysisRequest(ctx context.Context, key, value []byte) error {
	req, err := events.DecodeEmailAnalysisRequest(value)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Dropping malformed analysis request")
		return nil
	}

	result := events.EmailAnalysisResult{EmailID: req.EmailID}

	parsed, err := h.extract(ctx, req)
	if err != nil {
		result.Status = events.StatusFailure
		result.FailureReason = err.Error()
		h.logger.Warn().
			Int64("email_id", req.EmailID).
			Str("reason", result.FailureReason).
			Msg("Extraction failed")
	} else {
		result.Status = events.StatusSuccess
		result.ParsedTitle = parsed.Title
		result.ParsedStartAt = parsed.StartAt
		result.ParsedEndAt = parsed.EndAt
		result.ParsedLocation = parsed.Location
		h.logger.Info().
			Int64("email_id", req.EmailID).
			Str("title", parsed.Title).
			Msg("Extraction succeeded")
	}

	resultKey := strconv.FormatInt(req.EmailID, 10)
	if err := h.publisher.Publish(ctx, events.TopicEmailAnalysisResult, resultKey, result); err != nil {
		// Not yet published: failing the delivery lets the bus redeliver the
		// request, which re-runs extraction and emits the result then.
		return err
	}
	return nil
}

// extract validates the request body and calls the collaborator. No internal
// retry: redelivery-driven retries belong to the bus.
func (h *Handler) extract(ctx context.Context, req *events.EmailAnalysisRequest) (*ParsedSchedule, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, errEmptyBody
	}
	return h.parser.ParseSchedule(ctx, req.Body)
}
