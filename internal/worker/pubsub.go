package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the subscription.
const (
	JobTypeDatasetReload = "dataset_reload"
	JobTypeHealthCheck   = "health_check"
)

// ErrMalformedMessage indicates a message body that is not a job message.
var ErrMalformedMessage = errors.New("malformed job message")

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	reloadJob        *ReloadJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	ReloadJob        *ReloadJob
	Logger           zerolog.Logger
}

// JobMessage is the body of a worker job message.
type JobMessage struct {
	JobType string `json:"job_type"`
	Reason  string `json:"reason,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Reloads are heavy; take one message at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		reloadJob:        cfg.ReloadJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := HandleJob(ctx, h.reloadJob, logger, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, ErrMalformedMessage):
		// Redelivery would fail the same way.
		logger.Error().Err(err).Msg("dropping malformed message")
		msg.Ack()
	case errors.Is(err, ErrReloadInProgress):
		// The running reload picks up the same source data.
		logger.Info().Msg("reload already running, acknowledging trigger")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// HandleJob decodes a job message and runs it. Unknown job types are logged
// and treated as handled.
func HandleJob(ctx context.Context, job *ReloadJob, logger zerolog.Logger, data []byte) error {
	startTime := time.Now()

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobTypeDatasetReload:
		logger.Info().Str("reason", msg.Reason).Msg("dataset reload requested")
		if _, err := job.Run(ctx); err != nil {
			return err
		}
	case JobTypeHealthCheck:
		stats := job.Stats()
		if stats.ConsecutiveFailures > 0 {
			return fmt.Errorf("health check failed: %d consecutive reload failures: %s",
				stats.ConsecutiveFailures, stats.LastError)
		}
	default:
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return nil
	}

	logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}
