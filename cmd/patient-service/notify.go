package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ehr/patient-service/internal/config"
	"github.com/ehr/patient-service/internal/platform/messaging"
	"github.com/ehr/patient-service/internal/platform/metrics"
	"github.com/ehr/patient-service/internal/platform/notification"
)

func runNotifier(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.EventPublisher != config.PublisherKafka {
		return fmt.Errorf("notify requires EVENT_PUBLISHER=%s", config.PublisherKafka)
	}
	logger := newLogger(cfg).With().Str("component", "notification").Logger()

	m := metrics.New(prometheus.NewRegistry())
	notifier := notification.NewNotifier(
		notification.NewTemplateEngine(),
		notification.NewLogSender(logger),
		m,
		logger,
	)

	consumer, err := messaging.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaConsumerGroup, notifier, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Str("group", cfg.KafkaConsumerGroup).
		Msg("notification consumer started")
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Msg("notification consumer stopped")
	return nil
}
