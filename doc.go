// Package booknotify delivers "book is available again" notifications to the
// users who wishlisted a book, over Kafka, with staged retries and a
// dead-letter topic.
//
// Works both as a library for embedding in a catalogue service AND as a
// standalone microservice with REST API (cmd/notification-server).
//
// # Features
//
//   - One BOOK_AVAILABLE event per wishlisted user, keyed by book ID so events of one book stay ordered
//   - Non-blocking retries: failed events move through <topic>-retry-0 .. <topic>-retry-N
//   - Exponential backoff: 2s → 4s → 8s, capped at 10s, 4 attempts in total
//   - Dead-letter topic <topic>-dlt with the full failure context in record headers
//   - Malformed payloads skip the retry stages and go straight to the dead-letter topic
//   - Pluggable Processor with a failure injector for exercising the retry path
//   - Dead-letter persistence and alert hooks
//   - Adapters: Kafka (sarama), in-memory broker, Relica (MySQL/PostgreSQL/SQLite), Redis, Prometheus
//
// # Quick Start
//
// Connect to Kafka and build the pipeline with the Options Pattern:
//
//	producer, subscriber, err := kafka.ConnectWithRetry(kafka.Config{
//	    Brokers: []string{"localhost:9092"},
//	    GroupID: "notification-service-group",
//	}, logger)
//
//	pipeline, err := booknotify.NewPipeline(
//	    booknotify.WithProducer(producer),
//	    booknotify.WithBaseTopic("book-notifications"),
//	    booknotify.WithProcessor(booknotify.NewLoggingProcessor(logger, 0)),
//	    booknotify.WithDeadLetterHandler(booknotify.NewLoggingDeadLetterHandler(logger)),
//	    booknotify.WithLogger(logger),
//	)
//
//	go pipeline.Run(ctx, subscriber)
//
// Report status changes through the notifier:
//
//	publisher, _ := booknotify.NewPublisher(
//	    booknotify.WithPublisherProducer(producer),
//	    booknotify.WithTopic("book-notifications"),
//	)
//	notifier, _ := booknotify.NewAvailabilityNotifier(repos.Wishlist, publisher, logger)
//
//	outcomes, err := notifier.BookStatusChanged(ctx, book, model.StatusBorrowed)
//	if err == nil {
//	    err = booknotify.AwaitAll(ctx, outcomes)
//	}
//
// # Message Flow
//
//  1. PUBLISH
//     BORROWED → AVAILABLE transition → read wishlist
//     → one event per user on the primary topic
//
//  2. PROCESS
//     Pipeline consumes the primary topic and every retry stage
//     → On Success: commit
//     → On Failure: forward to the next retry stage with a due time
//     → After the last attempt: forward to the dead-letter topic
//
//  3. DEAD LETTER
//     Dead-letter topic → structured error log
//     → optional persist hook (adapters/relica) and alert hook (adapters/prometheus)
//
// A record is committed only after its forward to the next stage was
// acknowledged by the broker, so a crash never loses an event; it may be
// processed twice.
//
// # Database Schema
//
// The Relica adapters use two tables (created via embedded goose migrations):
//
//	booknotify_wishlist      - Users waiting for a book
//	booknotify_dead_letters  - Persisted dead letters with resolution state
//
// Table prefix can be customized (default: "booknotify_").
package booknotify
