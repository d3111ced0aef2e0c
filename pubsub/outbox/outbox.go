// Package outbox stores events in postgres within the business
// transaction and forwards them to the message broker afterwards, so an
// event is published if and only if the transaction committed.
package outbox

import (
	stdSQL "database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
)

const Topic = "events_to_forward"

// NewPublisherForTx returns a publisher that writes enveloped messages to
// the outbox table within tx.
func NewPublisherForTx(tx *stdSQL.Tx, logger watermill.LoggerAdapter) (message.Publisher, error) {
	sqlPublisher, err := sql.NewPublisher(
		tx,
		sql.PublisherConfig{
			SchemaAdapter: sql.DefaultPostgreSQLSchema{},
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create sql publisher: %w", err)
	}

	return forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: Topic,
	}), nil
}

func NewPostgresSubscriber(db *stdSQL.DB, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	subscriber, err := sql.NewSubscriber(
		db,
		sql.SubscriberConfig{
			SchemaAdapter:    sql.DefaultPostgreSQLSchema{},
			OffsetsAdapter:   sql.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create sql subscriber: %w", err)
	}

	return subscriber, nil
}

// AddForwarderHandler attaches the outbox forwarder to the router, so it
// runs and shuts down together with the rest of the message handlers.
func AddForwarderHandler(
	postgresSubscriber message.Subscriber,
	publisher message.Publisher,
	router *message.Router,
	logger watermill.LoggerAdapter,
) {
	_, err := forwarder.NewForwarder(postgresSubscriber, publisher, logger, forwarder.Config{
		ForwarderTopic: Topic,
		Router:         router,
	})
	if err != nil {
		panic(fmt.Errorf("could not create forwarder: %w", err))
	}
}
