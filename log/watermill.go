package log

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

// NewWatermill adapts a logrus entry to watermill's logger interface.
func NewWatermill(entry *logrus.Entry) *WatermillLogrusAdapter {
	return &WatermillLogrusAdapter{entry}
}

type WatermillLogrusAdapter struct {
	entry *logrus.Entry
}

func (a *WatermillLogrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.entry.WithError(err).WithFields(logrus.Fields(fields)).Error(msg)
}

func (a *WatermillLogrusAdapter) Info(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (a *WatermillLogrusAdapter) Debug(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *WatermillLogrusAdapter) Trace(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (a *WatermillLogrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogrusAdapter{a.entry.WithFields(logrus.Fields(fields))}
}

// CorrelationPublisherDecorator copies the correlation id from the message
// context to the message metadata before publishing.
type CorrelationPublisherDecorator struct {
	message.Publisher
}

func (d CorrelationPublisherDecorator) Publish(topic string, messages ...*message.Message) error {
	for i := range messages {
		if messages[i].Metadata.Get("correlation_id") == "" {
			messages[i].Metadata.Set("correlation_id", CorrelationIDFromContext(messages[i].Context()))
		}
	}
	return d.Publisher.Publish(topic, messages...)
}
