package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSForwarder relays outbox envelopes to a downstream queue.
type SQSForwarder struct {
	client   sqsSender
	queueURL string
}

// NewSQSForwarder creates a forwarder around the provided SQS client.
func NewSQSForwarder(client sqsSender, queueURL string) *SQSForwarder {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSForwarder{client: client, queueURL: queueURL}
}

func (f *SQSForwarder) Handle(ctx context.Context, entry OutboxEntry) error {
	_, err := f.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"event_id":   {DataType: aws.String("String"), StringValue: aws.String(entry.ID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("events: forward %s to SQS: %w", entry.Type, err)
	}
	return nil
}
