package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
)

type fakeSQSClient struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSQSPublisherPublishSuccess(t *testing.T) {
	client := &fakeSQSClient{}
	pub := newSQSPublisherWithClient("queue", "https://example.com/queue", client, nil)

	err := pub.Publish(context.Background(), NewEvent("apify", "nasa", domain.Post{ID: "p1", Title: "Launch"}))
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("client was not called")
	}
	input := client.inputs[0]
	if got := aws.ToString(input.QueueUrl); got != "https://example.com/queue" {
		t.Fatalf("QueueUrl = %s", got)
	}
	for key, want := range map[string]string{"provider_id": "apify", "handle": "nasa", "post_key": "id:p1"} {
		attr, ok := input.MessageAttributes[key]
		if !ok || aws.ToString(attr.StringValue) != want {
			t.Fatalf("%s attribute missing or wrong: %#v", key, attr)
		}
		if aws.ToString(attr.DataType) != "String" {
			t.Fatalf("DataType should be String, got %#v", attr.DataType)
		}
	}
	body := aws.ToString(input.MessageBody)
	if !strings.Contains(body, `"post_key":"id:p1"`) || !strings.Contains(body, `"id":"p1"`) {
		t.Fatalf("MessageBody missing fields: %s", body)
	}
	if input.MessageGroupId != nil || input.MessageDeduplicationId != nil {
		t.Fatalf("standard queue must not set FIFO fields: %+v", input)
	}
}

func TestSQSPublisherFIFOGroupsByHandle(t *testing.T) {
	client := &fakeSQSClient{}
	pub := newSQSPublisherWithClient("queue", "https://example.com/posts.fifo", client, nil)
	ctx := context.Background()

	first := NewEvent("apify", "nasa", domain.Post{ID: "p1"})
	again := NewEvent("apify", "nasa", domain.Post{ID: "p1"})
	other := NewEvent("apify", "esa", domain.Post{ID: "p1"})
	for _, evt := range []Event{first, again, other} {
		if err := pub.Publish(ctx, evt); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	group := aws.ToString(client.inputs[0].MessageGroupId)
	dedup := aws.ToString(client.inputs[0].MessageDeduplicationId)
	if group != "nasa" || len(dedup) != 64 {
		t.Fatalf("unexpected fifo fields group=%q dedup=%q", group, dedup)
	}
	if aws.ToString(client.inputs[1].MessageDeduplicationId) != dedup {
		t.Fatalf("same post must share a deduplication id across events")
	}
	if aws.ToString(client.inputs[2].MessageDeduplicationId) == dedup {
		t.Fatalf("same post id under another handle must not collide")
	}
}

func TestSQSPublisherPublishError(t *testing.T) {
	pub := newSQSPublisherWithClient("queue", "https://example.com/queue", &fakeSQSClient{err: errors.New("boom")}, nil)

	err := pub.Publish(context.Background(), NewEvent("apify", "nasa", domain.Post{ID: "p1"}))
	if err == nil || !strings.Contains(err.Error(), "nasa post id:p1") {
		t.Fatalf("expected error naming the post, got %v", err)
	}
}
