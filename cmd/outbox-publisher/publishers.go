package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherSource interface {
	For(topic string) publisher
}

type topicPublisherFactory interface {
	Publisher(name string) *gcppubsub.Publisher
}

// topicPublishers keeps one Pub/Sub publisher per topic for the life of the process so
// batching and flow control are shared across polls.
type topicPublishers struct {
	factory topicPublisherFactory

	mu    sync.Mutex
	cache map[string]*gcppubsub.Publisher
}

func newTopicPublishers(factory topicPublisherFactory) *topicPublishers {
	return &topicPublishers{factory: factory, cache: map[string]*gcppubsub.Publisher{}}
}

func (t *topicPublishers) For(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.cache[topic]; ok {
		return &gcpPublisher{Publisher: p}
	}
	p := t.factory.Publisher(topic)
	if p == nil {
		return nil
	}
	t.cache[topic] = p
	return &gcpPublisher{Publisher: p}
}

// Stop flushes and stops every cached publisher.
func (t *topicPublishers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, p := range t.cache {
		p.Stop()
		delete(t.cache, topic)
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
