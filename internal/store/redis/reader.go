package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"rocengine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ErrMalformedObservation is returned for stream entries that cannot be
// decoded into a usable observation.
var ErrMalformedObservation = errors.New("malformed observation")

// Reader consumes observations from Redis Streams via consumer groups.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// NewReader creates a Reader on an existing client.
func NewReader(client *goredis.Client, group, consumer string) *Reader {
	if group == "" {
		group = "rocengine"
	}
	if consumer == "" {
		consumer = "rocengine-1"
	}
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
	}
}

// EnsureConsumerGroup creates the consumer group on each stream if missing.
// Fresh groups start at "$" (only new messages).
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	log.Printf("[redis-reader] consumer group %s ready on %d streams", r.consumerGroup, len(streams))
	return nil
}

// ConsumeObservations reads observations with XREADGROUP and sends them to
// out, acknowledging each entry after hand-off. Malformed entries are
// acknowledged and reported through onMalformed (may be nil).
// Returns when ctx is cancelled.
func (r *Reader) ConsumeObservations(ctx context.Context, streams []string, count int64, block time.Duration, out chan<- model.Observation, onMalformed func(error)) error {
	// [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    count,
			Block:    block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				if err := r.deliver(ctx, stream.Stream, msg, out, onMalformed); err != nil {
					return err
				}
			}
		}
	}
}

// RecoverPending replays this consumer group's unacknowledged entries from a
// previous run, giving at-least-once delivery.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.Observation) (int, error) {
	recovered := 0
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				MinIdle:  0,
				Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-reader] xclaim error on %s: %v", stream, err)
				break
			}

			for _, msg := range claimed {
				if err := r.deliver(ctx, stream, msg, out, nil); err != nil {
					return recovered, err
				}
				recovered++
			}

			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return recovered, nil
}

// ReclaimStaleMessages claims entries idle longer than minIdle that belong to
// other consumers in the group.
func (r *Reader) ReclaimStaleMessages(ctx context.Context, stream string, minIdle time.Duration, batchSize int64) ([]goredis.XMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  batchSize,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var staleIDs []string
	for _, p := range pending {
		if p.Consumer != r.consumerName {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    r.consumerGroup,
		Consumer: r.consumerName,
		MinIdle:  minIdle,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}

	log.Printf("[redis-reader] reclaimed %d stale PEL entries from %s", len(claimed), stream)
	return claimed, nil
}

// StartPELReclaimer periodically reclaims stale entries from dead consumers
// and feeds them to out. Blocks until ctx is cancelled.
func (r *Reader) StartPELReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration, out chan<- model.Observation, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				claimed, err := r.ReclaimStaleMessages(ctx, stream, minIdle, 50)
				if err != nil {
					log.Printf("[redis-reader] PEL reclaim error on %s: %v", stream, err)
					continue
				}
				for _, msg := range claimed {
					if err := r.deliver(ctx, stream, msg, out, nil); err != nil {
						return
					}
					total++
				}
			}
			if total > 0 && onReclaim != nil {
				onReclaim(total)
			}
		}
	}
}

// SubscribeChannel subscribes to a Pub/Sub channel and waits for confirmation.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) (*goredis.PubSub, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return pubsub, nil
}

// deliver decodes msg, sends it to out and acknowledges it. Only a cancelled
// context is returned as an error.
func (r *Reader) deliver(ctx context.Context, stream string, msg goredis.XMessage, out chan<- model.Observation, onMalformed func(error)) error {
	obs, err := DecodeObservation(msg.Values)
	if err != nil {
		log.Printf("[redis-reader] %s %s: %v", stream, msg.ID, err)
		if onMalformed != nil {
			onMalformed(err)
		}
		// ACK even on bad message to avoid poison pill
		r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
		return nil
	}

	select {
	case out <- obs:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
	return nil
}

// DecodeObservation parses the JSON "data" field of a stream entry.
// Entries without a timestamp are stamped with the current time.
func DecodeObservation(values map[string]interface{}) (model.Observation, error) {
	var obs model.Observation
	data, ok := values["data"].(string)
	if !ok {
		return obs, fmt.Errorf("%w: missing data field", ErrMalformedObservation)
	}
	if err := json.Unmarshal([]byte(data), &obs); err != nil {
		return obs, fmt.Errorf("%w: %v", ErrMalformedObservation, err)
	}
	if obs.Token == "" || obs.Exchange == "" {
		return obs, fmt.Errorf("%w: token and exchange are required", ErrMalformedObservation)
	}
	if obs.TS.IsZero() {
		obs.TS = time.Now().UTC()
	}
	return obs, nil
}
