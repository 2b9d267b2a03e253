// Package cache mirrors the power timeline into Redis so other services can
// read the outlet state without touching the data file.
//
// Keys (with the configured prefix, default "outlet"):
//
//	outlet:slots   hash of slot (RFC3339) -> "0"/"1"
//	outlet:latest  JSON {"slot": ..., "state": "ON"|"OFF"}
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sweeney/outlet-monitor/internal/fanout"
	"github.com/sweeney/outlet-monitor/internal/logic"
)

// ErrMiss is returned when nothing has been cached yet.
var ErrMiss = errors.New("cache miss")

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "outlet"

// Latest is the cached newest slot.
type Latest struct {
	Slot  string `json:"slot"`
	State string `json:"state"`
}

// Sink writes slot changes to Redis.
type Sink struct {
	c      *redis.Client
	prefix string
}

// NewClient creates a Redis client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewSink returns a sink writing under prefix.
func NewSink(c *redis.Client, prefix string) *Sink {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sink{c: c, prefix: prefix}
}

func (s *Sink) key(name string) string { return s.prefix + ":" + name }

// Name implements fanout.Sink.
func (s *Sink) Name() string { return "redis" }

// Ping checks the connection.
func (s *Sink) Ping(ctx context.Context) error {
	return s.c.Ping(ctx).Err()
}

// Deliver implements fanout.Sink.
func (s *Sink) Deliver(ctx context.Context, ev fanout.Event) error {
	if len(ev.Changes) == 0 {
		return nil
	}
	fields := make([]interface{}, 0, 2*len(ev.Changes))
	for _, c := range ev.Changes {
		fields = append(fields, logic.FormatSlot(c.Slot), strconv.Itoa(c.State.Bit()))
	}
	latest, err := json.Marshal(Latest{Slot: logic.FormatSlot(ev.Latest.Slot), State: string(ev.Latest.State)})
	if err != nil {
		return err
	}

	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key("slots"), fields...)
		p.Set(ctx, s.key("latest"), latest, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: write %d slots: %w", len(ev.Changes), err)
	}
	return nil
}

// Latest returns the cached newest slot.
func (s *Sink) Latest(ctx context.Context) (Latest, error) {
	val, err := s.c.Get(ctx, s.key("latest")).Result()
	if err != nil {
		if err == redis.Nil {
			return Latest{}, ErrMiss
		}
		return Latest{}, err
	}
	var l Latest
	if err := json.Unmarshal([]byte(val), &l); err != nil {
		return Latest{}, fmt.Errorf("redis: decode latest: %w", err)
	}
	return l, nil
}

// Slot returns the cached state of slot.
func (s *Sink) Slot(ctx context.Context, slot time.Time) (logic.State, error) {
	val, err := s.c.HGet(ctx, s.key("slots"), logic.FormatSlot(slot)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", err
	}
	bit, err := strconv.Atoi(val)
	if err != nil {
		return "", fmt.Errorf("redis: slot %s: %w", val, err)
	}
	return logic.StateFromBit(bit)
}

// Close closes the client.
func (s *Sink) Close() error {
	return s.c.Close()
}
