package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// PairChannel is the pub/sub channel carrying pairing events for one login.
func PairChannel(login string) string {
	return fmt.Sprintf("pairs:%s", login)
}

// SubmitLimitKey scopes the code submission rate limit to one login.
func SubmitLimitKey(login string) string {
	return fmt.Sprintf("code_submit:%s", login)
}
