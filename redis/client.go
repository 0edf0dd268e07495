package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"

	"text2phenotype.com/postag/utils"
)

type DB int
type ReleaseLock func() error

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
}

type Config struct {
	LockExpirationSeconds   int     `envconfig:"POSTAG_REDIS_LOCK_EXPIRATION" default:"3"`
	Host                    string  `envconfig:"POSTAG_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"POSTAG_REDIS_PORT" required:"true"`
	HASentinelPort          string  `envconfig:"POSTAG_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"POSTAG_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"POSTAG_REDIS_AUTH_PASSWORD" default:"0"`
	AuthRequired            bool    `envconfig:"POSTAG_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"POSTAG_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"POSTAG_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

func NewClient(db DB) (Client, error) {
	cfg, err := ReadEnvironment()
	if err != nil {
		return Client{}, err
	}
	return NewClientWithConfig(cfg, db), nil
}

func NewClientWithConfig(cfg *Config, db DB) Client {
	var client redis.UniversalClient
	if cfg.HAMode {
		client = CreateClusterClient(cfg, db)
	} else {
		client = CreateClient(cfg, db)
	}
	return Client{
		client:         client,
		lockExpiration: time.Duration(cfg.LockExpirationSeconds) * time.Second,
	}
}

func CreateClusterClient(cfg *Config, db DB) *redis.ClusterClient {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{addr},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            int(db),
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewFailoverClusterClient(&options)
}

func CreateClient(cfg *Config, db DB) *redis.Client {
	options := redis.Options{
		Addr:       fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		MaxRetries: 6,
		DB:         int(db),
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewClient(&options)
}

// GetDocument decodes the JSON stored under redisKey into doc.
func (client *Client) GetDocument(ctx context.Context, redisKey string, doc interface{}) error {
	raw, err := client.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode %s: %w", redisKey, err)
	}
	return nil
}

// UpdateDocument applies update to doc under the key lock. Fields of the
// stored JSON that doc does not declare are kept as they are.
func (client *Client) UpdateDocument(ctx context.Context, redisKey string, doc interface{}, update func()) (err error) {
	releaseLock, err := client.Lock(ctx, redisKey)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()

	return client.MergeDocument(ctx, redisKey, doc, update)
}

// MergeDocument is UpdateDocument for callers already holding the lock.
func (client *Client) MergeDocument(ctx context.Context, redisKey string, doc interface{}, update func()) error {
	raw, err := client.GetRaw(ctx, redisKey)
	if err != nil {
		return err
	}
	merged, err := MergeJSON(raw, doc, update)
	if err != nil {
		return fmt.Errorf("update %s: %w", redisKey, err)
	}
	return client.SetRaw(ctx, redisKey, merged)
}

func (client *Client) GetRaw(ctx context.Context, redisKey string) ([]byte, error) {
	return client.client.Get(ctx, redisKey).Bytes()
}

func (client *Client) SetRaw(ctx context.Context, redisKey string, raw []byte) error {
	return client.client.Set(ctx, redisKey, raw, 0).Err()
}

// MergeJSON loads raw into doc, runs update and merges the resulting
// difference back into raw.
func MergeJSON(raw []byte, doc interface{}, update func()) (merged []byte, err error) {
	defer utils.RecoverWithError(&err)

	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, err
	}
	before, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	update()
	after, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(before, after)
	if err != nil {
		return nil, err
	}
	return jsonpatch.MergePatch(raw, patch)
}

func (client *Client) Lock(ctx context.Context, redisKey string) (ReleaseLock, error) {
	lockCl := redislock.New(client.client)
	str := redislock.LimitRetry(redislock.LinearBackoff(time.Second), 20)
	lockKey := fmt.Sprintf("lock:%s", redisKey)
	lock, err := lockCl.Obtain(ctx, lockKey, client.lockExpiration, &redislock.Options{RetryStrategy: str})
	if err != nil {
		return nil, err
	}
	return func() error {
		return lock.Release(context.Background())
	}, nil
}

func (client *Client) SaveDocument(ctx context.Context, redisKey string, doc interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return client.client.Set(ctx, redisKey, b, 0).Err()
}

func (client *Client) Close() error {
	return client.client.Close()
}

func ReadEnvironment() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
