package tasks

import (
	"fmt"

	"text2phenotype.com/postag/redis"
)

type Client struct {
	Documents DocumentTasks
	Chunks    ChunkTasks
	Jobs      JobTasks
}

// NewClient is a preferred way for working with TaskInfos
func NewClient() (Client, error) {
	cfg, err := redis.ReadEnvironment()
	if err != nil {
		return Client{}, err
	}
	return Client{
		Documents: DocumentTasks{client: redis.NewClientWithConfig(cfg, DocumentsDB)},
		Jobs:      JobTasks{client: redis.NewClientWithConfig(cfg, JobsDB)},
		Chunks:    ChunkTasks{client: redis.NewClientWithConfig(cfg, ChunksDB)},
	}, nil
}

func (client *Client) Close() {
	_ = client.Chunks.client.Close()
	_ = client.Documents.client.Close()
	_ = client.Jobs.client.Close()
}

func cachedPropertiesKey(redisKey string) string {
	return fmt.Sprintf("%s-cached-properties", redisKey)
}
