package tasks

import (
	"context"

	"golang.org/x/sync/errgroup"

	"text2phenotype.com/postag/redis"
)

const DocumentsDB redis.DB = 0

type DocumentTask struct {
	FailedTasks  []string            `json:"failed_tasks"`
	FailedChunks map[string][]string `json:"failed_chunks"`
}

type DocumentTaskCached struct {
	DocInfo     map[string]interface{} `json:"document_info"`
	FailedTasks []string               `json:"failed_tasks"`
	JobID       string                 `json:"job_id"`
	WorkType    string                 `json:"work_type"`
}

type DocumentTasks struct {
	client redis.Client
}

func (tasks DocumentTasks) Get(ctx context.Context, redisKey string) (*DocumentTask, error) {
	var task DocumentTask
	if err := tasks.client.GetDocument(ctx, redisKey, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (tasks DocumentTasks) GetCached(ctx context.Context, redisKey string) (*DocumentTaskCached, error) {
	var task DocumentTaskCached
	if err := tasks.client.GetDocument(ctx, cachedPropertiesKey(redisKey), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update changes the document and mirrors its failed tasks into the cached
// properties record, both under the document lock.
func (tasks DocumentTasks) Update(ctx context.Context, redisKey string, updateFunc func(task *DocumentTask)) (err error) {
	releaseLock, err := tasks.client.Lock(ctx, redisKey)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()

	cachedKey := cachedPropertiesKey(redisKey)
	var raw, rawCached []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		raw, err = tasks.client.GetRaw(gctx, redisKey)
		return err
	})
	g.Go(func() (err error) {
		rawCached, err = tasks.client.GetRaw(gctx, cachedKey)
		return err
	})
	if err = g.Wait(); err != nil {
		return err
	}

	merged, mergedCached, err := mergeDocumentTask(raw, rawCached, updateFunc)
	if err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return tasks.client.SetRaw(gctx, redisKey, merged)
	})
	g.Go(func() error {
		return tasks.client.SetRaw(gctx, cachedKey, mergedCached)
	})
	return g.Wait()
}

func mergeDocumentTask(raw []byte, rawCached []byte, updateFunc func(task *DocumentTask)) ([]byte, []byte, error) {
	var task DocumentTask
	merged, err := redis.MergeJSON(raw, &task, func() {
		if task.FailedChunks == nil {
			task.FailedChunks = map[string][]string{}
		}
		updateFunc(&task)
	})
	if err != nil {
		return nil, nil, err
	}
	var cached DocumentTaskCached
	mergedCached, err := redis.MergeJSON(rawCached, &cached, func() {
		cached.FailedTasks = task.FailedTasks
	})
	if err != nil {
		return nil, nil, err
	}
	return merged, mergedCached, nil
}
