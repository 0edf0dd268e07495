package worker

import (
	"context"
	"fmt"

	"text2phenotype.com/postag/tasks"
)

type redisTransactions interface {
	getChunkTask(ctx context.Context, redisKey string) (*tasks.ChunkTask, error)
	getJobTask(ctx context.Context, task *Task) (*tasks.JobTask, error)
	getDocTask(ctx context.Context, task *Task) (*tasks.DocumentTaskCached, error)
	onTaskStarted(ctx context.Context, task *Task) error
	onTaskCancelled(ctx context.Context, task *Task, errorMessages ...string) error
	onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error
	onTaskFailedWithError(ctx context.Context, task *Task, err error) error
	onTaskComplete(ctx context.Context, task *Task) error
	close()
}

type redisClientWrapper struct {
	tasksClient *tasks.Client
}

func (wrapper *redisClientWrapper) close() {
	wrapper.tasksClient.Close()
}

func (wrapper *redisClientWrapper) onTaskStarted(ctx context.Context, task *Task) error {
	return wrapper.tasksClient.Chunks.Update(ctx, task.redisKey, func(chunkTask *tasks.ChunkTask) {
		markStarted(&chunkTask.TaskStatuses.POSTag)
	})
}

func (wrapper *redisClientWrapper) onTaskCancelled(ctx context.Context, task *Task, errorMessages ...string) error {
	return wrapper.tasksClient.Chunks.Update(ctx, task.redisKey, func(chunkTask *tasks.ChunkTask) {
		markCancelled(&chunkTask.TaskStatuses.POSTag, errorMessages...)
	})
}

func (wrapper *redisClientWrapper) onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error {
	err := wrapper.tasksClient.Documents.Update(ctx, task.chunkTask.DocID, func(docTask *tasks.DocumentTask) {
		docTask.FailedTasks = append(docTask.FailedTasks, senderName)
		docTask.FailedChunks[task.redisKey] = append(docTask.FailedChunks[task.redisKey], senderName)
	})
	if err != nil {
		return err
	}
	return wrapper.tasksClient.Chunks.Update(ctx, task.redisKey, func(chunkTask *tasks.ChunkTask) {
		markExceededRetries(&chunkTask.TaskStatuses.POSTag, maxRetries)
	})
}

func (wrapper *redisClientWrapper) onTaskFailedWithError(ctx context.Context, task *Task, err error) error {
	return wrapper.tasksClient.Chunks.Update(ctx, task.redisKey, func(chunkTask *tasks.ChunkTask) {
		markFailed(&chunkTask.TaskStatuses.POSTag, err)
	})
}

func (wrapper *redisClientWrapper) onTaskComplete(ctx context.Context, task *Task) error {
	return wrapper.tasksClient.Chunks.Update(ctx, task.redisKey, func(chunkTask *tasks.ChunkTask) {
		markComplete(&chunkTask.TaskStatuses.POSTag, getResultsFileKey(task), task.fingerprint)
	})
}

func (wrapper *redisClientWrapper) getChunkTask(ctx context.Context, redisKey string) (*tasks.ChunkTask, error) {
	return wrapper.tasksClient.Chunks.Get(ctx, redisKey)
}

func (wrapper *redisClientWrapper) getJobTask(ctx context.Context, task *Task) (*tasks.JobTask, error) {
	return wrapper.tasksClient.Jobs.GetCached(ctx, task.chunkTask.JobID)
}

func (wrapper *redisClientWrapper) getDocTask(ctx context.Context, task *Task) (*tasks.DocumentTaskCached, error) {
	return wrapper.tasksClient.Documents.GetCached(ctx, task.chunkTask.DocID)
}

func markStarted(info *tasks.ChunkTaskInfo) {
	info.Status = tasks.TaskStatusStarted
	info.Attempts += 1
	info.StartedAt = getFormattedNow()
	info.CompletedAt = nil
}

func markCancelled(info *tasks.ChunkTaskInfo, errorMessages ...string) {
	info.Status = tasks.TaskStatusCanceled
	info.StartedAt = getFormattedNow()
	info.CompletedAt = getFormattedNow()
	info.Attempts += 1
	info.ErrorMessages = append(info.ErrorMessages, errorMessages...)
}

func markExceededRetries(info *tasks.ChunkTaskInfo, maxRetries int) {
	info.Status = tasks.TaskStatusCompletedFailure
	info.StartedAt = getFormattedNow()
	info.CompletedAt = getFormattedNow()
	info.Attempts += 1
	info.ErrorMessages = append(
		info.ErrorMessages,
		fmt.Sprintf(
			"Task has exceeded retries. (Attempts: %d, max retries: %d )",
			info.Attempts,
			maxRetries,
		),
	)
}

func markFailed(info *tasks.ChunkTaskInfo, err error) {
	info.Status = tasks.TaskStatusFailed
	info.CompletedAt = getFormattedNow()
	info.ErrorMessages = append(info.ErrorMessages, err.Error())
}

func markComplete(info *tasks.ChunkTaskInfo, resultsFileKey string, fingerprint string) {
	if !info.Status.Complete() {
		info.Status = tasks.TaskStatusCompletedSuccess
	}
	info.CompletedAt = getFormattedNow()
	info.ResultsFileKey = resultsFileKey
	info.Fingerprint = fingerprint
}
