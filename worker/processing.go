package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"text2phenotype.com/postag/tasks"
	"text2phenotype.com/postag/utils"
)

type Message struct {
	WorkType string `json:"work_type"`
	RedisKey string `json:"redis_key"`
	Sender   string `json:"sender"`
	Version  string `json:"version"`
}

type Task struct {
	delivery    *amqp.Delivery
	chunkTask   *tasks.ChunkTask
	message     *Message
	redisKey    string
	fingerprint string
	taskLogger  *zerolog.Logger
}

// task outcomes reported to metrics
const (
	outcomeCompleted       = "completed"
	outcomeFailed          = "failed"
	outcomeCanceled        = "canceled"
	outcomeSkipped         = "skipped"
	outcomeExceededRetries = "exceeded_retries"
	outcomeRejected        = "rejected"
)

func (worker *Worker) processMessage(ctx context.Context, delivery *amqp.Delivery) {
	rejectLogger := worker.workerLogger.With().Str("message_id", delivery.MessageId).Logger()
	task, err := worker.createTask(ctx, delivery)
	if err != nil {
		rejectLogger.Err(err).
			Str("tid", string(delivery.Body)).
			Msg("Failed to create task for delivery")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		worker.metrics.ObserveTask(outcomeRejected)
		return
	}
	outcome, err := worker.processTask(ctx, task)
	if err != nil {
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		worker.metrics.ObserveTask(outcomeRejected)
		return
	}
	if err = worker.rmq.pingSequencer(task, *task.message); err != nil {
		task.taskLogger.Err(err).Msg("Got error while sending message to sequencer queue")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		worker.metrics.ObserveTask(outcomeRejected)
		return
	}
	if err = worker.rmq.acknowledgeDelivery(delivery); err != nil {
		task.taskLogger.Err(err).Msg("Failed to acknowledge delivery")
	}
	worker.metrics.ObserveTask(outcome)
	task.taskLogger.Info().Str("outcome", outcome).Msg("Finished processing RMQ message")
}

func (worker *Worker) createTask(ctx context.Context, delivery *amqp.Delivery) (*Task, error) {
	var message Message
	if err := json.Unmarshal(delivery.Body, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message, got error %w", err)
	}
	chunkTask, err := worker.redis.getChunkTask(ctx, message.RedisKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk task for message, got error %w", err)
	}
	taskLogger := worker.workerLogger.With().Str("tid", message.RedisKey).Logger()
	return &Task{
		delivery:   delivery,
		chunkTask:  chunkTask,
		redisKey:   message.RedisKey,
		message:    &message,
		taskLogger: &taskLogger,
	}, nil
}

// processTask returns the outcome to report. A non-nil error means the
// delivery must be rejected.
func (worker *Worker) processTask(ctx context.Context, task *Task) (string, error) {
	outcome, err := worker.shouldPerformTask(ctx, task)
	if err != nil {
		task.taskLogger.Err(err).
			Msg("Got error while trying to decide whether to run task")
		return "", err
	}
	if outcome != "" {
		return outcome, nil
	}
	if err = worker.redis.onTaskStarted(ctx, task); err != nil {
		task.taskLogger.Err(err).Msg("Failed to update task info")
		return "", fmt.Errorf("failed to update TaskInfo: %w", err)
	}
	if err = worker.runPipeline(ctx, task); err != nil {
		task.taskLogger.Err(err).Msg("Got error while running pipeline")
		if err = worker.redis.onTaskFailedWithError(ctx, task, err); err != nil {
			return "", err
		}
		return outcomeFailed, nil
	}
	task.taskLogger.Info().Msg("Saved results, marking task as complete")
	if err = worker.redis.onTaskComplete(ctx, task); err != nil {
		task.taskLogger.Err(err).Msg("Got error while trying to mark task as complete")
		return "", err
	}
	return outcomeCompleted, nil
}

func (worker *Worker) runPipeline(ctx context.Context, task *Task) (err error) {
	defer utils.RecoverWithError(&err)
	task.taskLogger.Info().Msgf("Processing message from RMQ, attempt # %d", task.chunkTask.TaskStatuses.POSTag.Attempts)
	data, err := worker.s3.getProcessedData(task)
	if err != nil {
		task.taskLogger.Err(err).Caller().Msg("Could not fetch text data from s3")
		return fmt.Errorf("failed fetch data from s3: %w", err)
	}
	result, err := worker.tagger.TagText(ctx, string(data))
	if err != nil {
		return fmt.Errorf("tagging failed: %w", err)
	}
	task.fingerprint = fmt.Sprintf("%016x", worker.tagger.Configuration().Fingerprint())
	task.taskLogger.Info().Msg("Finished tagging, saving results to s3")
	if err = worker.s3.saveResultsFile(task, result); err != nil {
		task.taskLogger.Err(err).Msg("Got error while trying to save results")
		return err
	}
	return nil
}

// shouldPerformTask returns an empty outcome when the task has to run.
func (worker *Worker) shouldPerformTask(ctx context.Context, task *Task) (string, error) {
	taskInfo := task.chunkTask.TaskStatuses.POSTag
	taskLogger := task.taskLogger

	if taskInfo.Status.Complete() {
		taskLogger.Info().Msg("Task is already done. (might indicate issue acking message with RMQ). Sending back to Sequencer.")
		return outcomeSkipped, nil
	}
	taskJob, err := worker.redis.getJobTask(ctx, task)
	if err != nil {
		taskLogger.Err(err).Msg("Failed to query job task for chunk task")
		return "", err
	}
	if taskJob.UserCanceled {
		taskLogger.Info().Msg("Job was canceled, no need to perform this task. Sending back to Sequencer.")
		return outcomeCanceled, worker.redis.onTaskCancelled(ctx, task)
	}
	if taskJob.StopDocumentsOnFailure {
		docTask, err := worker.redis.getDocTask(ctx, task)
		if err != nil {
			return "", err
		}
		if docTask == nil {
			return "", fmt.Errorf("document task not found")
		}
		if len(docTask.FailedTasks) > 0 {
			failedTask := docTask.FailedTasks[0]
			taskLogger.Info().Msgf("Task is not required because the \"%s\" already completed failure "+
				"and document won't be processed successfully. Sending back to Sequencer.", failedTask)
			err := worker.redis.onTaskCancelled(
				ctx,
				task,
				fmt.Sprintf(
					"Task was marked as \"%s\" because of the current document has failed "+
						"in the \"%s\" worker and won't be processed successfully.",
					tasks.TaskStatusCanceled,
					failedTask,
				),
			)
			return outcomeCanceled, err
		}
	}
	if taskInfo.Attempts >= worker.config.TaskMaxRetries {
		taskLogger.Info().Msg("POS tagging task has exceeded retries. Sending back to Sequencer.")
		return outcomeExceededRetries, worker.redis.onTaskExceededRetries(ctx, task, worker.config.TaskMaxRetries)
	}
	return "", nil
}
