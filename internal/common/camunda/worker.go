package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"interpharma-gateway/internal/common/config"
	"interpharma-gateway/internal/common/logger"
)

// JobHandler reports job outcomes to the broker itself; a returned error is
// only logged.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

func StartWorker(client zbc.Client, taskType string, wc config.WorkerConfig, handler JobHandler, log logger.Logger) *Worker {
	log = log.With(map[string]interface{}{"taskType": taskType})

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			if err := handler.Handle(jc, job); err != nil {
				log.Error("handler returned error", map[string]interface{}{
					"jobKey": job.Key,
					"error":  err.Error(),
				})
			}
		}).
		MaxJobsActive(wc.MaxJobsActive).
		Timeout(time.Duration(wc.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wc.MaxJobsActive,
		"timeoutMs":     wc.Timeout,
	})
	return &Worker{worker: jobWorker, logger: log, taskType: taskType}
}

// Stop closes the job stream and waits for in-flight handlers.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
