// internal/workers/medical/medical-query/handler.go
package medicalquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"interpharma-gateway/internal/common/errors"
	"interpharma-gateway/internal/common/metrics"
	"interpharma-gateway/internal/gateway"
	"interpharma-gateway/internal/models"
)

const TaskType = "medical-query"

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Answerer interface {
	Handle(ctx context.Context, req gateway.Request) (gateway.Response, error)
}

type Handler struct {
	config     *Config
	gateway    Answerer
	logger     Logger
	errHandler *errors.JobErrorHandler
}

func NewHandler(config *Config, gw Answerer, log Logger) *Handler {
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		gateway:    gw,
		logger:     log,
		errHandler: errors.NewJobErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return h.fail(ctx, client, job, errors.NewInvalidInputError("parse variables: "+err.Error()), start)
	}
	if input.ClientID == "" {
		input.ClientID = fmt.Sprintf("process-%d", job.ProcessInstanceKey)
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		return h.fail(ctx, client, job, err, start)
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		return h.fail(ctx, client, job, errors.NewInternalError(err), start)
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.Key,
		"model":   string(output.Answer.ModelLabel),
		"blocked": output.Blocked,
	})
	return nil
}

// Execute answers one query. A rate-limited query becomes a RATE_LIMITED error
// so the process model can branch on it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	persona := models.Persona(strings.TrimSpace(input.Persona))
	if persona == "" {
		persona = models.PersonaPharmaChat
	}
	if !persona.Valid() {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unknown persona %q", input.Persona))
	}

	q, err := models.NewQuery(input.Message, input.Mode, input.Language)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	if persona == models.PersonaReport {
		q = q.WithReport(models.ReportDetails{
			Disease:   input.Disease,
			Region:    input.Region,
			TimeRange: input.TimeRange,
		})
	}

	clientID := input.ClientID
	if clientID == "" {
		clientID = "workflow"
	}

	resp, err := h.gateway.Handle(ctx, gateway.Request{
		RequestID: uuid.NewString(),
		ClientID:  clientID,
		Persona:   persona,
		Query:     q,
	})
	if err != nil {
		return nil, err
	}
	if resp.RateLimited {
		return nil, errors.NewRateLimitedError(clientID, resp.RetryAfter)
	}

	return &Output{Answer: resp.Answer, Blocked: !resp.Verdict.Allowed}, nil
}

// fail reports on a fresh context so a spent job deadline does not swallow the report.
func (h *Handler) fail(_ context.Context, client worker.JobClient, job entities.Job, err error, start time.Time) error {
	stdErr := errors.AsStandard(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.errHandler.HandleJobError(context.Background(), client, job, stdErr)
	return nil
}
