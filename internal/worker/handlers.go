package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/queue"
)

// NotificationHandlers builds the handler map covering every job type. Each
// handler validates the typed payload and hands delivery to the sender, one
// send per target channel. The template key is the job type; rendering is the
// sender's concern.
func NotificationHandlers(sender notify.Sender) map[queue.JobType]Handler {
	deliver := deliverFunc(sender)
	handlers := make(map[queue.JobType]Handler)
	for _, jobType := range []queue.JobType{
		queue.JobTicketConfirmation,
		queue.JobTicketAssigned,
		queue.JobStatusChanged,
		queue.JobNewMessage,
		queue.JobSLABreached,
		queue.JobSLAAtRisk,
		queue.JobEscalateTicket,
		queue.JobIdleTicketAlert,
		queue.JobStaleTicketAlert,
		queue.JobDailyReport,
	} {
		handlers[jobType] = deliver
	}
	return handlers
}

func deliverFunc(sender notify.Sender) Handler {
	return func(ctx context.Context, job *queue.Job) error {
		payload, err := queue.DecodePayload(job)
		if err != nil {
			return err
		}
		data, err := toMap(payload)
		if err != nil {
			return err
		}
		for _, channel := range job.Channels {
			if err := sender.Send(ctx, channel, job.Recipient, string(job.Type), data); err != nil {
				return fmt.Errorf("send %s via %s: %w", job.Type, channel, err)
			}
		}
		return nil
	}
}

func toMap(payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
