package notifyhumanattention

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	awsclient "nlu-memory-assistant/internal/common/aws"
	apperrors "nlu-memory-assistant/internal/common/errors"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/metrics"
	"nlu-memory-assistant/internal/models"
)

const (
	TaskType = "notify-human-attention"
)

var (
	ErrEscalationSendFailed = errors.New("ESCALATION_SEND_FAILED")
)

func init() {
	apperrors.RegisterSentinel(ErrEscalationSendFailed, apperrors.ErrCodeEscalationSendFailed)
}

var defaultTemplate = models.NotificationTemplate{
	Subject: "Customer needs attention: {{intent}} ({{urgency}})",
	Body: "User {{userId}} in conversation {{conversationId}} needs a human.\n" +
		"Intent: {{intent}} ({{confidence}})\nEmotional state: {{emotion}}\n" +
		"Products: {{products}}\n\nMessage:\n{{message}}\n",
}

type Handler struct {
	config   *Config
	ses      awsclient.SESAPI
	sns      awsclient.SNSAPI
	template models.NotificationTemplate
	logger   logger.Logger
}

// NewHandler takes nil clients for disabled channels.
func NewHandler(config *Config, ses awsclient.SESAPI, sns awsclient.SNSAPI, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		ses:      ses,
		sns:      sns,
		template: defaultTemplate,
		logger:   log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute sends on every enabled channel. Send failures are reported in the
// output and logged; only a nil input is an error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: input is required", ErrEscalationSendFailed)
	}

	if !h.config.Enabled || !input.Insights.RequiresHumanAttention {
		return &Output{Status: models.NotificationDisabled, Notifications: []models.Notification{}}, nil
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	data := h.templateData(input)
	subject := renderTemplate(h.template.Subject, data)
	body := renderTemplate(h.template.Body, data)

	out := &Output{Status: models.NotificationDisabled, Notifications: []models.Notification{}}

	if h.config.EmailEnabled && h.ses != nil && len(h.config.To) > 0 {
		_, err := h.ses.SendEmail(ctx, awsclient.EmailInput(h.config.FromEmail, h.config.To, subject, body, h.template.HTMLBody))
		out.Notifications = append(out.Notifications, h.record(input, models.ChannelEmail, data, err))
	}

	if h.config.SNSEnabled && h.sns != nil && h.config.TopicARN != "" {
		attrs := map[string]string{
			"intent":  input.Insights.CustomerIntent,
			"urgency": input.Insights.UrgencyLevel,
		}
		_, err := h.sns.Publish(ctx, awsclient.TopicMessage(h.config.TopicARN, subject, body, attrs))
		out.Notifications = append(out.Notifications, h.record(input, models.ChannelSNS, data, err))
	}

	for _, n := range out.Notifications {
		if n.Status == models.NotificationFailed {
			out.Status = models.NotificationFailed
			break
		}
		out.Status = models.NotificationSent
	}

	return out, nil
}

func (h *Handler) record(input *Input, channel string, data map[string]interface{}, err error) models.Notification {
	now := time.Now().UTC().Format(time.RFC3339)
	n := models.Notification{
		ID:             uuid.New().String(),
		UserID:         input.UserID,
		ConversationID: input.ConversationID,
		Channel:        channel,
		Status:         models.NotificationSent,
		Reason:         fmt.Sprintf("%v", data["intent"]),
		Payload:        data,
		CreatedAt:      now,
	}

	if err != nil {
		n.Status = models.NotificationFailed
		wrapped := fmt.Errorf("%w: %v", ErrEscalationSendFailed, err)
		h.logger.Error("escalation send failed", map[string]interface{}{
			"channel":        channel,
			"conversationId": input.ConversationID,
			"error":          wrapped.Error(),
		})
		metrics.EscalationsTotal.WithLabelValues(channel, "failed").Inc()
		return n
	}

	n.SentAt = now
	metrics.EscalationsTotal.WithLabelValues(channel, "sent").Inc()
	h.logger.Info("escalation sent", map[string]interface{}{
		"channel":        channel,
		"conversationId": input.ConversationID,
		"notificationId": n.ID,
	})
	return n
}

func (h *Handler) templateData(input *Input) map[string]interface{} {
	ins := input.Insights
	return map[string]interface{}{
		"userId":         input.UserID,
		"conversationId": input.ConversationID,
		"message":        input.Message,
		"intent":         ins.CustomerIntent,
		"confidence":     fmt.Sprintf("%.2f", ins.IntentConfidence),
		"urgency":        ins.UrgencyLevel,
		"emotion":        ins.EmotionalState,
		"products":       strings.Join(ins.ProductInterest, ", "),
	}
}

// renderTemplate substitutes {{key}} placeholders and drops unknown ones.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
