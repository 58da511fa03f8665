package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CustomerLookup resolves the customer to notify.
type CustomerLookup interface {
	CustomerFor(ctx context.Context, customerID string) (*models.Customer, error)
}

// PhaseNotification is the event consumed by the mail and chat senders.
type PhaseNotification struct {
	OrderID       string    `json:"order_id"`
	OrderCode     string    `json:"order_code"`
	FromStatus    string    `json:"from_status"`
	Status        string    `json:"status"`
	Label         string    `json:"label"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	ShopName      string    `json:"shop_name"`
	OrderURL      string    `json:"order_url"`
	Message       string    `json:"message"`
	WhatsAppURL   string    `json:"whatsapp_url,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

var defaultTemplate = template.Must(template.New("default").Parse(
	"Hello {{.CustomerName}}, your order {{.OrderCode}} at {{.ShopName}} is now in {{.Label}}."))

var phaseTemplates = map[workflow.Status]*template.Template{
	workflow.StatusDiagnosis: template.Must(template.New("diagnosis").Parse(
		"Hello {{.CustomerName}}, we received your equipment (order {{.OrderCode}}) and our technicians are diagnosing it.")),
	workflow.StatusAwaitingParts: template.Must(template.New("awaiting_parts").Parse(
		"Hello {{.CustomerName}}, we are waiting for spare parts for order {{.OrderCode}}. We will let you know as soon as they arrive.")),
	workflow.StatusAwaitingAcceptance: template.Must(template.New("awaiting_acceptance").Parse(
		"Hello {{.CustomerName}}, the quotation for order {{.OrderCode}} is ready: {{.OrderURL}}")),
	workflow.StatusRepair: template.Must(template.New("repair").Parse(
		"Hello {{.CustomerName}}, the repair of order {{.OrderCode}} has started.")),
	workflow.StatusDelivery: template.Must(template.New("delivery").Parse(
		"Hello {{.CustomerName}}, order {{.OrderCode}} is ready for pickup at {{.ShopName}}.")),
	workflow.StatusFinished: template.Must(template.New("finished").Parse(
		"Hello {{.CustomerName}}, order {{.OrderCode}} was delivered. Thank you for choosing {{.ShopName}}!")),
}

// WhatsAppLink builds a wa.me deep link that opens a chat with the message
// prefilled. Non-digits are stripped from the phone number.
func WhatsAppLink(phone, message string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return "https://wa.me/" + digits.String() + "?text=" + text
}

// KafkaNotifier publishes a PhaseNotification per status change. The writer
// is asynchronous so a slow broker never delays a transition.
type KafkaNotifier struct {
	writer    MessageWriter
	customers CustomerLookup
	shopName  string
	publicURL string
	logger    *zap.Logger
	now       func() time.Time
}

var _ workflow.Notifier = (*KafkaNotifier)(nil)

// NewKafkaWriter creates the asynchronous producer for the notifications topic.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Failed to deliver notifications", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
}

func NewKafkaNotifier(writer MessageWriter, customers CustomerLookup, shopName, publicURL string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{
		writer:    writer,
		customers: customers,
		shopName:  shopName,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (n *KafkaNotifier) PhaseChanged(ctx context.Context, order *models.Order, from, to workflow.State) error {
	notification, err := n.Build(ctx, order, from, to)
	if err != nil {
		return err
	}
	value, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("order.phase_changed")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	n.logger.Debug("Queued phase notification",
		zap.String("order_id", order.ID), zap.String("status", notification.Status))
	return nil
}

// Build renders the notification without sending it.
func (n *KafkaNotifier) Build(ctx context.Context, order *models.Order, from, to workflow.State) (*PhaseNotification, error) {
	notification := &PhaseNotification{
		OrderID:    order.ID,
		OrderCode:  order.Code,
		FromStatus: string(from.Status()),
		Status:     string(to.Status()),
		Label:      to.Label(),
		ShopName:   n.shopName,
		OrderURL:   n.publicURL + "/" + order.ID,
		OccurredAt: n.now(),
	}
	if n.customers != nil && order.CustomerID != "" {
		customer, err := n.customers.CustomerFor(ctx, order.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load customer: %w", err)
		}
		notification.CustomerName = customer.Name
		notification.CustomerEmail = customer.Email
		notification.CustomerPhone = customer.Phone
	}

	tmpl, ok := phaseTemplates[to.Status()]
	if !ok {
		tmpl = defaultTemplate
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, notification); err != nil {
		return nil, fmt.Errorf("failed to render notification: %w", err)
	}
	notification.Message = buf.String()
	notification.WhatsAppURL = WhatsAppLink(notification.CustomerPhone, notification.Message)
	return notification, nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier only logs, for environments without a broker.
type LogNotifier struct {
	logger *zap.Logger
}

var _ workflow.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PhaseChanged(ctx context.Context, order *models.Order, from, to workflow.State) error {
	n.logger.Info("Phase notification (not dispatched)",
		zap.String("order_id", order.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return nil
}
