package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"time"

	"dbguardian/internal/logging"
)

// AlertSeverity grades an alert
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertType classifies what an alert is about
type AlertType string

const (
	AlertTypeBackupCompleted  AlertType = "backup_completed"
	AlertTypeBackupFailed     AlertType = "backup_failed"
	AlertTypeRestoreCompleted AlertType = "restore_completed"
	AlertTypeRestoreFailed    AlertType = "restore_failed"
	AlertTypeRolledBack       AlertType = "rolled_back"
	AlertTypeRollbackFailed   AlertType = "rollback_failed"
)

// Alert describes one operation outcome worth telling an operator about
type Alert struct {
	ID        string                 `json:"id"`
	Type      AlertType              `json:"type"`
	Severity  AlertSeverity          `json:"severity"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AlertForOperation builds the alert describing a finished operation
func AlertForOperation(op *Operation) Alert {
	alert := Alert{
		ID:        op.ID,
		Timestamp: time.Now().UTC(),
		Metadata: map[string]interface{}{
			"database": op.Database.Database,
			"kind":     string(op.Kind),
			"status":   string(op.Status),
		},
	}
	if op.SafetyBackupID != "" {
		alert.Metadata["safety_backup_id"] = op.SafetyBackupID
	}

	switch {
	case op.Kind == KindBackup && op.Status == StatusCompleted:
		alert.Type = AlertTypeBackupCompleted
		alert.Severity = AlertSeverityInfo
		alert.Title = fmt.Sprintf("Backup of %s completed", op.Database.Database)
		alert.Message = fmt.Sprintf("Artifact stored at %s", op.StorageLocation)
	case op.Kind == KindBackup:
		alert.Type = AlertTypeBackupFailed
		alert.Severity = AlertSeverityWarning
		alert.Title = fmt.Sprintf("Backup of %s failed", op.Database.Database)
		alert.Message = op.ErrorMessage
	case op.Status == StatusCompleted:
		alert.Type = AlertTypeRestoreCompleted
		alert.Severity = AlertSeverityInfo
		alert.Title = fmt.Sprintf("Restore of %s completed", op.Database.Database)
		alert.Message = fmt.Sprintf("Restored from %s", op.SourceBackupID)
	case op.Status == StatusRolledBack:
		alert.Type = AlertTypeRolledBack
		alert.Severity = AlertSeverityWarning
		alert.Title = fmt.Sprintf("Restore of %s failed and was rolled back", op.Database.Database)
		alert.Message = fmt.Sprintf("Reverted to safety backup %s: %s", op.SafetyBackupID, op.ErrorMessage)
	default:
		alert.Type = AlertTypeRestoreFailed
		alert.Severity = AlertSeverityCritical
		alert.Title = fmt.Sprintf("Restore of %s failed", op.Database.Database)
		alert.Message = op.ErrorMessage
	}
	return alert
}

// NotificationConfig holds configuration for notifications
type NotificationConfig struct {
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Email   *EmailConfig   `json:"email,omitempty" yaml:"email,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	Slack   *SlackConfig   `json:"slack,omitempty" yaml:"slack,omitempty"`
	File    *FileConfig    `json:"file,omitempty" yaml:"file,omitempty"`
	// MinSeverity filters out alerts below the threshold; empty allows all
	MinSeverity AlertSeverity `json:"min_severity" yaml:"min_severity"`
}

// EmailConfig for email notifications
type EmailConfig struct {
	SMTPHost string   `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort int      `json:"smtp_port" yaml:"smtp_port"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"-" yaml:"password"`
	From     string   `json:"from" yaml:"from"`
	To       []string `json:"to" yaml:"to"`
	Subject  string   `json:"subject" yaml:"subject"`
}

// WebhookConfig for generic webhook notifications
type WebhookConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method" yaml:"method"`
	Headers map[string]string `json:"headers" yaml:"headers"`
	Timeout time.Duration     `json:"timeout" yaml:"timeout"`
}

// SlackConfig for Slack notifications
type SlackConfig struct {
	WebhookURL string `json:"-" yaml:"webhook_url"`
	Channel    string `json:"channel" yaml:"channel"`
	Username   string `json:"username" yaml:"username"`
}

// FileConfig appends alerts to a local file
type FileConfig struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format" yaml:"format"` // json, text
}

// NotificationChannel delivers an alert through one transport
type NotificationChannel interface {
	Send(ctx context.Context, alert Alert) error
	GetType() string
	IsEnabled() bool
}

// NotificationManager fans alerts out to all configured channels
type NotificationManager struct {
	logger   *logging.Logger
	config   NotificationConfig
	channels []NotificationChannel
}

// NewNotificationManager creates a manager with channels built from config
func NewNotificationManager(logger *logging.Logger, config NotificationConfig) *NotificationManager {
	nm := &NotificationManager{
		logger:   logger,
		config:   config,
		channels: make([]NotificationChannel, 0),
	}
	if config.Email != nil {
		nm.channels = append(nm.channels, NewEmailChannel(logger, *config.Email))
	}
	if config.Webhook != nil {
		nm.channels = append(nm.channels, NewWebhookChannel(logger, *config.Webhook))
	}
	if config.Slack != nil {
		nm.channels = append(nm.channels, NewSlackChannel(logger, *config.Slack))
	}
	if config.File != nil {
		nm.channels = append(nm.channels, NewFileChannel(logger, *config.File))
	}
	return nm
}

// Notify sends an alert through all enabled channels. A channel failure is
// logged but only reported as an error when every channel failed.
func (nm *NotificationManager) Notify(ctx context.Context, alert Alert) error {
	if !nm.config.Enabled {
		return nil
	}
	if !severityMeetsThreshold(alert.Severity, nm.config.MinSeverity) {
		nm.logger.WithFields(map[string]interface{}{
			"alert_id": alert.ID,
			"severity": string(alert.Severity),
		}).Debug("alert below severity threshold, not sending")
		return nil
	}

	var failures []string
	sent := 0
	for _, channel := range nm.channels {
		if !channel.IsEnabled() {
			continue
		}
		if err := channel.Send(ctx, alert); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", channel.GetType(), err))
			nm.logger.WithFields(map[string]interface{}{
				"channel":  channel.GetType(),
				"alert_id": alert.ID,
				"error":    err.Error(),
			}).Error("failed to send notification")
			continue
		}
		sent++
	}
	if len(failures) > 0 && sent == 0 {
		return fmt.Errorf("all notification channels failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

func severityMeetsThreshold(severity, min AlertSeverity) bool {
	levels := map[AlertSeverity]int{
		AlertSeverityInfo:     1,
		AlertSeverityWarning:  2,
		AlertSeverityCritical: 3,
	}
	level, ok := levels[severity]
	if !ok {
		return false
	}
	minLevel, ok := levels[min]
	if !ok {
		return true
	}
	return level >= minLevel
}

func severityColor(severity AlertSeverity) (color, emoji string) {
	switch severity {
	case AlertSeverityWarning:
		return "#ff9900", ":warning:"
	case AlertSeverityCritical:
		return "#ff0000", ":rotating_light:"
	default:
		return "#36a64f", ":information_source:"
	}
}

// EmailChannel implements email notifications
type EmailChannel struct {
	logger *logging.Logger
	config EmailConfig
}

// NewEmailChannel creates a new email notification channel
func NewEmailChannel(logger *logging.Logger, config EmailConfig) *EmailChannel {
	return &EmailChannel{logger: logger, config: config}
}

// Send sends an email notification
func (ec *EmailChannel) Send(ctx context.Context, alert Alert) error {
	if !ec.IsEnabled() {
		return fmt.Errorf("email configuration incomplete")
	}

	subject := ec.config.Subject
	if subject == "" {
		subject = fmt.Sprintf("dbguardian alert: %s", alert.Title)
	}

	body := fmt.Sprintf(`dbguardian alert

Operation: %s
Type: %s
Severity: %s
Time: %s

%s

%s
`, alert.ID, alert.Type, alert.Severity, alert.Timestamp.Format(time.RFC3339), alert.Title, alert.Message)

	message := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s",
		strings.Join(ec.config.To, ","), subject, body)

	auth := smtp.PlainAuth("", ec.config.Username, ec.config.Password, ec.config.SMTPHost)
	addr := fmt.Sprintf("%s:%d", ec.config.SMTPHost, ec.config.SMTPPort)
	if err := smtp.SendMail(addr, auth, ec.config.From, ec.config.To, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// GetType returns the channel type
func (ec *EmailChannel) GetType() string { return "email" }

// IsEnabled checks if the channel is enabled
func (ec *EmailChannel) IsEnabled() bool {
	return ec.config.SMTPHost != "" && len(ec.config.To) > 0
}

// WebhookChannel implements generic webhook notifications
type WebhookChannel struct {
	logger *logging.Logger
	config WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a new webhook notification channel
func NewWebhookChannel(logger *logging.Logger, config WebhookConfig) *WebhookChannel {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebhookChannel{
		logger: logger,
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts the alert as JSON to the configured endpoint
func (wc *WebhookChannel) Send(ctx context.Context, alert Alert) error {
	if wc.config.URL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	method := wc.config.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, wc.config.URL, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range wc.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// GetType returns the channel type
func (wc *WebhookChannel) GetType() string { return "webhook" }

// IsEnabled checks if the channel is enabled
func (wc *WebhookChannel) IsEnabled() bool { return wc.config.URL != "" }

// SlackChannel implements Slack notifications
type SlackChannel struct {
	logger *logging.Logger
	config SlackConfig
	client *http.Client
}

// NewSlackChannel creates a new Slack notification channel
func NewSlackChannel(logger *logging.Logger, config SlackConfig) *SlackChannel {
	return &SlackChannel{
		logger: logger,
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts the alert to a Slack incoming webhook
func (sc *SlackChannel) Send(ctx context.Context, alert Alert) error {
	if sc.config.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	color, emoji := severityColor(alert.Severity)
	payload := map[string]interface{}{
		"text": fmt.Sprintf("%s %s", emoji, alert.Title),
		"attachments": []map[string]interface{}{
			{
				"color":     color,
				"title":     alert.Title,
				"text":      alert.Message,
				"timestamp": alert.Timestamp.Unix(),
				"fields": []map[string]interface{}{
					{"title": "Operation", "value": alert.ID, "short": true},
					{"title": "Type", "value": string(alert.Type), "short": true},
					{"title": "Severity", "value": string(alert.Severity), "short": true},
				},
			},
		},
	}
	if sc.config.Channel != "" {
		payload["channel"] = sc.config.Channel
	}
	if sc.config.Username != "" {
		payload["username"] = sc.config.Username
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.config.WebhookURL, strings.NewReader(string(jsonPayload)))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack returned error status: %d", resp.StatusCode)
	}
	return nil
}

// GetType returns the channel type
func (sc *SlackChannel) GetType() string { return "slack" }

// IsEnabled checks if the channel is enabled
func (sc *SlackChannel) IsEnabled() bool { return sc.config.WebhookURL != "" }

// FileChannel appends alerts to a local file
type FileChannel struct {
	logger *logging.Logger
	config FileConfig
}

// NewFileChannel creates a new file notification channel
func NewFileChannel(logger *logging.Logger, config FileConfig) *FileChannel {
	return &FileChannel{logger: logger, config: config}
}

// Send appends the alert to the configured file
func (fc *FileChannel) Send(ctx context.Context, alert Alert) error {
	if fc.config.Path == "" {
		return fmt.Errorf("file path not configured")
	}

	var content string
	switch fc.config.Format {
	case "json":
		jsonData, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		content = string(jsonData) + "\n"
	default:
		content = fmt.Sprintf("[%s] %s - %s: %s\n",
			alert.Timestamp.Format(time.RFC3339), alert.Severity, alert.Type, alert.Title)
	}

	file, err := os.OpenFile(fc.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open notification file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// GetType returns the channel type
func (fc *FileChannel) GetType() string { return "file" }

// IsEnabled checks if the channel is enabled
func (fc *FileChannel) IsEnabled() bool { return fc.config.Path != "" }
