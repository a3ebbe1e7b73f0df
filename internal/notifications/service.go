package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendReport sends a report via configured notification channels
func (s *Service) SendReport(ctx context.Context, report *models.SOVReport) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, report); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent report to Teams")
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent report via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(ctx context.Context, report *models.SOVReport) error {
	message := s.buildTeamsMessage(report)

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func periodTitle(period string) string {
	if period == "" {
		return ""
	}
	return strings.ToUpper(period[:1]) + period[1:]
}

func formatShare(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func formatChange(v float64) string {
	return fmt.Sprintf("%+.1f pts", v)
}

// sortedFailures lists failures by brand id so messages are stable
func sortedFailures(failures map[string]string) []string {
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%s: %s", id, failures[id]))
	}
	return lines
}

func (s *Service) buildTeamsMessage(report *models.SOVReport) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("AI Share of Voice Report - %s", periodTitle(report.Period)),
		Text:    fmt.Sprintf("Analyzed %d brands, generated %s", len(report.Brands), report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")),
	}

	if len(report.Brands) > 0 {
		facts := make([]TeamsFact, 0, len(report.Brands))
		for _, b := range report.Brands {
			value := fmt.Sprintf("%s (%s), %d mentions", formatShare(b.BrandShare), formatChange(b.ShareChange), b.TotalMentions)
			if b.CalculationMethod == models.MethodFallbackDistribution {
				value += ", estimated"
			}
			facts = append(facts, TeamsFact{Name: b.BrandName, Value: value})
		}

		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Brand Share of Voice",
			Facts:         facts,
			Markdown:      true,
		})
	}

	if len(report.Failures) > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Failed Analyses",
			ActivityText:  strings.Join(sortedFailures(report.Failures), "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(report *models.SOVReport) error {
	subject := fmt.Sprintf("AI Share of Voice Report - %s (%d brands)",
		periodTitle(report.Period), len(report.Brands))

	htmlBody, err := s.buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	textBody := s.buildEmailText(report)

	// Create message
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	// Send email
	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

const emailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>AI Share of Voice Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        table { border-collapse: collapse; margin: 20px 0; }
        th, td { border: 1px solid #ddd; padding: 8px 12px; text-align: left; }
        th { background-color: #f5f5f5; }
        .up { color: #107c10; }
        .down { color: #d13438; }
        .failures { border-left: 4px solid #d13438; padding: 10px; background-color: #fafafa; }
    </style>
</head>
<body>
    <div class="header">
        <h1>AI Share of Voice Report</h1>
        <p>{{.Period | title}} report generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    {{if .Brands}}
    <table>
        <tr><th>Brand</th><th>Share of Voice</th><th>Change</th><th>Mentions</th><th>Method</th></tr>
        {{range .Brands}}
        <tr>
            <td>{{.BrandName}}</td>
            <td>{{share .BrandShare}}</td>
            <td class="{{if ge .ShareChange 0.0}}up{{else}}down{{end}}">{{change .ShareChange}}</td>
            <td>{{.TotalMentions}}</td>
            <td>{{.CalculationMethod}}</td>
        </tr>
        {{end}}
    </table>
    {{end}}

    {{if .Failures}}
    <div class="failures">
        <h2>Failed Analyses</h2>
        {{range failures .Failures}}<p>{{.}}</p>{{end}}
    </div>
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the Brand Visibility Bot.</small></p>
</body>
</html>
`

func (s *Service) buildEmailHTML(report *models.SOVReport) (string, error) {
	// Create template with custom functions
	t := template.New("email").Funcs(template.FuncMap{
		"title":    periodTitle,
		"share":    formatShare,
		"change":   formatChange,
		"failures": sortedFailures,
	})

	t, err := t.Parse(emailTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(report *models.SOVReport) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("AI Share of Voice Report - %s\n", periodTitle(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("BRANDS\n")
	text.WriteString("======\n")
	for i, b := range report.Brands {
		text.WriteString(fmt.Sprintf("%d. %s: %s (%s), %d mentions, %s\n",
			i+1, b.BrandName, formatShare(b.BrandShare), formatChange(b.ShareChange), b.TotalMentions, b.CalculationMethod))
	}

	if len(report.Failures) > 0 {
		text.WriteString("\nFAILED ANALYSES\n")
		text.WriteString("===============\n")
		for _, line := range sortedFailures(report.Failures) {
			text.WriteString(line + "\n")
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the Brand Visibility Bot.\n")

	return text.String()
}
