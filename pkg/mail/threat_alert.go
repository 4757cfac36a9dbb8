package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/sentinelai/sentinel-engine/pkg/models"
)

// ProductName appears in alert subjects and bodies.
const ProductName = "SentinelAI X"

// DetectedAtLayout formats the detected-at timestamp in alert bodies.
const DetectedAtLayout = "2006-01-02 15:04:05"

//go:embed templates/*.html
var templateFS embed.FS

var threatAlertTemplate = template.Must(template.ParseFS(templateFS, "templates/threat_alert.html"))

// threatAlertView is the data the alert templates render.
type threatAlertView struct {
	Product        string
	Type           string
	Severity       string
	Status         string
	SourceIP       string
	Classification string
	Description    string
	DetectedAt     string
}

func newThreatAlertView(t *models.Threat) threatAlertView {
	v := threatAlertView{
		Product:     ProductName,
		Type:        t.Type,
		Severity:    fmt.Sprintf("%d/10", t.Severity),
		Status:      t.Status,
		Description: t.Description,
		DetectedAt:  "-",
	}
	if t.SourceIP != nil {
		v.SourceIP = *t.SourceIP
	}
	if t.Classification != nil {
		v.Classification = *t.Classification
	}
	if !t.DetectedAt.IsZero() {
		v.DetectedAt = t.DetectedAt.Format(DetectedAtLayout)
	}
	return v
}

// ThreatAlertSubject returns the subject line for a threat alert.
func ThreatAlertSubject(t *models.Threat) string {
	return fmt.Sprintf("[%s] Threat alert: %s (severity %d/10)", ProductName, t.Type, t.Severity)
}

// RenderThreatAlert renders the alert message for t addressed to to.
func RenderThreatAlert(t *models.Threat, to []string) (*Message, error) {
	view := newThreatAlertView(t)

	var html bytes.Buffer
	if err := threatAlertTemplate.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render threat alert: %w", err)
	}

	return &Message{
		To:       to,
		Subject:  ThreatAlertSubject(t),
		HTMLBody: html.String(),
		TextBody: renderThreatAlertText(view),
	}, nil
}

func renderThreatAlertText(v threatAlertView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A high-severity threat has been recorded in %s.\n\n", v.Product)
	fmt.Fprintf(&b, "Type: %s\n", v.Type)
	fmt.Fprintf(&b, "Severity: %s\n", v.Severity)
	fmt.Fprintf(&b, "Status: %s\n", v.Status)
	if v.SourceIP != "" {
		fmt.Fprintf(&b, "Source IP: %s\n", v.SourceIP)
	}
	if v.Classification != "" {
		fmt.Fprintf(&b, "Classification: %s\n", v.Classification)
	}
	fmt.Fprintf(&b, "Description: %s\n", v.Description)
	fmt.Fprintf(&b, "Detected at: %s\n", v.DetectedAt)
	return b.String()
}
