package notifier

import (
	"fmt"
	"strings"

	"github.com/alertline/alertline/internal/types"
)

// Plain-text renderings shared by the channels that take a title and a body.

func alertTitle(alert types.Alert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Message)
}

func alertBody(alert types.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Type: %s\nSource: %s\nEnvironment: %s\nSeverity: %s\nAlert ID: %s",
		alert.Type, alert.Source, alert.Environment, alert.Severity, alert.ID)
	if len(alert.RelatedEntities) > 0 {
		fmt.Fprintf(&b, "\nRelated: %s", strings.Join(alert.RelatedEntities, ", "))
	}
	return b.String()
}

func resolutionTitle(alert types.Alert) string {
	return "[RESOLVED] " + alert.Message
}

func resolutionBody(alert types.Alert) string {
	body := "Alert has been resolved at " + resolvedAt(alert)
	if alert.ResolutionMessage != nil && *alert.ResolutionMessage != "" {
		body += "\nResolution: " + *alert.ResolutionMessage
	}
	return body + "\nAlert ID: " + alert.ID
}
