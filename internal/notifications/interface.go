package notifications

import (
	"context"

	"github.com/azure/brand-visibility-bot/internal/models"
)

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendReport(ctx context.Context, report *models.SOVReport) error
}
