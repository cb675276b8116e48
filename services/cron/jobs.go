package cron

import (
	"log"
	"time"

	"github.com/primeshots/api/model"
)

// StalePendingAge is how long a purchase may sit in pending before the
// checkout is considered abandoned
const StalePendingAge = 24 * time.Hour

// FailStalePendingPurchases transitions abandoned checkouts to failed. The
// conditional status filter means a purchase completing concurrently is left
// alone.
func (m *CronManager) FailStalePendingPurchases() {
	cutoff := time.Now().Add(-StalePendingAge)

	result := m.db.
		Model(&model.Purchase{}).
		Where("status = ? AND created_at < ?", model.PurchaseStatusPending, cutoff).
		Update("status", model.PurchaseStatusFailed)
	if result.Error != nil {
		log.Println("[CRON] failed to expire stale pending purchases:", result.Error)
		return
	}

	if result.RowsAffected > 0 {
		log.Printf("[CRON] marked %d stale pending purchases as failed", result.RowsAffected)
	}
}

// ReportExpiredTokens logs how many minted tokens lapsed unredeemed. Tokens
// are never deleted; this is observability only.
func (m *CronManager) ReportExpiredTokens() {
	var count int64
	err := m.db.
		Model(&model.DownloadToken{}).
		Where("used = ? AND expires_at < ?", false, time.Now()).
		Count(&count).Error
	if err != nil {
		log.Println("[CRON] failed to count expired tokens:", err)
		return
	}

	log.Printf("[CRON] %d download tokens expired unredeemed", count)
}
