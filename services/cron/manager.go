package cron

import (
	"log"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron *cron.Cron
	db   *gorm.DB
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron: c,
		db:   db,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Every 30 minutes: fail purchases stuck in pending (abandoned checkouts)
	_, err := m.cron.AddFunc("0 */30 * * * *", func() {
		log.Println("[CRON] Running: fail_stale_pending_purchases")
		m.FailStalePendingPurchases()
	})
	if err != nil {
		return err
	}

	// Daily at 02:00: report expired-unused download tokens
	_, err = m.cron.AddFunc("0 0 2 * * *", func() {
		log.Println("[CRON] Running: report_expired_tokens")
		m.ReportExpiredTokens()
	})
	if err != nil {
		return err
	}

	return nil
}
