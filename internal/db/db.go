package db

import (
	"fmt"

	"beacon/internal/auth"
	"beacon/internal/jobs"
	"beacon/internal/project"
	"beacon/internal/subscription"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&project.Project{},
		&project.Update{},
		&project.Image{},
		&project.Link{},
		&subscription.Subscription{},
		&jobs.Job{},
		&jobs.SchedulerState{},
	); err != nil {
		return err
	}

	// Tag filter on the public timeline (GIN for text[])
	if err := gdb.Exec(`create index if not exists idx_updates_tags on updates using gin (tags);`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_updates_project_created on updates(project_id, created_at desc);`,
		`create index if not exists idx_subscriptions_project_freq on subscriptions(project_id, frequency);`,
		`create index if not exists idx_jobs_due on jobs(status, scheduled_for);`,
		`create index if not exists idx_jobs_terminal_created on jobs(status, created_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
