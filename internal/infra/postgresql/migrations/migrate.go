package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/notifyhq/delivery-pipeline/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createNotificationsTable(),
		createServiceCallbacksTable(),
		createComplaintsTable(),
		createInboundSMSTable(),
		createCallbackAttemptsTable(),
	})

	return m.Migrate()
}

func createNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_reference ON notifications (reference) WHERE reference IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_service_status ON notifications (service_id, status)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}

func createServiceCallbacksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_service_callbacks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ServiceCallbackModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_service_callbacks_service_type ON service_callbacks (service_id, callback_type)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ServiceCallbackModel{})
		},
	}
}

func createComplaintsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_complaints",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ComplaintModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_complaints_notification_id ON complaints (notification_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ComplaintModel{})
		},
	}
}

func createInboundSMSTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_inbound_sms",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.InboundSMSModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_inbound_sms_service_id ON inbound_sms (service_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.InboundSMSModel{})
		},
	}
}

func createCallbackAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_callback_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CallbackAttemptModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_callback_attempts_target_id ON callback_attempts (target_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CallbackAttemptModel{})
		},
	}
}
