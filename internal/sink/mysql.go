package sink

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/AngelCh415/marketing-datagen/internal/models"
)

const mysqlBatch = 1000

var gormModels = []any{
	&models.Channel{}, &models.Campaign{}, &models.Creative{}, &models.DailyCampaignPerformance{},
	&models.UserInstall{}, &models.UserSession{}, &models.DailyOrganicMetric{}, &models.Signal{},
}

// MySQL writes through gorm, batching inserts inside one transaction per call.
type MySQL struct {
	db *gorm.DB
}

func NewMySQL(db *gorm.DB) *MySQL { return &MySQL{db: db} }

func (m *MySQL) Migrate(ctx context.Context) error {
	db := m.db.WithContext(ctx)
	rev := make([]any, 0, len(gormModels))
	for i := len(gormModels) - 1; i >= 0; i-- {
		rev = append(rev, gormModels[i])
	}
	if err := db.Migrator().DropTable(rev...); err != nil {
		return fmt.Errorf("mysql: drop: %w", err)
	}
	if err := db.AutoMigrate(gormModels...); err != nil {
		return fmt.Errorf("mysql: migrate: %w", err)
	}
	return nil
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// create skips empty slices; gorm rejects them.
func create[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, mysqlBatch).Error
}

func (m *MySQL) tx(ctx context.Context, what string, fn func(tx *gorm.DB) error) error {
	if err := m.db.WithContext(ctx).Transaction(fn); err != nil {
		return fmt.Errorf("mysql: %s: %w", what, err)
	}
	return nil
}

func (m *MySQL) WriteChannels(ctx context.Context, rows []models.Channel) error {
	if len(rows) == 0 {
		return nil
	}
	return m.tx(ctx, "channels", func(tx *gorm.DB) error { return create(tx, rows) })
}

func (m *MySQL) WriteCampaigns(ctx context.Context, campaigns []models.Campaign, creatives []models.Creative) error {
	if len(campaigns) == 0 && len(creatives) == 0 {
		return nil
	}
	return m.tx(ctx, "campaigns", func(tx *gorm.DB) error {
		if err := create(tx, campaigns); err != nil {
			return err
		}
		return create(tx, creatives)
	})
}

func (m *MySQL) WriteUsers(ctx context.Context, users []models.UserInstall, sessions []models.UserSession) error {
	if len(users) == 0 && len(sessions) == 0 {
		return nil
	}
	return m.tx(ctx, "users", func(tx *gorm.DB) error {
		if err := create(tx, users); err != nil {
			return err
		}
		return create(tx, sessions)
	})
}

func (m *MySQL) WritePerformance(ctx context.Context, rows []models.DailyCampaignPerformance) error {
	if len(rows) == 0 {
		return nil
	}
	return m.tx(ctx, "performance", func(tx *gorm.DB) error { return create(tx, rows) })
}

func (m *MySQL) WriteOrganic(ctx context.Context, rows []models.DailyOrganicMetric) error {
	if len(rows) == 0 {
		return nil
	}
	return m.tx(ctx, "organic", func(tx *gorm.DB) error { return create(tx, rows) })
}

func (m *MySQL) WriteSignals(ctx context.Context, rows []models.Signal) error {
	if len(rows) == 0 {
		return nil
	}
	return m.tx(ctx, "signals", func(tx *gorm.DB) error { return create(tx, rows) })
}
