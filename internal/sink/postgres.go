package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/AngelCh415/marketing-datagen/internal/models"
)

// Postgres bulk loads rows with COPY, one transaction per Write call.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, DropSchema); err != nil {
		return fmt.Errorf("postgres: drop: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) write(ctx context.Context, batches ...batch) error {
	empty := true
	for _, b := range batches {
		if len(b.rows) > 0 {
			empty = false
		}
	}
	if empty {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	for _, b := range batches {
		if len(b.rows) == 0 {
			continue
		}
		if err := copyIn(ctx, tx, b); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func copyIn(ctx context.Context, tx *sql.Tx, b batch) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(b.t.name, b.t.columns...))
	if err != nil {
		return fmt.Errorf("postgres: copy %s: %w", b.t.name, err)
	}
	defer stmt.Close()
	for _, r := range b.rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return fmt.Errorf("postgres: copy %s: %w", b.t.name, err)
		}
	}
	// flush
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("postgres: copy %s: %w", b.t.name, err)
	}
	return nil
}

func (p *Postgres) WriteChannels(ctx context.Context, rows []models.Channel) error {
	return p.write(ctx, batch{channelsTable, rowsOf(rows, channelRow)})
}

func (p *Postgres) WriteCampaigns(ctx context.Context, campaigns []models.Campaign, creatives []models.Creative) error {
	return p.write(ctx,
		batch{campaignsTable, rowsOf(campaigns, campaignRow)},
		batch{creativesTable, rowsOf(creatives, creativeRow)},
	)
}

func (p *Postgres) WriteUsers(ctx context.Context, users []models.UserInstall, sessions []models.UserSession) error {
	return p.write(ctx,
		batch{usersTable, rowsOf(users, userRow)},
		batch{sessionsTable, rowsOf(sessions, sessionRow)},
	)
}

func (p *Postgres) WritePerformance(ctx context.Context, rows []models.DailyCampaignPerformance) error {
	return p.write(ctx, batch{performanceTable, rowsOf(rows, performanceRow)})
}

func (p *Postgres) WriteOrganic(ctx context.Context, rows []models.DailyOrganicMetric) error {
	return p.write(ctx, batch{organicTable, rowsOf(rows, organicRow)})
}

func (p *Postgres) WriteSignals(ctx context.Context, rows []models.Signal) error {
	return p.write(ctx, batch{signalsTable, rowsOf(rows, signalRow)})
}
