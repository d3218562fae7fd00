package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bvinc/go-sqlite-lite/sqlite3"

	"github.com/AngelCh415/marketing-datagen/internal/models"
)

// SQLite writes the dataset to a single database file. Each Write call runs
// in one transaction with one prepared insert per table.
type SQLite struct {
	conn *sqlite3.Conn
}

func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
	}
	conn, err := sqlite3.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	return &SQLite{conn: conn}, nil
}

// Conn exposes the connection for read-side queries.
func (s *SQLite) Conn() *sqlite3.Conn { return s.conn }

// Migrate drops and recreates every table.
func (s *SQLite) Migrate(_ context.Context) error {
	if err := s.conn.Exec(DropSchema); err != nil {
		return fmt.Errorf("sqlite: drop: %w", err)
	}
	if err := s.conn.Exec(Schema); err != nil {
		return fmt.Errorf("sqlite: schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.conn.Close() }

func insertSQL(t table) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	return fmt.Sprintf("insert into %s(%s) values (%s)", t.name, strings.Join(t.columns, ", "), marks)
}

type batch struct {
	t    table
	rows [][]any
}

func (s *SQLite) write(batches ...batch) error {
	return s.conn.WithTx(func() error {
		for _, b := range batches {
			if len(b.rows) == 0 {
				continue
			}
			if err := s.insert(b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) insert(b batch) error {
	stmt, err := s.conn.Prepare(insertSQL(b.t))
	if err != nil {
		return fmt.Errorf("sqlite: prepare %s: %w", b.t.name, err)
	}
	defer stmt.Close()
	for _, r := range b.rows {
		if err := stmt.Exec(sqliteValues(r)...); err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", b.t.name, err)
		}
	}
	return nil
}

// sqliteValues maps values the driver cannot bind onto sqlite storage classes.
func sqliteValues(r []any) []any {
	out := make([]any, len(r))
	for i, v := range r {
		switch x := v.(type) {
		case time.Time:
			out[i] = x.UTC().Format(time.RFC3339)
		case bool:
			if x {
				out[i] = 1
			} else {
				out[i] = 0
			}
		default:
			out[i] = v
		}
	}
	return out
}

func (s *SQLite) WriteChannels(_ context.Context, rows []models.Channel) error {
	return s.write(batch{channelsTable, rowsOf(rows, channelRow)})
}

func (s *SQLite) WriteCampaigns(_ context.Context, campaigns []models.Campaign, creatives []models.Creative) error {
	return s.write(
		batch{campaignsTable, rowsOf(campaigns, campaignRow)},
		batch{creativesTable, rowsOf(creatives, creativeRow)},
	)
}

func (s *SQLite) WriteUsers(_ context.Context, users []models.UserInstall, sessions []models.UserSession) error {
	return s.write(
		batch{usersTable, rowsOf(users, userRow)},
		batch{sessionsTable, rowsOf(sessions, sessionRow)},
	)
}

func (s *SQLite) WritePerformance(_ context.Context, rows []models.DailyCampaignPerformance) error {
	return s.write(batch{performanceTable, rowsOf(rows, performanceRow)})
}

func (s *SQLite) WriteOrganic(_ context.Context, rows []models.DailyOrganicMetric) error {
	return s.write(batch{organicTable, rowsOf(rows, organicRow)})
}

func (s *SQLite) WriteSignals(_ context.Context, rows []models.Signal) error {
	return s.write(batch{signalsTable, rowsOf(rows, signalRow)})
}

// DailyInstalls returns paid, organic and user install totals per day, the
// figures the conservation property compares.
func (s *SQLite) DailyInstalls() (map[int][3]int, error) {
	out := map[int][3]int{}
	queries := []string{
		`select day, sum(installs) from daily_campaign_performance group by day`,
		`select day, organic_installs from daily_organic_metrics`,
		`select install_day, count(*) from user_installs group by install_day`,
	}
	for col, q := range queries {
		stmt, err := s.conn.Prepare(q)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		for {
			hasRow, err := stmt.Step()
			if err != nil {
				stmt.Close()
				return nil, fmt.Errorf("sqlite: %w", err)
			}
			if !hasRow {
				break
			}
			var day, n int
			if err := stmt.Scan(&day, &n); err != nil {
				stmt.Close()
				return nil, fmt.Errorf("sqlite: %w", err)
			}
			v := out[day]
			v[col] = n
			out[day] = v
		}
		stmt.Close()
	}
	return out, nil
}
