// Package export pushes daily metric rollups to an external HTTP sink.
// Each request body is a JSON array of metrics signed with HMAC-SHA256 in
// the X-Signature header.
package export

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/config"
	"github.com/AngelCh415/marketing-datagen/internal/metrics"
	"github.com/AngelCh415/marketing-datagen/internal/utils"
)

var ErrNotConfigured = errors.New("sink not configured")

const SignatureHeader = "X-Signature"

type Exporter struct {
	c      HTTPClient
	svc    *metrics.Service
	log    *slog.Logger
	url    string
	secret string
	bo     utils.Backoff
}

func NewExporter(c HTTPClient, svc *metrics.Service, log *slog.Logger, cfg config.Config) *Exporter {
	return &Exporter{
		c:      c,
		svc:    svc,
		log:    log,
		url:    cfg.SinkURL,
		secret: cfg.SinkSecret,
		bo:     utils.NewBackoff(cfg.ExportBackoff, cfg.ExportRetries),
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ExportDay posts the rollups of one day and returns how many rows were
// sent. A day without rows sends nothing.
func (e *Exporter) ExportDay(ctx context.Context, date time.Time) (int, error) {
	if e.url == "" || e.secret == "" {
		return 0, ErrNotConfigured
	}
	rows := e.svc.Daily(dayUTC(date))
	if len(rows) == 0 {
		return 0, nil
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return 0, err
	}
	headers := map[string]string{SignatureHeader: Sign(e.secret, b)}

	err = e.bo.Do(ctx, func(i int) error {
		err := postJSON(ctx, e.c, e.url, b, headers)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return utils.Permanent(err)
		}
		if err != nil {
			e.log.Warn("export attempt failed", "date", date.Format("2006-01-02"), "attempt", i+1, "err", err)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", date.Format("2006-01-02"), err)
	}
	e.log.Info("export complete", "date", date.Format("2006-01-02"), "rows", len(rows))
	return len(rows), nil
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
