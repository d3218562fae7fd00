package sink

import (
	"github.com/AngelCh415/marketing-datagen/internal/models"
)

// table is a column layout shared by every SQL dialect. Row converters
// return values in column order.
type table struct {
	name    string
	columns []string
}

var (
	channelsTable = table{"channels", []string{
		"id", "name", "display_name", "base_cpi", "cpi_min", "cpi_max", "cpi_variance", "daily_volume",
		"weekend_multiplier", "quality_score", "ltv_multiplier", "fatigue_days", "fatigue_decay_rate",
	}}
	campaignsTable = table{"campaigns", []string{
		"id", "channel_id", "channel", "name", "start_day", "end_day", "start_date", "end_date",
		"daily_budget", "target_budget", "base_ctr", "base_cvr", "status",
	}}
	creativesTable = table{"creatives", []string{
		"id", "campaign_id", "name", "format", "start_day", "fatigue_onset", "performance_score",
	}}
	performanceTable = table{"daily_campaign_performance", []string{
		"id", "campaign_id", "channel_id", "day", "date", "spend", "impressions", "clicks", "installs",
		"cpi", "ctr", "cvr", "fatigue_factor", "retention_d1", "retention_d7", "revenue", "roas",
	}}
	usersTable = table{"user_installs", []string{
		"user_id", "install_day", "install_date", "source", "channel_id", "channel", "campaign_id", "creative_id",
		"device", "country", "segment", "is_payer", "session_count", "session_count_7d", "session_count_30d",
		"d1_active", "d7_active", "d30_active", "ltv", "ltv_7d", "ltv_30d", "is_churned", "churn_day",
	}}
	sessionsTable = table{"user_sessions", []string{
		"session_id", "user_id", "day", "day_offset", "started_at", "duration_seconds", "engagement_score", "revenue",
	}}
	organicTable = table{"daily_organic_metrics", []string{
		"day", "date", "organic_installs", "app_store_rank", "app_store_rating", "app_store_reviews",
		"social_mentions", "sentiment_score", "paid_halo_contribution",
	}}
	signalsTable = table{"signals", []string{
		"id", "event_name", "kind", "channel", "day", "date", "metric", "baseline", "observed", "change_pct",
		"z_score", "severity", "title", "description", "recommended_action", "confidence", "priority_score",
		"predicted_impact", "dismissed",
	}}
)

// Tables lists every generated table in dependency order.
var Tables = []string{
	channelsTable.name, campaignsTable.name, creativesTable.name, performanceTable.name,
	usersTable.name, sessionsTable.name, organicTable.name, signalsTable.name,
}

func channelRow(c models.Channel) []any {
	return []any{c.ID, c.Name, c.DisplayName, c.BaseCPI, c.CPIMin, c.CPIMax, c.CPIVariance, c.DailyVolume,
		c.WeekendMultiplier, c.QualityScore, c.LTVMultiplier, c.FatigueDays, c.FatigueDecayRate}
}

func campaignRow(c models.Campaign) []any {
	return []any{c.ID, c.ChannelID, c.Channel, c.Name, c.StartDay, c.EndDay, c.StartDate, c.EndDate,
		c.DailyBudget, c.TargetBudget, c.BaseCTR, c.BaseCVR, c.Status}
}

func creativeRow(c models.Creative) []any {
	return []any{c.ID, c.CampaignID, c.Name, c.Format, c.StartDay, c.FatigueOnset, c.PerformanceScore}
}

func performanceRow(p models.DailyCampaignPerformance) []any {
	return []any{p.ID, p.CampaignID, p.ChannelID, p.Day, p.Date, p.Spend, p.Impressions, p.Clicks, p.Installs,
		p.CPI, p.CTR, p.CVR, p.FatigueFactor, p.RetentionD1, p.RetentionD7, p.Revenue, p.ROAS}
}

func userRow(u models.UserInstall) []any {
	return []any{u.UserID, u.InstallDay, u.InstallDate, u.Source, u.ChannelID, u.Channel, u.CampaignID, u.CreativeID,
		u.Device, u.Country, u.Segment, u.IsPayer, u.SessionCount, u.SessionCount7d, u.SessionCount30d,
		u.D1Active, u.D7Active, u.D30Active, u.LTV, u.LTV7d, u.LTV30d, u.IsChurned, u.ChurnDay}
}

func sessionRow(s models.UserSession) []any {
	return []any{s.SessionID, s.UserID, s.Day, s.DayOffset, s.StartedAt, s.DurationSeconds, s.EngagementScore, s.Revenue}
}

func organicRow(o models.DailyOrganicMetric) []any {
	return []any{o.Day, o.Date, o.OrganicInstalls, o.AppStoreRank, o.AppStoreRating, o.AppStoreReviews,
		o.SocialMentions, o.SentimentScore, o.PaidHaloContribution}
}

func signalRow(s models.Signal) []any {
	return []any{s.ID, s.EventName, s.Kind, s.Channel, s.Day, s.Date, s.Metric, s.Baseline, s.Observed, s.ChangePct,
		s.ZScore, s.Severity, s.Title, s.Description, s.RecommendedAction, s.Confidence, s.PriorityScore,
		s.PredictedImpact, s.Dismissed}
}

func rowsOf[T any](in []T, conv func(T) []any) [][]any {
	out := make([][]any, len(in))
	for i, r := range in {
		out[i] = conv(r)
	}
	return out
}

// Schema is the DDL for sqlite and postgres. Types are the common subset
// both accept; sqlite stores timestamps as RFC 3339 text.
const Schema = `
create table if not exists channels (
    id                 bigint primary key,
    name               varchar(100) not null unique,
    display_name       varchar(100) not null,
    base_cpi           double precision not null,
    cpi_min            double precision not null,
    cpi_max            double precision not null,
    cpi_variance       double precision not null,
    daily_volume       integer not null,
    weekend_multiplier double precision not null,
    quality_score      double precision not null,
    ltv_multiplier     double precision not null,
    fatigue_days       integer not null,
    fatigue_decay_rate double precision not null
);

create table if not exists campaigns (
    id            bigint primary key,
    channel_id    bigint not null references channels(id),
    channel       varchar(100) not null,
    name          varchar(200) not null,
    start_day     integer not null,
    end_day       integer not null,
    start_date    timestamp not null,
    end_date      timestamp not null,
    daily_budget  double precision not null,
    target_budget double precision not null,
    base_ctr      double precision not null,
    base_cvr      double precision not null,
    status        varchar(50) not null
);

create table if not exists creatives (
    id                bigint primary key,
    campaign_id       bigint not null references campaigns(id),
    name              varchar(200) not null,
    format            varchar(50) not null,
    start_day         integer not null,
    fatigue_onset     integer not null,
    performance_score double precision not null
);

create table if not exists daily_campaign_performance (
    id             bigint primary key,
    campaign_id    bigint not null references campaigns(id),
    channel_id     bigint not null references channels(id),
    day            integer not null,
    date           timestamp not null,
    spend          double precision not null,
    impressions    integer not null,
    clicks         integer not null,
    installs       integer not null,
    cpi            double precision not null,
    ctr            double precision not null,
    cvr            double precision not null,
    fatigue_factor double precision not null,
    retention_d1   double precision not null,
    retention_d7   double precision not null,
    revenue        double precision not null,
    roas           double precision not null
);

create index if not exists idx_perf_campaign_day on daily_campaign_performance(campaign_id, day);
create index if not exists idx_perf_date on daily_campaign_performance(date);

create table if not exists user_installs (
    user_id           varchar(36) primary key,
    install_day       integer not null,
    install_date      timestamp not null,
    source            varchar(20) not null,
    channel_id        bigint not null,
    channel           varchar(100) not null,
    campaign_id       bigint not null,
    creative_id       bigint not null,
    device            varchar(20) not null,
    country           varchar(10) not null,
    segment           varchar(20) not null,
    is_payer          boolean not null,
    session_count     integer not null,
    session_count_7d  integer not null,
    session_count_30d integer not null,
    d1_active         boolean not null,
    d7_active         boolean not null,
    d30_active        boolean not null,
    ltv               double precision not null,
    ltv_7d            double precision not null,
    ltv_30d           double precision not null,
    is_churned        boolean not null,
    churn_day         integer not null
);

create index if not exists idx_users_install_date on user_installs(install_date);
create index if not exists idx_users_channel on user_installs(channel_id);

create table if not exists user_sessions (
    session_id       varchar(36) primary key,
    user_id          varchar(36) not null references user_installs(user_id),
    day              integer not null,
    day_offset       integer not null,
    started_at       timestamp not null,
    duration_seconds integer not null,
    engagement_score double precision not null,
    revenue          double precision not null
);

create index if not exists idx_sessions_user on user_sessions(user_id);

create table if not exists daily_organic_metrics (
    day                    integer primary key,
    date                   timestamp not null,
    organic_installs       integer not null,
    app_store_rank         integer not null,
    app_store_rating       double precision not null,
    app_store_reviews      integer not null,
    social_mentions        integer not null,
    sentiment_score        double precision not null,
    paid_halo_contribution double precision not null
);

create table if not exists signals (
    id                 bigint primary key,
    event_name         varchar(100) not null,
    kind               varchar(100) not null,
    channel            varchar(100) not null,
    day                integer not null,
    date               timestamp not null,
    metric             varchar(50) not null,
    baseline           double precision not null,
    observed           double precision not null,
    change_pct         double precision not null,
    z_score            double precision not null,
    severity           varchar(20) not null,
    title              varchar(500) not null,
    description        text not null,
    recommended_action text not null,
    confidence         double precision not null,
    priority_score     double precision not null,
    predicted_impact   text not null,
    dismissed          boolean not null default false
);
`

// DropSchema removes every generated table, children first.
const DropSchema = `
drop table if exists signals;
drop table if exists daily_organic_metrics;
drop table if exists user_sessions;
drop table if exists user_installs;
drop table if exists daily_campaign_performance;
drop table if exists creatives;
drop table if exists campaigns;
drop table if exists channels;
`
