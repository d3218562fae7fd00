package models

import "time"

const (
	SourcePaid    = "paid"
	SourceOrganic = "organic"

	// OrganicChannel labels users and series that are not attributed to a paid channel.
	OrganicChannel = "Organic"
)

type Channel struct {
	ID                int64   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name              string  `json:"name" gorm:"size:100;uniqueIndex"`
	DisplayName       string  `json:"display_name" gorm:"size:100"`
	BaseCPI           float64 `json:"base_cpi"`
	CPIMin            float64 `json:"cpi_min"`
	CPIMax            float64 `json:"cpi_max"`
	CPIVariance       float64 `json:"cpi_variance"`
	DailyVolume       int     `json:"daily_volume"`
	WeekendMultiplier float64 `json:"weekend_multiplier"`
	QualityScore      float64 `json:"quality_score"`
	LTVMultiplier     float64 `json:"ltv_multiplier"`
	FatigueDays       int     `json:"fatigue_days"`
	FatigueDecayRate  float64 `json:"fatigue_decay_rate"`
}

func (Channel) TableName() string { return "channels" }

type Campaign struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ChannelID    int64     `json:"channel_id" gorm:"index"`
	Channel      string    `json:"channel" gorm:"size:100"`
	Name         string    `json:"name" gorm:"size:200"`
	StartDay     int       `json:"start_day"`
	EndDay       int       `json:"end_day"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	DailyBudget  float64   `json:"daily_budget"`
	TargetBudget float64   `json:"target_budget"`
	BaseCTR      float64   `json:"base_ctr"`
	BaseCVR      float64   `json:"base_cvr"`
	Status       string    `json:"status" gorm:"size:50"`
}

func (Campaign) TableName() string { return "campaigns" }

// Active reports whether day falls inside the campaign lifecycle window.
func (c Campaign) Active(day int) bool { return day >= c.StartDay && day <= c.EndDay }

type Creative struct {
	ID               int64   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CampaignID       int64   `json:"campaign_id" gorm:"index"`
	Name             string  `json:"name" gorm:"size:200"`
	Format           string  `json:"format" gorm:"size:50"`
	StartDay         int     `json:"start_day"`
	FatigueOnset     int     `json:"fatigue_onset"`
	PerformanceScore float64 `json:"performance_score"`
}

func (Creative) TableName() string { return "creatives" }

type DailyCampaignPerformance struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CampaignID    int64     `json:"campaign_id" gorm:"index:idx_perf_campaign_day"`
	ChannelID     int64     `json:"channel_id"`
	Day           int       `json:"day" gorm:"index:idx_perf_campaign_day"`
	Date          time.Time `json:"date" gorm:"index"`
	Spend         float64   `json:"spend"`
	Impressions   int       `json:"impressions"`
	Clicks        int       `json:"clicks"`
	Installs      int       `json:"installs"`
	CPI           float64   `json:"cpi"`
	CTR           float64   `json:"ctr"`
	CVR           float64   `json:"cvr"`
	FatigueFactor float64   `json:"fatigue_factor"`
	RetentionD1   float64   `json:"retention_d1"`
	RetentionD7   float64   `json:"retention_d7"`
	Revenue       float64   `json:"revenue"`
	ROAS          float64   `json:"roas"`
}

func (DailyCampaignPerformance) TableName() string { return "daily_campaign_performance" }

type UserInstall struct {
	UserID          string    `json:"user_id" gorm:"primaryKey;size:36"`
	InstallDay      int       `json:"install_day"`
	InstallDate     time.Time `json:"install_date" gorm:"index"`
	Source          string    `json:"source" gorm:"size:20"`
	ChannelID       int64     `json:"channel_id" gorm:"index"`
	Channel         string    `json:"channel" gorm:"size:100"`
	CampaignID      int64     `json:"campaign_id"`
	CreativeID      int64     `json:"creative_id"`
	Device          string    `json:"device" gorm:"size:20"`
	Country         string    `json:"country" gorm:"size:10"`
	Segment         string    `json:"segment" gorm:"size:20;index"`
	IsPayer         bool      `json:"is_payer"`
	SessionCount    int       `json:"session_count"`
	SessionCount7d  int       `json:"session_count_7d"`
	SessionCount30d int       `json:"session_count_30d"`
	D1Active        bool      `json:"d1_active"`
	D7Active        bool      `json:"d7_active"`
	D30Active       bool      `json:"d30_active"`
	LTV             float64   `json:"ltv"`
	LTV7d           float64   `json:"ltv_7d"`
	LTV30d          float64   `json:"ltv_30d"`
	IsChurned       bool      `json:"is_churned"`
	ChurnDay        int       `json:"churn_day"`
}

func (UserInstall) TableName() string { return "user_installs" }

type UserSession struct {
	SessionID       string    `json:"session_id" gorm:"primaryKey;size:36"`
	UserID          string    `json:"user_id" gorm:"size:36;index"`
	Day             int       `json:"day"`
	DayOffset       int       `json:"day_offset"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
	EngagementScore float64   `json:"engagement_score"`
	Revenue         float64   `json:"revenue"`
}

func (UserSession) TableName() string { return "user_sessions" }

type DailyOrganicMetric struct {
	Day                  int       `json:"day" gorm:"primaryKey;autoIncrement:false"`
	Date                 time.Time `json:"date"`
	OrganicInstalls      int       `json:"organic_installs"`
	AppStoreRank         int       `json:"app_store_rank"`
	AppStoreRating       float64   `json:"app_store_rating"`
	AppStoreReviews      int       `json:"app_store_reviews"`
	SocialMentions       int       `json:"social_mentions"`
	SentimentScore       float64   `json:"sentiment_score"`
	PaidHaloContribution float64   `json:"paid_halo_contribution"`
}

func (DailyOrganicMetric) TableName() string { return "daily_organic_metrics" }

type Signal struct {
	ID                int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	EventName         string    `json:"event_name" gorm:"size:100"`
	Kind              string    `json:"kind" gorm:"size:100;index"`
	Channel           string    `json:"channel" gorm:"size:100"`
	Day               int       `json:"day"`
	Date              time.Time `json:"date" gorm:"index"`
	Metric            string    `json:"metric" gorm:"size:50"`
	Baseline          float64   `json:"baseline"`
	Observed          float64   `json:"observed"`
	ChangePct         float64   `json:"change_pct"`
	ZScore            float64   `json:"z_score"`
	Severity          string    `json:"severity" gorm:"size:20;index"`
	Title             string    `json:"title" gorm:"size:500"`
	Description       string    `json:"description"`
	RecommendedAction string    `json:"recommended_action"`
	Confidence        float64   `json:"confidence"`
	PriorityScore     float64   `json:"priority_score"`
	PredictedImpact   string    `json:"predicted_impact"`
	Dismissed         bool      `json:"dismissed"`
}

func (Signal) TableName() string { return "signals" }

// DailyAggKey identifies one rollup bucket in the in-memory store.
type DailyAggKey struct {
	Day        int
	Channel    string
	CampaignID int64
}

type DailyAgg struct {
	Key         DailyAggKey
	Date        time.Time
	Impressions int
	Clicks      int
	Installs    int
	Spend       float64
	Revenue     float64
	Users       int
	Sessions    int
	Payers      int
}

type Metrics struct {
	Date        string  `json:"date,omitempty"`
	Channel     string  `json:"channel,omitempty"`
	CampaignID  int64   `json:"campaign_id,omitempty"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Installs    int     `json:"installs"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Users       int     `json:"users"`
	Sessions    int     `json:"sessions"`
	CTR         float64 `json:"ctr"`
	CVR         float64 `json:"cvr"`
	CPI         float64 `json:"cpi"`
	ROAS        float64 `json:"roas"`
}

type Summary struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	Spend          float64 `json:"spend"`
	PaidInstalls   int     `json:"paid_installs"`
	OrganicInstall int     `json:"organic_installs"`
	TotalInstalls  int     `json:"total_installs"`
	BlendedCAC     float64 `json:"blended_cac"`
	PaidCPI        float64 `json:"paid_cpi"`
	Revenue        float64 `json:"revenue"`
	ROAS           float64 `json:"roas"`
	ActiveSignals  int     `json:"active_signals"`
}

type DayTotals struct {
	Date            string  `json:"date"`
	Spend           float64 `json:"spend"`
	PaidInstalls    int     `json:"paid_installs"`
	OrganicInstalls int     `json:"organic_installs"`
	UserInstalls    int     `json:"user_installs"`
	Revenue         float64 `json:"revenue"`
}
