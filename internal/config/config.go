package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	FrontendURL    string        `yaml:"frontend_url"` // callback redirects land here
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaystackConfig struct {
	SecretKey   string `yaml:"secret_key"`
	BaseURL     string `yaml:"base_url"`
	CallbackURL string `yaml:"callback_url"`
	Currency    string `yaml:"currency"`
}

type PricingConfig struct {
	Full  int64    `yaml:"full"`
	Half  [2]int64 `yaml:"half"`
	Three [3]int64 `yaml:"three_installments"`
	Four  [4]int64 `yaml:"four_installments"`
}

type BillingConfig struct {
	CohortAnchorDay    int           `yaml:"cohort_anchor_day"`
	PendingReuseWindow time.Duration `yaml:"pending_reuse_window"`
	GracePreStart      time.Duration `yaml:"grace_pre_start"`
	GraceMidPlan       time.Duration `yaml:"grace_mid_plan"`
	GraceFinal         time.Duration `yaml:"grace_final"`
	GraceNoCohort      time.Duration `yaml:"grace_no_cohort"`
	AuditWindow        time.Duration `yaml:"audit_window"`
	ReminderLead       time.Duration `yaml:"reminder_lead"`
	ReminderCooldown   time.Duration `yaml:"reminder_cooldown"`
	InitiateRateLimit  int           `yaml:"initiate_rate_limit"` // per user per minute
	SweepBatchSize     int           `yaml:"sweep_batch_size"`
	InitiateLockWait   time.Duration `yaml:"initiate_lock_wait"` // how long a duplicate click waits for the first one
}

type SchedulerConfig struct {
	ExpiryCron       string        `yaml:"expiry_cron"`
	ReminderCron     string        `yaml:"reminder_cron"`
	DeactivationCron string        `yaml:"deactivation_cron"`
	AuditCron        string        `yaml:"audit_cron"`
	Timezone         string        `yaml:"timezone"`
	JobTimeout       time.Duration `yaml:"job_timeout"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	AppName  string `yaml:"app_name"`
}

type AdminConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	AlertEmail string `yaml:"alert_email"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Paystack  PaystackConfig  `yaml:"paystack"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Billing   BillingConfig   `yaml:"billing"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Admin     AdminConfig     `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes YAML, applies env overrides and defaults, and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Paystack.SecretKey == "" && !dev {
		return nil, errors.New("paystack.secret_key is required")
	}
	if cfg.Billing.CohortAnchorDay < 1 || cfg.Billing.CohortAnchorDay > 28 {
		return nil, errors.New("billing.cohort_anchor_day must be between 1 and 28")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("PAYSTACK_SECRET_KEY"); v != "" {
		cfg.Paystack.SecretKey = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.Admin.JWTSecret = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 20 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Paystack.BaseURL == "" {
		cfg.Paystack.BaseURL = "https://api.paystack.co"
	}
	if cfg.Paystack.Currency == "" {
		cfg.Paystack.Currency = "NGN"
	}

	if cfg.Pricing.Full == 0 {
		cfg.Pricing.Full = 250000
	}
	if cfg.Pricing.Half == [2]int64{} {
		cfg.Pricing.Half = [2]int64{125000, 125000}
	}
	if cfg.Pricing.Three == [3]int64{} {
		cfg.Pricing.Three = [3]int64{85000, 85000, 80000}
	}
	if cfg.Pricing.Four == [4]int64{} {
		cfg.Pricing.Four = [4]int64{30000, 55000, 85000, 80000}
	}

	b := &cfg.Billing
	if b.CohortAnchorDay == 0 {
		b.CohortAnchorDay = 6
	}
	b.PendingReuseWindow = orDuration(b.PendingReuseWindow, 30*time.Minute)
	b.GracePreStart = orDuration(b.GracePreStart, 7*24*time.Hour)
	b.GraceMidPlan = orDuration(b.GraceMidPlan, 14*24*time.Hour)
	b.GraceFinal = orDuration(b.GraceFinal, 21*24*time.Hour)
	b.GraceNoCohort = orDuration(b.GraceNoCohort, 30*24*time.Hour)
	b.AuditWindow = orDuration(b.AuditWindow, 7*24*time.Hour)
	b.ReminderLead = orDuration(b.ReminderLead, 3*24*time.Hour)
	b.ReminderCooldown = orDuration(b.ReminderCooldown, 20*time.Hour)
	b.InitiateLockWait = orDuration(b.InitiateLockWait, 5*time.Second)
	if b.InitiateRateLimit <= 0 {
		b.InitiateRateLimit = 10
	}
	if b.SweepBatchSize <= 0 {
		b.SweepBatchSize = 500
	}

	s := &cfg.Scheduler
	if s.ExpiryCron == "" {
		s.ExpiryCron = "0 * * * *"
	}
	if s.ReminderCron == "" {
		s.ReminderCron = "0 9 * * *"
	}
	if s.DeactivationCron == "" {
		s.DeactivationCron = "0 0 * * *"
	}
	if s.AuditCron == "" {
		s.AuditCron = "0 3 * * 1"
	}
	if s.Timezone == "" {
		s.Timezone = "Africa/Lagos"
	}
	s.JobTimeout = orDuration(s.JobTimeout, 30*time.Minute)

	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.AppName == "" {
		cfg.SMTP.AppName = "Course Platform"
	}
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
