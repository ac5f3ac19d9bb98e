package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/flagx"
	"github.com/dmitrijs2005/subkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so they may be written as "90s" or as nanoseconds.
// Fields left out of the file keep their previous value.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn"`
	SecretKey        string `json:"secret_key"`
	LogLevel         string `json:"log_level"`

	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	OtpValidityDuration   timex.Duration `json:"otp_validity_duration"`
	ReminderLeadTime      timex.Duration `json:"reminder_lead_time"`
	SweepInterval         timex.Duration `json:"sweep_interval"`
	OtpCleanupInterval    timex.Duration `json:"otp_cleanup_interval"`

	FreePlanName     string         `json:"free_plan_name"`
	FreePlanValidity timex.Duration `json:"free_plan_validity"`
	CatalogFile      string         `json:"catalog_file"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password"`
	MailFrom     string `json:"mail_from"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	WebhookSecret string `json:"webhook_secret"`
	CORSOrigins   string `json:"cors_origins"`
}

// parseJson overlays values from the file named by -c / -config. No flag
// means nothing to load; an unreadable or invalid file panics.
func parseJson(config *Config) {
	loadJson(config, flagx.JsonConfigFlags())
}

func loadJson(config *Config, jsonConfigFile string) {
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)

	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration)
	setDuration(&config.OtpValidityDuration, c.OtpValidityDuration)
	setDuration(&config.ReminderLeadTime, c.ReminderLeadTime)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setDuration(&config.OtpCleanupInterval, c.OtpCleanupInterval)

	setString(&config.FreePlanName, c.FreePlanName)
	setDuration(&config.FreePlanValidity, c.FreePlanValidity)
	setString(&config.CatalogFile, c.CatalogFile)

	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.WebhookSecret, c.WebhookSecret)
	setString(&config.CORSOrigins, c.CORSOrigins)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
