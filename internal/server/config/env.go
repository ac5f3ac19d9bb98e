package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "SUBKEEPER_"

const defaultEnvFile = ".env"

// parseEnv loads a dotenv file (the -env flag, else ./.env when present)
// into the process environment and then copies every set SUBKEEPER_*
// variable into config. Variables already exported win over the file.
func parseEnv(config *Config) {
	loadEnv(config, flagx.EnvFileFlags())
}

func loadEnv(config *Config, file string) {
	explicit := file != ""
	if !explicit {
		file = defaultEnvFile
	}

	if err := godotenv.Load(file); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}

	str("HTTP_ADDR", &config.EndpointAddrHTTP)
	str("GRPC_ADDR", &config.EndpointAddrGRPC)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	str("LOG_LEVEL", &config.LogLevel)

	dur("TOKEN_VALIDITY", &config.TokenValidityDuration)
	dur("OTP_VALIDITY", &config.OtpValidityDuration)
	dur("REMINDER_LEAD_TIME", &config.ReminderLeadTime)
	dur("SWEEP_INTERVAL", &config.SweepInterval)
	dur("OTP_CLEANUP_INTERVAL", &config.OtpCleanupInterval)

	str("FREE_PLAN_NAME", &config.FreePlanName)
	dur("FREE_PLAN_VALIDITY", &config.FreePlanValidity)
	str("CATALOG_FILE", &config.CatalogFile)

	str("SMTP_HOST", &config.SMTPHost)
	if v, ok := os.LookupEnv(envPrefix + "SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.SMTPPort = port
	}
	str("SMTP_USER", &config.SMTPUser)
	str("SMTP_PASSWORD", &config.SMTPPassword)
	str("MAIL_FROM", &config.MailFrom)

	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	str("WEBHOOK_SECRET", &config.WebhookSecret)
	str("CORS_ORIGINS", &config.CORSOrigins)
}
