// Package config loads server settings from CERTFLOW_* environment
// variables and the inspector profile from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/certflow/internal/signing"
)

type Config struct {
	DatabaseURL string // CERTFLOW_DATABASE_URL (required; "memory" keeps records in process)
	GRPCAddr    string // CERTFLOW_GRPC_ADDR (default ":9090")
	HTTPAddr    string // CERTFLOW_HTTP_ADDR (default ":8080")
	NATSURL     string // CERTFLOW_NATS_URL (optional, empty = no events)
	AuthToken   string // CERTFLOW_AUTH_TOKEN (optional, empty = auth disabled)

	// Mail settings
	SMTPAddr     string  // CERTFLOW_SMTP_ADDR (host:port; empty = log instead of sending)
	SMTPUser     string  // CERTFLOW_SMTP_USER
	SMTPPassword string  // CERTFLOW_SMTP_PASSWORD
	MailFrom     string  // CERTFLOW_MAIL_FROM (default "certificates@localhost")
	MailRate     float64 // CERTFLOW_MAIL_RATE (messages per second, default 1)

	// Archive and backup settings
	S3Bucket     string        // CERTFLOW_S3_BUCKET (enables PDF archive and backups when set)
	S3Endpoint   string        // CERTFLOW_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region     string        // CERTFLOW_S3_REGION (default "us-east-1")
	BackupKey    string        // CERTFLOW_BACKUP_KEY (default "certflow/backup.jsonl")
	SyncInterval time.Duration // CERTFLOW_SYNC_INTERVAL (default 0 = disabled)

	// Workspace settings
	SessionIdle time.Duration // CERTFLOW_SESSION_IDLE (default 30m)

	ProfilePath string          // CERTFLOW_PROFILE (optional path to inspector profile TOML)
	Profile     signing.Profile // loaded from ProfilePath
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:  os.Getenv("CERTFLOW_DATABASE_URL"),
		GRPCAddr:     envOrDefault("CERTFLOW_GRPC_ADDR", ":9090"),
		HTTPAddr:     envOrDefault("CERTFLOW_HTTP_ADDR", ":8080"),
		NATSURL:      os.Getenv("CERTFLOW_NATS_URL"),
		AuthToken:    os.Getenv("CERTFLOW_AUTH_TOKEN"),
		SMTPAddr:     os.Getenv("CERTFLOW_SMTP_ADDR"),
		SMTPUser:     os.Getenv("CERTFLOW_SMTP_USER"),
		SMTPPassword: os.Getenv("CERTFLOW_SMTP_PASSWORD"),
		MailFrom:     envOrDefault("CERTFLOW_MAIL_FROM", "certificates@localhost"),
		S3Bucket:     os.Getenv("CERTFLOW_S3_BUCKET"),
		S3Endpoint:   os.Getenv("CERTFLOW_S3_ENDPOINT"),
		S3Region:     envOrDefault("CERTFLOW_S3_REGION", "us-east-1"),
		BackupKey:    envOrDefault("CERTFLOW_BACKUP_KEY", "certflow/backup.jsonl"),
		ProfilePath:  os.Getenv("CERTFLOW_PROFILE"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("CERTFLOW_DATABASE_URL is required")
	}

	rate, err := strconv.ParseFloat(envOrDefault("CERTFLOW_MAIL_RATE", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("CERTFLOW_MAIL_RATE: %w", err)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("CERTFLOW_MAIL_RATE: must be positive, got %v", rate)
	}
	c.MailRate = rate

	if c.SyncInterval, err = durationEnv("CERTFLOW_SYNC_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if c.SessionIdle, err = durationEnv("CERTFLOW_SESSION_IDLE", "30m"); err != nil {
		return nil, err
	}

	if c.ProfilePath != "" {
		p, err := LoadProfile(c.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("CERTFLOW_PROFILE: %w", err)
		}
		c.Profile = p
	}

	return c, nil
}

// LoadProfile reads an inspector profile such as:
//
//	name = "Jane Doe"
//	company = "Sparks Ltd"
//	position = "Qualified Supervisor"
//	membership_no = "NIC123456"
//	signature = "data:image/png;base64,..."
//
// A missing file is an error; unknown keys are rejected.
func LoadProfile(path string) (signing.Profile, error) {
	var p signing.Profile
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return signing.Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return signing.Profile{}, fmt.Errorf("profile %s: unknown key %q", path, undecoded[0].String())
	}
	return p, nil
}

// ErrNegativeDuration is returned for durations below zero.
var ErrNegativeDuration = errors.New("duration must not be negative")

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %w", key, ErrNegativeDuration)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
