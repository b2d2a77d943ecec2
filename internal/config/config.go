package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Instrument InstrumentConfig
	AWS        AWSConfig
	Export     ExportConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

// InstrumentConfig selects and addresses the source-measure unit
// Driver is "sim" or "scpi"; a zero IOTimeout disables the SCPI watchdog
type InstrumentConfig struct {
	Driver      string
	Address     string
	IOTimeout   time.Duration
	SimLoadOhms float64
}

// AWSConfig holds AWS/S3 configuration
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string
}

// ExportConfig holds export upload configuration
type ExportConfig struct {
	Prefix string
}

// Instrument drivers
const (
	DriverSim  = "sim"
	DriverSCPI = "scpi"
)

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "dev")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("SMU_DRIVER", DriverSim)
	viper.SetDefault("SMU_ADDRESS", "192.168.0.2:5025")
	viper.SetDefault("SMU_IO_TIMEOUT", "0s")
	viper.SetDefault("SIM_LOAD_OHMS", 1000.0)
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AWS_ACCESS_KEY_ID", "")
	viper.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	viper.SetDefault("S3_BUCKET", "")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("EXPORT_PREFIX", "exports/")

	env := viper.GetString("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	// Try to read .env file for the current environment
	viper.SetConfigName(".env." + env)
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// Read .env file (ignore error if file doesn't exist)
	_ = viper.ReadInConfig()

	// Environment variables override .env file values
	viper.AutomaticEnv()

	for _, key := range []string{
		"PORT", "ENVIRONMENT", "ALLOWED_ORIGINS",
		"SMU_DRIVER", "SMU_ADDRESS", "SMU_IO_TIMEOUT", "SIM_LOAD_OHMS",
		"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "S3_BUCKET", "S3_ENDPOINT",
		"EXPORT_PREFIX",
	} {
		viper.BindEnv(key)
	}

	var config Config
	config.Server.Port = viper.GetString("PORT")
	config.Server.Env = viper.GetString("ENVIRONMENT")
	config.Server.AllowedOrigins = splitList(viper.GetString("ALLOWED_ORIGINS"))
	config.Instrument.Driver = strings.ToLower(strings.TrimSpace(viper.GetString("SMU_DRIVER")))
	config.Instrument.Address = viper.GetString("SMU_ADDRESS")
	config.Instrument.IOTimeout = viper.GetDuration("SMU_IO_TIMEOUT")
	config.Instrument.SimLoadOhms = viper.GetFloat64("SIM_LOAD_OHMS")
	config.AWS.Region = viper.GetString("AWS_REGION")
	config.AWS.AccessKeyID = viper.GetString("AWS_ACCESS_KEY_ID")
	config.AWS.SecretAccessKey = viper.GetString("AWS_SECRET_ACCESS_KEY")
	config.AWS.S3Bucket = viper.GetString("S3_BUCKET")
	config.AWS.S3Endpoint = viper.GetString("S3_ENDPOINT")
	config.Export.Prefix = viper.GetString("EXPORT_PREFIX")

	switch config.Instrument.Driver {
	case DriverSim, DriverSCPI:
	default:
		return nil, fmt.Errorf("unknown SMU_DRIVER %q (want %q or %q)", config.Instrument.Driver, DriverSim, DriverSCPI)
	}
	if config.Instrument.IOTimeout < 0 {
		return nil, fmt.Errorf("SMU_IO_TIMEOUT must not be negative")
	}

	log.Info().
		Str("driver", config.Instrument.Driver).
		Str("address", config.Instrument.Address).
		Strs("allowed_origins", config.Server.AllowedOrigins).
		Bool("export_upload", config.AWS.S3Bucket != "").
		Msg("Configuration loaded")

	return &config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
