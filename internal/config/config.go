package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Billing  BillingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type BillingConfig struct {
	// Civil timezone for day/night boundary classification. All persisted
	// instants stay UTC; this zone is only consulted by the billing engine.
	Timezone string
	// Expiring monthly tickets are reported this many days ahead.
	NotifyDaysBefore int
	// How often the expiry notifier runs.
	NotifyIntervalHours int
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	billingTZ := os.Getenv("BILLING_TIMEZONE")
	if billingTZ == "" {
		billingTZ = "Asia/Ho_Chi_Minh"
	}

	notifyDays := 7
	if s := os.Getenv("MONTHLY_NOTIFY_DAYS"); s != "" {
		notifyDays, err = strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid MONTHLY_NOTIFY_DAYS: %w", op, err)
		}
	}

	notifyInterval := 12
	if s := os.Getenv("MONTHLY_NOTIFY_INTERVAL_HOURS"); s != "" {
		notifyInterval, err = strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid MONTHLY_NOTIFY_INTERVAL_HOURS: %w", op, err)
		}
	}

	billingCfg := BillingConfig{
		Timezone:            billingTZ,
		NotifyDaysBefore:    notifyDays,
		NotifyIntervalHours: notifyInterval,
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Billing:  billingCfg,
	}, nil
}
