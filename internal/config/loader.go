package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RUSHTRADE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RUSHTRADE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Secret-bearing fields additionally accept a *_FILE variant
// naming a file that holds the value, for mounted secrets.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setSecret(&cfg.Wallet.PrivateKey, "RUSHTRADE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "RUSHTRADE_WALLET_ENCRYPTED_KEY_PATH")
	setSecret(&cfg.Wallet.KeyPassword, "RUSHTRADE_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "RUSHTRADE_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "RUSHTRADE_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.ExchangeAddress, "RUSHTRADE_CHAIN_EXCHANGE_ADDRESS")
	setStr(&cfg.Chain.FactoryAddress, "RUSHTRADE_CHAIN_FACTORY_ADDRESS")
	setStr(&cfg.Chain.TokensAddress, "RUSHTRADE_CHAIN_TOKENS_ADDRESS")

	// ── Exchange ──
	setInt64(&cfg.Exchange.ProtocolFeeBps, "RUSHTRADE_EXCHANGE_PROTOCOL_FEE_BPS")
	setInt64(&cfg.Exchange.MaxFeeRateBps, "RUSHTRADE_EXCHANGE_MAX_FEE_RATE_BPS")
	setInt(&cfg.Exchange.BookDepth, "RUSHTRADE_EXCHANGE_BOOK_DEPTH")

	// ── Settlement ──
	setDuration(&cfg.Settlement.Interval, "RUSHTRADE_SETTLEMENT_INTERVAL")
	setInt(&cfg.Settlement.BatchSize, "RUSHTRADE_SETTLEMENT_BATCH_SIZE")
	setDuration(&cfg.Settlement.ExpiryInterval, "RUSHTRADE_SETTLEMENT_EXPIRY_INTERVAL")
	setDuration(&cfg.Settlement.SyncInterval, "RUSHTRADE_SETTLEMENT_SYNC_INTERVAL")
	setDuration(&cfg.Settlement.StatsInterval, "RUSHTRADE_SETTLEMENT_STATS_INTERVAL")
	setDuration(&cfg.Settlement.CallTimeout, "RUSHTRADE_SETTLEMENT_CALL_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RUSHTRADE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "RUSHTRADE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RUSHTRADE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RUSHTRADE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RUSHTRADE_POSTGRES_USER")
	setSecret(&cfg.Postgres.Password, "RUSHTRADE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RUSHTRADE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RUSHTRADE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RUSHTRADE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RUSHTRADE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RUSHTRADE_REDIS_ADDR")
	setSecret(&cfg.Redis.Password, "RUSHTRADE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RUSHTRADE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RUSHTRADE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RUSHTRADE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RUSHTRADE_REDIS_TLS_ENABLED")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "RUSHTRADE_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "RUSHTRADE_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "RUSHTRADE_KAFKA_TOPIC")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "RUSHTRADE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RUSHTRADE_S3_REGION")
	setStr(&cfg.S3.Bucket, "RUSHTRADE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RUSHTRADE_S3_ACCESS_KEY")
	setSecret(&cfg.S3.SecretKey, "RUSHTRADE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RUSHTRADE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RUSHTRADE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "RUSHTRADE_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "RUSHTRADE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "RUSHTRADE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RUSHTRADE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RUSHTRADE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RUSHTRADE_SERVER_CORS_ORIGINS")

	// ── API ──
	setStr(&cfg.API.Key, "RUSHTRADE_API_KEY")
	setSecret(&cfg.API.Secret, "RUSHTRADE_API_SECRET")
	setInt(&cfg.API.RateLimit, "RUSHTRADE_API_RATE_LIMIT")
	setDuration(&cfg.API.RateWindow, "RUSHTRADE_API_RATE_WINDOW")

	// ── Notify ──
	setSecret(&cfg.Notify.TelegramToken, "RUSHTRADE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RUSHTRADE_NOTIFY_TELEGRAM_CHAT_ID")
	setSecret(&cfg.Notify.DiscordWebhookURL, "RUSHTRADE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RUSHTRADE_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.Level, "RUSHTRADE_LOG_LEVEL")
	setStr(&cfg.Log.File, "RUSHTRADE_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "RUSHTRADE_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "RUSHTRADE_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "RUSHTRADE_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "RUSHTRADE_LOG_COMPRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "RUSHTRADE_MODE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setSecret reads key like setStr. When the direct variable is unset it falls
// back to key_FILE, a path to a file holding the value (surrounding
// whitespace trimmed). An unreadable file leaves the target unchanged.
func setSecret(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
		return
	}
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if v := strings.TrimSpace(string(b)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
