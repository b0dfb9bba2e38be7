package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/semmidev/folderbak/internal/domain"
)

const (
	DefaultBackupsLimit  = 5
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 5 * time.Minute
	DefaultEnvFile       = ".env"
)

type Config struct {
	App      AppConfig     `mapstructure:",squash"`
	Source   SourceConfig  `mapstructure:",squash"`
	Remote   RemoteConfig  `mapstructure:",squash"`
	Backup   BackupConfig  `mapstructure:",squash"`
	Notify   NotifyConfig  `mapstructure:",squash"`
	S3       S3Config      `mapstructure:",squash"`
	GDrive   GDriveConfig  `mapstructure:",squash"`
	Metrics  MetricsConfig `mapstructure:",squash"`
	Schedule string        `mapstructure:"schedule"`
}

type AppConfig struct {
	NodeName   string `mapstructure:"node_name"`
	WorkDir    string `mapstructure:"work_dir" validate:"required"`
	LogFile    string `mapstructure:"log_file"`
	Logging    bool   `mapstructure:"logging"`
	LoggingFTP bool   `mapstructure:"logging_ftp"`
}

type SourceConfig struct {
	Dir string `mapstructure:"source_dir" validate:"required"`
}

type RemoteConfig struct {
	Protocol  string        `mapstructure:"remote_protocol" validate:"oneof=ftp s3 gdrive local"`
	Host      string        `mapstructure:"remote_host" validate:"required_if=Protocol ftp,required_if=Protocol local"`
	Port      int           `mapstructure:"remote_port" validate:"gte=1,lte=65535"`
	User      string        `mapstructure:"remote_user"`
	Password  string        `mapstructure:"remote_pass"`
	Secure    bool          `mapstructure:"remote_secure"`
	Root      string        `mapstructure:"remote_root"`
	Timeout   time.Duration `mapstructure:"remote_timeout" validate:"gte=0"`
	KeepAlive time.Duration `mapstructure:"remote_keepalive" validate:"gte=0"`
}

type BackupConfig struct {
	Prefix           string        `mapstructure:"backup_prefix" validate:"required"`
	Limit            int           `mapstructure:"backups_limit"`
	CopyBeforeBackup bool          `mapstructure:"copy_before_backup"`
	Engine           string        `mapstructure:"archive_engine" validate:"oneof=exec native"`
	Compression      string        `mapstructure:"compression" validate:"oneof=gzip zstd"`
	RetryAttempts    int           `mapstructure:"retry_attempts" validate:"gte=1"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_bot_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	OnlyOnError    bool   `mapstructure:"only_on_error"`
	SilentSuccess  bool   `mapstructure:"silent_success"`
}

type S3Config struct {
	Bucket    string `mapstructure:"s3_bucket"`
	Region    string `mapstructure:"s3_region"`
	AccessKey string `mapstructure:"s3_access_key"`
	SecretKey string `mapstructure:"s3_secret_key"`
	Endpoint  string `mapstructure:"s3_endpoint"`
}

type GDriveConfig struct {
	FolderID         string `mapstructure:"gdrive_folder_id"`
	CredentialsFile  string `mapstructure:"gdrive_credentials_file"`
	ClientSecretFile string `mapstructure:"gdrive_client_secret_file"`
	RefreshToken     string `mapstructure:"gdrive_refresh_token"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"metrics_textfile"`
}

// envKeys maps every config key to the environment variables it is read
// from. The first variable that is set wins; FTP_* names are accepted for
// deployments configured before the remote was generalized.
var envKeys = map[string][]string{
	"node_name":                 {"NODE_NAME"},
	"work_dir":                  {"WORK_DIR"},
	"log_file":                  {"LOG_FILE"},
	"logging":                   {"LOGGING"},
	"logging_ftp":               {"LOGGING_FTP"},
	"source_dir":                {"SOURCE_DIR"},
	"remote_protocol":           {"REMOTE_PROTOCOL"},
	"remote_host":               {"REMOTE_HOST", "FTP_HOST"},
	"remote_port":               {"REMOTE_PORT", "FTP_PORT"},
	"remote_user":               {"REMOTE_USER", "FTP_USER"},
	"remote_pass":               {"REMOTE_PASS", "FTP_PASS"},
	"remote_secure":             {"REMOTE_SECURE", "FTP_SECURE"},
	"remote_root":               {"REMOTE_ROOT"},
	"remote_timeout":            {"REMOTE_TIMEOUT"},
	"remote_keepalive":          {"REMOTE_KEEPALIVE"},
	"backup_prefix":             {"BACKUP_PREFIX"},
	"backups_limit":             {"BACKUPS_LIMIT"},
	"copy_before_backup":        {"COPY_BEFORE_BACKUP"},
	"archive_engine":            {"ARCHIVE_ENGINE"},
	"compression":               {"COMPRESSION"},
	"retry_attempts":            {"RETRY_ATTEMPTS"},
	"retry_delay":               {"RETRY_DELAY"},
	"telegram_bot_token":        {"TELEGRAM_BOT_TOKEN"},
	"telegram_chat_id":          {"TELEGRAM_CHAT_ID"},
	"only_on_error":             {"ONLY_ON_ERROR"},
	"silent_success":            {"SILENT_SUCCESS"},
	"s3_bucket":                 {"S3_BUCKET"},
	"s3_region":                 {"S3_REGION"},
	"s3_access_key":             {"S3_ACCESS_KEY"},
	"s3_secret_key":             {"S3_SECRET_KEY"},
	"s3_endpoint":               {"S3_ENDPOINT"},
	"gdrive_folder_id":          {"GDRIVE_FOLDER_ID"},
	"gdrive_credentials_file":   {"GDRIVE_CREDENTIALS_FILE"},
	"gdrive_client_secret_file": {"GDRIVE_CLIENT_SECRET_FILE"},
	"gdrive_refresh_token":      {"GDRIVE_REFRESH_TOKEN"},
	"schedule":                  {"SCHEDULE"},
	"metrics_textfile":          {"METRICS_TEXTFILE"},
}

// fileAliases lets a dotenv or yaml file use the legacy FTP_* names.
var fileAliases = map[string]string{
	"ftp_host":   "remote_host",
	"ftp_port":   "remote_port",
	"ftp_user":   "remote_user",
	"ftp_pass":   "remote_pass",
	"ftp_secure": "remote_secure",
}

// Load reads configuration from defaults, an optional file and the process
// environment (highest priority). An empty path falls back to ./.env when
// it exists. When validation fails the decoded config is still returned
// together with an error wrapping domain.ErrConfiguration, so the caller
// can report the failure through whatever channels did get configured.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("work_dir", ".")
	v.SetDefault("log_file", "backup.log")
	v.SetDefault("remote_protocol", "ftp")
	v.SetDefault("remote_port", 21)
	v.SetDefault("remote_root", "/")
	v.SetDefault("remote_timeout", 30*time.Second)
	v.SetDefault("remote_keepalive", 30*time.Second)
	v.SetDefault("backup_prefix", "backups-")
	v.SetDefault("backups_limit", DefaultBackupsLimit)
	v.SetDefault("archive_engine", "exec")
	v.SetDefault("compression", "gzip")
	v.SetDefault("retry_attempts", DefaultRetryAttempts)
	v.SetDefault("retry_delay", DefaultRetryDelay)
	v.SetDefault("silent_success", true)

	for key, names := range envKeys {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			path = DefaultEnvFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		for alias, key := range fileAliases {
			v.RegisterAlias(alias, key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return &cfg, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	return &cfg, nil
}

func configType(path string) string {
	switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext {
	case "yaml", "yml":
		return "yaml"
	case "json", "toml":
		return ext
	default:
		return "env"
	}
}

func (c *Config) normalize() {
	if c.Backup.Limit <= 0 {
		c.Backup.Limit = DefaultBackupsLimit
	}
	c.Remote.Protocol = strings.ToLower(strings.TrimSpace(c.Remote.Protocol))
	c.Backup.Engine = strings.ToLower(strings.TrimSpace(c.Backup.Engine))
	c.Backup.Compression = strings.ToLower(strings.TrimSpace(c.Backup.Compression))
	if c.Remote.Root == "" {
		c.Remote.Root = "/"
	}
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fieldErrors(verrs)
		}
		return err
	}

	switch c.Remote.Protocol {
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 remote")
		}
	case "gdrive":
		if c.GDrive.FolderID == "" {
			return fmt.Errorf("GDRIVE_FOLDER_ID is required for the gdrive remote")
		}
		if c.GDrive.CredentialsFile == "" && (c.GDrive.ClientSecretFile == "" || c.GDrive.RefreshToken == "") {
			return fmt.Errorf("gdrive remote needs GDRIVE_CREDENTIALS_FILE or GDRIVE_CLIENT_SECRET_FILE with GDRIVE_REFRESH_TOKEN")
		}
	}

	return nil
}

var fieldEnv = map[string]string{
	"WorkDir":       "WORK_DIR",
	"Dir":           "SOURCE_DIR",
	"Protocol":      "REMOTE_PROTOCOL",
	"Host":          "REMOTE_HOST",
	"Port":          "REMOTE_PORT",
	"Timeout":       "REMOTE_TIMEOUT",
	"KeepAlive":     "REMOTE_KEEPALIVE",
	"Prefix":        "BACKUP_PREFIX",
	"Engine":        "ARCHIVE_ENGINE",
	"Compression":   "COMPRESSION",
	"RetryAttempts": "RETRY_ATTEMPTS",
	"RetryDelay":    "RETRY_DELAY",
}

func fieldErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldEnv[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is not set", name))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s=%s)", name, fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// TempDir is where transient archives are written.
func (c *Config) TempDir() string {
	return filepath.Join(c.App.WorkDir, "tmp")
}

// LogPath resolves LOG_FILE against WORK_DIR unless it is absolute.
func (c *Config) LogPath() string {
	if c.App.LogFile == "" || filepath.IsAbs(c.App.LogFile) {
		return c.App.LogFile
	}
	return filepath.Join(c.App.WorkDir, c.App.LogFile)
}

// NodeIdentity names this node in notifications: NODE_NAME, then the
// upper-cased remote user, then the hostname.
func (c *Config) NodeIdentity() string {
	if c.App.NodeName != "" {
		return c.App.NodeName
	}
	if c.Remote.User != "" {
		return strings.ToUpper(c.Remote.User)
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return ""
}
