package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Users     []User          `yaml:"users"`
	Source    SourceConfig    `yaml:"source"`
	Google    GoogleConfig    `yaml:"google"`
	Minio     MinioConfig     `yaml:"minio"`
	Redis     RedisConfig     `yaml:"redis"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Store     StoreConfig     `yaml:"store"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

// User is a dashboard login. Agent is required for the agent role and
// must match the "Agent Assigned" column of the sheet.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Agent    string `yaml:"agent"`
}

// Source kinds
const (
	SourceGoogle = "google"
	SourceFile   = "file"
	SourceMinio  = "minio"
)

type SourceConfig struct {
	Kind string `yaml:"kind"`
	// Spreadsheet is the default sheet URL/ID, workbook path or object name
	Spreadsheet string `yaml:"spreadsheet"`
	Worksheet   string `yaml:"worksheet"`
	Watch       bool   `yaml:"watch"`
}

type GoogleConfig struct {
	CredentialsFile string          `yaml:"credentials_file"`
	ServiceAccount  *ServiceAccount `yaml:"service_account"`
	// Endpoint overrides the Sheets API base URL
	Endpoint string `yaml:"endpoint"`
}

// ServiceAccount is the Google service-account credential bundle
type ServiceAccount struct {
	Type                    string `yaml:"type" json:"type"`
	ProjectID               string `yaml:"project_id" json:"project_id"`
	PrivateKeyID            string `yaml:"private_key_id" json:"private_key_id"`
	PrivateKey              string `yaml:"private_key" json:"private_key"`
	ClientEmail             string `yaml:"client_email" json:"client_email"`
	ClientID                string `yaml:"client_id" json:"client_id"`
	AuthURI                 string `yaml:"auth_uri" json:"auth_uri"`
	TokenURI                string `yaml:"token_uri" json:"token_uri"`
	AuthProviderX509CertURL string `yaml:"auth_provider_x509_cert_url" json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `yaml:"client_x509_cert_url" json:"client_x509_cert_url"`
}

// JSON encodes the bundle in the format Google client libraries expect
func (s *ServiceAccount) JSON() ([]byte, error) {
	return json.Marshal(s)
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// RedisConfig enables the shared row cache when Addr is set
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type RefreshConfig struct {
	TTLSeconds      int `yaml:"ttl_seconds"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

type StoreConfig struct {
	MaxSnapshots int `yaml:"max_snapshots"`
}

type DashboardConfig struct {
	Timezone    string   `yaml:"timezone"`
	DateLayouts []string `yaml:"date_layouts"`
	RecentLimit int      `yaml:"recent_limit"`
}

type RateLimitConfig struct {
	Requests        int `yaml:"requests"`
	WindowSeconds   int `yaml:"window_seconds"`
	RefreshRequests int `yaml:"refresh_requests"`
}

// Load reads the YAML file at path, then applies environment overrides
// (including a .env file when present) and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Source.Kind == "" {
		c.Source.Kind = SourceGoogle
	}
	if c.Source.Worksheet == "" {
		c.Source.Worksheet = "Lead Tracker"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "leaddash:rows:"
	}
	if c.Refresh.TTLSeconds == 0 {
		c.Refresh.TTLSeconds = 300
	}
	if c.Refresh.IntervalSeconds == 0 {
		c.Refresh.IntervalSeconds = c.Refresh.TTLSeconds
	}
	if c.Store.MaxSnapshots == 0 {
		c.Store.MaxSnapshots = 10
	}
	if c.Dashboard.Timezone == "" {
		c.Dashboard.Timezone = "Europe/London"
	}
	if c.Dashboard.RecentLimit == 0 {
		c.Dashboard.RecentLimit = 10
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.RefreshRequests == 0 {
		c.RateLimit.RefreshRequests = 5
	}
	if c.Google.ServiceAccount != nil {
		sa := c.Google.ServiceAccount
		if sa.Type == "" {
			sa.Type = "service_account"
		}
		if sa.AuthURI == "" {
			sa.AuthURI = "https://accounts.google.com/o/oauth2/auth"
		}
		if sa.TokenURI == "" {
			sa.TokenURI = "https://oauth2.googleapis.com/token"
		}
		if sa.AuthProviderX509CertURL == "" {
			sa.AuthProviderX509CertURL = "https://www.googleapis.com/oauth2/v1/certs"
		}
	}
}

// applyEnv overlays secrets and deployment settings from the environment.
// The service account comes from GCP_SERVICE_ACCOUNT (whole JSON) or from
// the individual GCP_SERVICE_ACCOUNT_* variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DASHBOARD_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DASHBOARD_SPREADSHEET"); v != "" {
		c.Source.Spreadsheet = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = v
	}

	if raw := os.Getenv("GCP_SERVICE_ACCOUNT"); raw != "" {
		var sa ServiceAccount
		if err := json.Unmarshal([]byte(raw), &sa); err != nil {
			return fmt.Errorf("failed to parse GCP_SERVICE_ACCOUNT: %w", err)
		}
		c.Google.ServiceAccount = &sa
		return nil
	}

	if os.Getenv("GCP_SERVICE_ACCOUNT_PROJECT_ID") == "" {
		return nil
	}
	c.Google.ServiceAccount = &ServiceAccount{
		Type:                    os.Getenv("GCP_SERVICE_ACCOUNT_TYPE"),
		ProjectID:               os.Getenv("GCP_SERVICE_ACCOUNT_PROJECT_ID"),
		PrivateKeyID:            os.Getenv("GCP_SERVICE_ACCOUNT_PRIVATE_KEY_ID"),
		PrivateKey:              strings.ReplaceAll(os.Getenv("GCP_SERVICE_ACCOUNT_PRIVATE_KEY"), `\n`, "\n"),
		ClientEmail:             os.Getenv("GCP_SERVICE_ACCOUNT_CLIENT_EMAIL"),
		ClientID:                os.Getenv("GCP_SERVICE_ACCOUNT_CLIENT_ID"),
		AuthURI:                 os.Getenv("GCP_SERVICE_ACCOUNT_AUTH_URI"),
		TokenURI:                os.Getenv("GCP_SERVICE_ACCOUNT_TOKEN_URI"),
		AuthProviderX509CertURL: os.Getenv("GCP_SERVICE_ACCOUNT_AUTH_PROVIDER_X509_CERT_URL"),
		ClientX509CertURL:       os.Getenv("GCP_SERVICE_ACCOUNT_CLIENT_X509_CERT_URL"),
	}
	return nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
