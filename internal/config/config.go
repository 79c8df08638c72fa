package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/viper"

	"github.com/rad-security/clawkeeper-sub000/internal/diag"
	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

const (
	DefaultConfigDir  = ".clawkeeper"
	DefaultConfigName = "shield"
	DefaultPolicyFile = "policy.yaml"
	DefaultPacksDir   = "packs"
	DefaultLogDir     = "~/.clawkeeper/shield-logs"
)

// Options are command-line overrides. They take precedence over the config
// file and the environment.
type Options struct {
	ConfigFile string
	LogDir     string
	Level      string
}

// Config is the resolved runtime configuration.
type Config struct {
	Shield policy.ShieldConfig

	ConfigDir  string
	ConfigFile string
	PolicyPath string
	PacksDir   string
	LogLevel   string

	// PubSubProject and PubSubTopic route telemetry to Cloud Pub/Sub
	// instead of the dashboard when both are set.
	PubSubProject string
	PubSubTopic   string

	Packs []policy.PackInfo
}

// UsePubSub reports whether telemetry should go to Pub/Sub.
func (c *Config) UsePubSub() bool { return c.PubSubProject != "" && c.PubSubTopic != "" }

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"api_key":        "CLAWKEEPER_API_KEY",
	"api_key_secret": "CLAWKEEPER_API_KEY_SECRET",
	"api_url":        "CLAWKEEPER_API_URL",
	"security_level": "SHIELD_SECURITY_LEVEL",
	"log_dir":        "SHIELD_LOG_DIR",
	"policy_file":    "SHIELD_POLICY_FILE",
	"packs_dir":      "SHIELD_PACKS_DIR",
	"log_level":      "SHIELD_LOG_LEVEL",
	"pubsub_topic":   "SHIELD_PUBSUB_TOPIC",
	"gcp_project":    "GOOGLE_CLOUD_PROJECT",
}

// accessSecret resolves a Secret Manager version name to its payload.
var accessSecret = func(ctx context.Context, name string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("secret manager client: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

func setDefaults(v *viper.Viper) {
	def := policy.DefaultConfig()
	v.SetDefault("api_url", policy.DefaultAPIURL)
	v.SetDefault("security_level", string(def.SecurityLevel))
	v.SetDefault("log_dir", DefaultLogDir)
	v.SetDefault("log_level", "warn")
	v.SetDefault("entropy_threshold", def.EntropyThreshold)
	v.SetDefault("max_input_length", def.MaxInputLength)
	v.SetDefault("auto_block", def.AutoBlock)
	v.SetDefault("custom_blacklist", []string{})
	v.SetDefault("trusted_sources", []string{})
}

// Load resolves configuration in increasing precedence: built-in defaults,
// shield.yaml, environment, local policy file, policy packs, then opts.
func Load(ctx context.Context, opts Options) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	configDir := filepath.Join(homeDir, DefaultConfigDir)
	log := diag.New("config")

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		ConfigDir:     configDir,
		ConfigFile:    v.ConfigFileUsed(),
		LogLevel:      v.GetString("log_level"),
		PubSubProject: v.GetString("gcp_project"),
		PubSubTopic:   v.GetString("pubsub_topic"),
		PolicyPath:    expandHome(v.GetString("policy_file"), homeDir),
		PacksDir:      expandHome(v.GetString("packs_dir"), homeDir),
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = filepath.Join(configDir, DefaultPolicyFile)
	}
	if cfg.PacksDir == "" {
		cfg.PacksDir = filepath.Join(configDir, DefaultPacksDir)
	}
	diag.SetLevel(cfg.LogLevel)

	sc := policy.DefaultConfig()
	sc.APIKey = strings.TrimSpace(v.GetString("api_key"))
	sc.APIURL = strings.TrimRight(v.GetString("api_url"), "/")
	sc.LogDir = expandHome(v.GetString("log_dir"), homeDir)
	sc.Hostname = Hostname()
	sc.CustomBlacklist = v.GetStringSlice("custom_blacklist")
	sc.TrustedSources = v.GetStringSlice("trusted_sources")
	sc.EntropyThreshold = v.GetFloat64("entropy_threshold")
	sc.MaxInputLength = v.GetInt("max_input_length")
	sc.AutoBlock = v.GetBool("auto_block")

	rawLevel := v.GetString("security_level")
	if l, err := policy.ParseLevel(rawLevel); err == nil {
		sc.SecurityLevel = l
	} else {
		// Kept as-is: the fallback policy row never passes a flagged turn.
		sc.SecurityLevel = policy.SecurityLevel(strings.ToLower(strings.TrimSpace(rawLevel)))
		log.Warn().Str("level", rawLevel).Msg("unknown security level, using fallback policy")
	}

	if sc.EntropyThreshold <= 0 {
		return nil, fmt.Errorf("entropy_threshold must be positive, got %v", sc.EntropyThreshold)
	}
	if !policy.ValidMaxInputLength(sc.MaxInputLength) {
		return nil, fmt.Errorf("max_input_length must be between 1 and %d, got %d", policy.MaxInputLengthLimit, sc.MaxInputLength)
	}

	if sc.APIKey == "" {
		if name := v.GetString("api_key_secret"); name != "" {
			key, err := accessSecret(ctx, name)
			if err != nil {
				log.Warn().Err(err).Msg("API key secret unavailable, running local-only")
			} else {
				sc.APIKey = key
			}
		}
	}

	update, err := policy.LoadFile(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	update.ApplyTo(&sc)

	sc, cfg.Packs, err = policy.LoadPacks(cfg.PacksDir, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to load packs: %w", err)
	}
	for _, p := range cfg.Packs {
		if p.Err != nil {
			log.Warn().Err(p.Err).Str("pack", p.Path).Msg("skipping invalid pack")
		}
	}

	if opts.LogDir != "" {
		sc.LogDir = expandHome(opts.LogDir, homeDir)
	}
	if opts.Level != "" {
		l, err := policy.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		sc.SecurityLevel = l
	}

	cfg.Shield = sc
	return cfg, nil
}

// Hostname returns the host name reported in events and heartbeats.
func Hostname() string {
	if info, err := host.Info(); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
