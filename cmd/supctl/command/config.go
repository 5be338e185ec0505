package command

import (
	"strings"

	"github.com/spf13/viper"

	"supctl/config"
)

// Viper keys. Each one can also be set through SUPCTL_<KEY> with dots
// replaced by underscores, e.g. SUPCTL_GATEWAY_AUTH_KEY.
const (
	KeyConfig            = "config"
	KeyListenAddr        = "gateway.listen_addr"
	KeyAdvertiseAddr     = "gateway.advertise_addr"
	KeyAuthKey           = "gateway.auth_key"
	KeyHandshakeTimeout  = "gateway.handshake_timeout"
	KeySpecsDir          = "manager.specs_dir"
	KeyBldrURL           = "manager.bldr_url"
	KeyBldrChannel       = "manager.bldr_channel"
	KeyRateLimit         = "manager.rate_limit"
	KeyRateBurst         = "manager.rate_burst"
	KeyRegistryEndpoints = "registry.endpoints"
	KeyRegistryName      = "registry.name"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyMetricsAddr       = "metrics.listen_addr"
	KeyRemoteSup         = "remote_sup"
	KeyBalancer          = "balancer"
	KeyDialRetries       = "dial_retries"
)

// InitViper makes every key readable from SUPCTL_* environment variables.
func InitViper() {
	viper.SetEnvPrefix("SUPCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file, if any, then lets flags and
// environment override individual keys. The result is not validated.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetString(KeyConfig))
	if err != nil {
		return config.Config{}, err
	}

	overlayString(&cfg.Gateway.ListenAddr, KeyListenAddr)
	overlayString(&cfg.Gateway.AdvertiseAddr, KeyAdvertiseAddr)
	overlayString(&cfg.Gateway.AuthKey, KeyAuthKey)
	if viper.IsSet(KeyHandshakeTimeout) {
		cfg.Gateway.HandshakeTimeout = viper.GetDuration(KeyHandshakeTimeout)
	}
	overlayString(&cfg.Manager.SpecsDir, KeySpecsDir)
	overlayString(&cfg.Manager.BldrURL, KeyBldrURL)
	overlayString(&cfg.Manager.BldrChannel, KeyBldrChannel)
	if viper.IsSet(KeyRateLimit) {
		cfg.Manager.RateLimit = viper.GetFloat64(KeyRateLimit)
	}
	if viper.IsSet(KeyRateBurst) {
		cfg.Manager.RateBurst = viper.GetInt(KeyRateBurst)
	}
	if viper.IsSet(KeyRegistryEndpoints) {
		cfg.Registry.Endpoints = viper.GetStringSlice(KeyRegistryEndpoints)
	}
	overlayString(&cfg.Registry.Name, KeyRegistryName)
	overlayString(&cfg.Log.Level, KeyLogLevel)
	overlayString(&cfg.Log.Format, KeyLogFormat)
	overlayString(&cfg.Metrics.ListenAddr, KeyMetricsAddr)

	return cfg, nil
}

func overlayString(dst *string, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetString(key)
	}
}
