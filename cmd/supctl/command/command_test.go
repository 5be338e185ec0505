package command

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"supctl/message"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	InitViper()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigOverlaysEnvOnFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "supctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[gateway]
listen_addr = "127.0.0.1:7000"
auth_key = "from-file"
handshake_timeout = "3s"
`), 0o644))

	t.Setenv("SUPCTL_GATEWAY_AUTH_KEY", "from-env")
	t.Setenv("SUPCTL_MANAGER_SPECS_DIR", "/var/lib/supctl/specs")
	viper.Set(KeyConfig, path)

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.Gateway.ListenAddr)
	require.Equal(t, "from-env", cfg.Gateway.AuthKey)
	require.Equal(t, 3*time.Second, cfg.Gateway.HandshakeTimeout)
	require.Equal(t, "/var/lib/supctl/specs", cfg.Manager.SpecsDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadClientConfigRequiresAuthKey(t *testing.T) {
	resetViper(t)
	_, err := loadClientConfig()
	require.Error(t, err)

	viper.Set(KeyAuthKey, "letmein")
	cfg, err := loadClientConfig()
	require.NoError(t, err)
	require.Equal(t, "letmein", cfg.Gateway.AuthKey)
}

func TestSvcLoadFromFlags(t *testing.T) {
	cmd := newSvcLoadCommand()
	f := cmd.Flags()
	require.NoError(t, f.Set("group", "prod"))
	require.NoError(t, f.Set("force", "true"))
	require.NoError(t, f.Set("topology", "leader"))
	require.NoError(t, f.Set("strategy", "rolling"))
	require.NoError(t, f.Set("bind", "db:postgres.default"))
	require.NoError(t, f.Set("application-environment", "shop.prod"))

	req, err := svcLoadFromFlags(cmd, "core/redis")
	require.NoError(t, err)
	require.Equal(t, "core/redis", req.Source)
	require.Equal(t, "prod", req.Group)
	require.True(t, req.Force)
	require.Equal(t, message.TopologyLeader, *req.Topology)
	require.Equal(t, message.UpdateStrategyRolling, *req.UpdateStrategy)
	require.True(t, req.SpecifiedBinds)
	require.Len(t, req.Binds, 1)
	require.Equal(t, "db:postgres.default", req.Binds[0].String())
	require.Equal(t, "shop.prod", req.ApplicationEnvironment.String())
}

func TestSvcLoadFromFlagsDefaults(t *testing.T) {
	cmd := newSvcLoadCommand()
	req, err := svcLoadFromFlags(cmd, "core/redis")
	require.NoError(t, err)
	require.False(t, req.SpecifiedBinds)
	require.Nil(t, req.Binds)
	require.Nil(t, req.Topology)
	require.Nil(t, req.UpdateStrategy)
}

func TestSvcLoadFromFlagsRejectsBadTopology(t *testing.T) {
	cmd := newSvcLoadCommand()
	require.NoError(t, cmd.Flags().Set("topology", "mesh"))
	_, err := svcLoadFromFlags(cmd, "core/redis")
	require.Error(t, err)
}
