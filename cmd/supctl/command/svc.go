package command

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"supctl/client"
	"supctl/config"
	"supctl/loadbalance"
	"supctl/logging"
	"supctl/message"
	"supctl/registry"
)

func NewSvcCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "svc",
		Short: "Send service commands to a running gateway",
	}
	cmd.AddCommand(newSvcLoadCommand(), newSvcStartCommand())

	cmd.PersistentFlags().StringP("remote-sup", "r", "", "gateway address; defaults to the configured listen address")
	cmd.PersistentFlags().String("balancer", "round-robin", "gateway selection when discovering through the registry (round-robin, weighted-random, consistent-hash)")
	cmd.PersistentFlags().Int("dial-retries", 3, "extra dial attempts while the gateway refuses connections")

	viper.BindPFlag(KeyRemoteSup, cmd.PersistentFlags().Lookup("remote-sup"))
	viper.BindPFlag(KeyBalancer, cmd.PersistentFlags().Lookup("balancer"))
	viper.BindPFlag(KeyDialRetries, cmd.PersistentFlags().Lookup("dial-retries"))
	return cmd
}

func newSvcLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <ident|archive.hart>",
		Short: "Load a service so the supervisor can start it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := svcLoadFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			return sendCommand(cmd.Context(), args[0], req)
		},
	}
	f := cmd.Flags()
	f.String("group", "", "service group")
	f.Bool("force", false, "reload the service if it is already loaded")
	f.String("topology", "", "service topology (standalone, leader)")
	f.String("strategy", "", "update strategy (none, at-once, rolling)")
	f.StringSlice("bind", nil, "service bind name:service.group; may repeat")
	f.String("application-environment", "", "application.environment")
	f.String("url", "", "Builder URL")
	f.String("channel", "", "Builder channel")
	f.String("config-from", "", "directory to load service config from")
	f.String("password", "", "encrypted service password")
	return cmd
}

func svcLoadFromFlags(cmd *cobra.Command, source string) (*message.SvcLoad, error) {
	f := cmd.Flags()
	req := &message.SvcLoad{Source: source}
	req.Group, _ = f.GetString("group")
	req.Force, _ = f.GetBool("force")
	req.BldrURL, _ = f.GetString("url")
	req.BldrChannel, _ = f.GetString("channel")
	req.ConfigFrom, _ = f.GetString("config-from")
	req.SvcEncryptedPassword, _ = f.GetString("password")

	if raw, _ := f.GetString("topology"); raw != "" {
		t, err := message.ParseTopology(raw)
		if err != nil {
			return nil, err
		}
		req.Topology = &t
	}
	if raw, _ := f.GetString("strategy"); raw != "" {
		s, err := message.ParseUpdateStrategy(raw)
		if err != nil {
			return nil, err
		}
		req.UpdateStrategy = &s
	}
	if raw, _ := f.GetString("application-environment"); raw != "" {
		ae, err := message.ParseApplicationEnvironment(raw)
		if err != nil {
			return nil, err
		}
		req.ApplicationEnvironment = &ae
	}
	if f.Changed("bind") {
		binds, _ := f.GetStringSlice("bind")
		req.SpecifiedBinds = true
		for _, raw := range binds {
			bind, err := message.ParseServiceBind(raw)
			if err != nil {
				return nil, err
			}
			req.Binds = append(req.Binds, bind)
		}
	}
	return req, nil
}

func newSvcStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <ident>",
		Short: "Start a loaded service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := message.ParsePackageIdent(args[0])
			if err != nil {
				return err
			}
			return sendCommand(cmd.Context(), ident.String(), &message.SvcStart{Ident: ident})
		},
	}
}

// sendCommand connects, sends req and prints the replies to stdout.
func sendCommand(ctx context.Context, routingKey string, req message.Payload) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	logger := logging.Init("supctl", cfg.Log)

	opts := []client.Option{
		client.WithHandshakeTimeout(cfg.Gateway.HandshakeTimeout),
		client.WithDialRetries(viper.GetInt(KeyDialRetries), client.DefaultRetryDelay),
		client.WithLogger(logger),
	}
	c, err := connect(ctx, cfg, routingKey, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	reply, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return client.HandleReply(os.Stdout, reply)
}

func connect(ctx context.Context, cfg config.Config, routingKey string, opts []client.Option) (*client.Client, error) {
	remote := viper.GetString(KeyRemoteSup)
	if remote != "" || !cfg.Registry.Enabled() {
		if remote == "" {
			remote = cfg.Gateway.ListenAddr
		}
		return client.Connect(ctx, remote, cfg.Gateway.AuthKey, opts...)
	}

	bal, err := loadbalance.New(viper.GetString(KeyBalancer))
	if err != nil {
		return nil, err
	}
	reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints)
	if err != nil {
		return nil, err
	}
	defer reg.Close()
	return client.ConnectService(ctx, reg, bal, cfg.Registry.Name, routingKey, cfg.Gateway.AuthKey, opts...)
}

// loadClientConfig skips the server-side checks of Validate; a client only
// needs somewhere to connect and the key.
func loadClientConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if cfg.Gateway.AuthKey == "" {
		return cfg, errors.New("an auth key is required; pass --auth-key or set SUPCTL_GATEWAY_AUTH_KEY")
	}
	return cfg, nil
}
