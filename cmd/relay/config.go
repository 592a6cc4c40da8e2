package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	bind        string
	port        int
	publicURL   string
	roomTimeout time.Duration
	msgRate     float64
	msgBurst    int
	tlsCert     string
	tlsKey      string
	verbose     bool
}

func (c *config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.msgRate <= 0 || c.msgBurst < 1 {
		return errors.New("--msg-rate must be positive and --msg-burst at least 1")
	}
	return nil
}

func newCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LIARGAME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "liargame-relay",
		Short:         "Websocket relay for liargame rooms.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LIARGAME_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LIARGAME_PORT)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base URL encoded into share QR codes (env: LIARGAME_PUBLIC_URL)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", time.Hour, "time before idle rooms are reaped (env: LIARGAME_ROOM_TIMEOUT)")
	fs.Float64Var(&cfg.msgRate, "msg-rate", 20, "per-connection message rate limit (env: LIARGAME_MSG_RATE)")
	fs.IntVar(&cfg.msgBurst, "msg-burst", 40, "per-connection message burst allowance (env: LIARGAME_MSG_BURST)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LIARGAME_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LIARGAME_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log at debug level (env: LIARGAME_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("liargame-relay v{{.Version}}\n")

	return cmd
}
