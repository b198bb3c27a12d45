/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

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

type Config struct {
	allowedOrigins    []string
	bind              string
	closedRoomTTL     time.Duration
	inviteURL         string
	maxMessageSize    int64
	port              int
	prefix            string
	profile           bool
	rateLimitBurst    int
	rateLimitInterval time.Duration
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.closedRoomTTL < 0 {
		return fmt.Errorf("invalid closed room ttl (must not be negative): %s", c.closedRoomTTL)
	}
	if c.maxMessageSize < 1 {
		return fmt.Errorf("invalid max message size (must be positive): %d", c.maxMessageSize)
	}
	if c.rateLimitBurst < 1 {
		return fmt.Errorf("invalid rate limit burst (must be positive): %d", c.rateLimitBurst)
	}
	if c.rateLimitInterval <= 0 {
		return fmt.Errorf("invalid rate limit interval (must be positive): %s", c.rateLimitInterval)
	}

	origins := make([]string, 0, len(c.allowedOrigins))
	for _, origin := range c.allowedOrigins {
		if origin = strings.ToLower(strings.TrimSpace(origin)); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.allowedOrigins = origins

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PAIRCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "pairchat",
		Short:         "Pairs two anonymous users into a private two-person chat room.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", []string{"http://localhost:5173"}, "origins allowed to call the API and open sockets, or * for any (env: PAIRCHAT_ALLOWED_ORIGINS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PAIRCHAT_BIND)")
	fs.DurationVar(&cfg.closedRoomTTL, "closed-room-ttl", 5*time.Minute, "time before closed rooms are evicted, 0 to keep them (env: PAIRCHAT_CLOSED_ROOM_TTL)")
	fs.StringVar(&cfg.inviteURL, "invite-url", "", "url prepended to the room id in invite qr codes (env: PAIRCHAT_INVITE_URL)")
	fs.Int64Var(&cfg.maxMessageSize, "max-message-size", 4096, "maximum size of a single socket frame, in bytes (env: PAIRCHAT_MAX_MESSAGE_SIZE)")
	fs.IntVarP(&cfg.port, "port", "p", 5001, "port to listen on (env: PAIRCHAT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PAIRCHAT_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PAIRCHAT_PROFILE)")
	fs.IntVar(&cfg.rateLimitBurst, "rate-limit-burst", 10, "socket frames a client may send per interval (env: PAIRCHAT_RATE_LIMIT_BURST)")
	fs.DurationVar(&cfg.rateLimitInterval, "rate-limit-interval", time.Second, "interval over which the burst refills (env: PAIRCHAT_RATE_LIMIT_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PAIRCHAT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PAIRCHAT_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PAIRCHAT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PAIRCHAT_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("pairchat v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
