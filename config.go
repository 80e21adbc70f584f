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
	adminUsername string
	bind          string
	database      string
	port          int
	prefix        string
	profile       bool
	rollDelay     time.Duration
	settleDelay   time.Duration
	stepDelay     time.Duration
	tlsCert       string
	tlsKey        string
	turnTimeout   time.Duration
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.turnTimeout <= 0 {
		return fmt.Errorf("invalid turn timeout (must be positive): %s", c.turnTimeout)
	}
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
	v.SetEnvPrefix("LADDERQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "ladderquiz",
		Short:         "A realtime multiplayer snakes-and-ladders trivia game server.",
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

	fs.StringVar(&cfg.adminUsername, "admin-username", "admin", "reserved name that joins as spectating admin instead of a player (env: LADDERQUIZ_ADMIN_USERNAME)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LADDERQUIZ_BIND)")
	fs.StringVar(&cfg.database, "database", "questions.db", "path to the sqlite question bank (env: LADDERQUIZ_DATABASE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LADDERQUIZ_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LADDERQUIZ_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LADDERQUIZ_PROFILE)")
	fs.DurationVar(&cfg.rollDelay, "roll-delay", time.Second, "pause between dice shake and dice result (env: LADDERQUIZ_ROLL_DELAY)")
	fs.DurationVar(&cfg.settleDelay, "settle-delay", 2*time.Second, "pause after a turn resolves before the next turn starts (env: LADDERQUIZ_SETTLE_DELAY)")
	fs.DurationVar(&cfg.stepDelay, "step-delay", 500*time.Millisecond, "pause between movement animation steps (env: LADDERQUIZ_STEP_DELAY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LADDERQUIZ_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LADDERQUIZ_TLS_KEY)")
	fs.DurationVar(&cfg.turnTimeout, "turn-timeout", 6*time.Second, "time before an idle player's dice are rolled automatically (env: LADDERQUIZ_TURN_TIMEOUT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LADDERQUIZ_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LADDERQUIZ_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("ladderquiz v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
