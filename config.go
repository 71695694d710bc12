package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Seednode/cardparty/games/cards"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const minPlayerTimeout = time.Second

type Config struct {
	bind           string
	cardsFile      string
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	handSize         int
	cardsToWin       int
	maxPlayers       int
	minPlayers       int
	submissionWindow time.Duration
	selectionWindow  time.Duration
	restartDelay     time.Duration

	pack   *cards.Pack
	logger *log.Logger
}

func (c *Config) options() cards.Options {
	return cards.Options{
		HandSize:         c.handSize,
		CardsToWin:       c.cardsToWin,
		MaxPlayers:       c.maxPlayers,
		MinPlayers:       c.minPlayers,
		SubmissionWindow: c.submissionWindow,
		SelectionWindow:  c.selectionWindow,
		RestartDelay:     c.restartDelay,
	}
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.playerTimeout < minPlayerTimeout {
		return fmt.Errorf("invalid player timeout (must be at least %s): %s", minPlayerTimeout, c.playerTimeout)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}

	c.prefix = strings.TrimSuffix(c.prefix, "/")

	opts := c.options()
	if err := opts.Validate(); err != nil {
		return err
	}

	pack, err := c.loadPack()
	if err != nil {
		return err
	}
	if err := pack.Check(opts); err != nil {
		return fmt.Errorf("card pack %q: %w", pack.Name, err)
	}
	c.pack = pack

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
	v.SetEnvPrefix("CARDPARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "cardparty",
		Short:         "A fill-in-the-blank party card game, served over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.logger = newLogger(cfg, os.Stderr)
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

	defaults := cards.DefaultOptions()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CARDPARTY_BIND)")
	fs.StringVar(&cfg.cardsFile, "cards", "", "path to a yaml card pack to use instead of the built-in one (env: CARDPARTY_CARDS)")
	fs.IntVar(&cfg.cardsToWin, "cards-to-win", defaults.CardsToWin, "rounds a player must win to end the game (env: CARDPARTY_CARDS_TO_WIN)")
	fs.IntVar(&cfg.handSize, "hand-size", defaults.HandSize, "white cards held by each player (env: CARDPARTY_HAND_SIZE)")
	fs.IntVar(&cfg.maxPlayers, "max-players", defaults.MaxPlayers, "maximum players per game (env: CARDPARTY_MAX_PLAYERS)")
	fs.IntVar(&cfg.minPlayers, "min-players", defaults.MinPlayers, "players needed before a game starts (env: CARDPARTY_MIN_PLAYERS)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before idle players are kicked (env: CARDPARTY_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CARDPARTY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CARDPARTY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CARDPARTY_PROFILE)")
	fs.DurationVar(&cfg.restartDelay, "restart-delay", defaults.RestartDelay, "pause between a finished game and the next (env: CARDPARTY_RESTART_DELAY)")
	fs.DurationVar(&cfg.selectionWindow, "selection-window", defaults.SelectionWindow, "time the czar has to pick a winner (env: CARDPARTY_SELECTION_WINDOW)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: CARDPARTY_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.submissionWindow, "submission-window", defaults.SubmissionWindow, "time players have to submit cards (env: CARDPARTY_SUBMISSION_WINDOW)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CARDPARTY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CARDPARTY_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CARDPARTY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CARDPARTY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("cardparty v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
