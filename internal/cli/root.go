// Package cli wires the cobra root command, following the
// cobra.OnInitialize(initConfig, initDeps) pattern of pm's cmd/root.go:
// configuration is resolved once before RunE executes, into package-level
// dependencies rather than re-parsed per command.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hey-Diga/imploid/internal/config"
	"github.com/Hey-Diga/imploid/internal/githubapi"
	"github.com/Hey-Diga/imploid/internal/gitworkspace"
	"github.com/Hey-Diga/imploid/internal/imploiderr"
	"github.com/Hey-Diga/imploid/internal/lockfile"
	"github.com/Hey-Diga/imploid/internal/logging"
	"github.com/Hey-Diga/imploid/internal/model"
	"github.com/Hey-Diga/imploid/internal/notify"
	"github.com/Hey-Diga/imploid/internal/notify/slack"
	"github.com/Hey-Diga/imploid/internal/notify/telegram"
	"github.com/Hey-Diga/imploid/internal/output"
	"github.com/Hey-Diga/imploid/internal/processor"
	"github.com/Hey-Diga/imploid/internal/promptloader"
	"github.com/Hey-Diga/imploid/internal/runner"
	"github.com/Hey-Diga/imploid/internal/scheduler"
	"github.com/Hey-Diga/imploid/internal/statestore"

	"go.uber.org/zap"
)

var (
	cfgPath         string
	verbose         bool
	foreground      bool
	processorsFlag  string
	installCommands bool
	wizardConfig    bool

	cfg *config.Config
	ui  *output.UI
	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:               "imploid",
	Short:             "Dispatches agent-ready GitHub issues to autonomous coding agents",
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// version is overridden at build time via -ldflags.
var version = "dev"

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd.Context())
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ~/.imploid/config.json)")
	rootCmd.Flags().BoolVar(&foreground, "foreground", false, "Start the foreground polling loop")
	rootCmd.Flags().StringVar(&processorsFlag, "processors", "", "Comma-separated per-run processor override")
	rootCmd.Flags().BoolVar(&installCommands, "install-commands", false, "Install command templates (external tool, not in this distribution)")

	// The configuration wizard is requested with --configure; the
	// persistent --config flag above only names a config file path and
	// takes a value. A bare --config does not start the wizard.
	rootCmd.Flags().BoolVar(&wizardConfig, "configure", false, "Run the interactive configuration wizard (external tool, not in this distribution)")

	rootCmd.AddCommand(statusCmd)
}

func initConfig() {
	c, err := config.Load(cfgPath)
	if err != nil {
		cfg = nil
		return
	}
	cfg = c
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	level := "info"
	if cfg != nil && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	l, err := logging.New(level, verbose)
	if err != nil {
		l, _ = logging.New("info", false)
	}
	log = l
}

func rootRun(ctx context.Context) error {
	if installCommands || wizardConfig {
		return &imploiderr.ConfigError{Reason: "not implemented in this distribution (external tool)"}
	}

	if cfg == nil {
		return &imploiderr.ConfigError{Reason: "configuration could not be loaded; run with --config <path> or create ~/.imploid/config.json"}
	}

	sched, err := buildScheduler(cfg)
	if err != nil {
		return err
	}

	override := splitProcessors(processorsFlag)

	if foreground {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		lock := lockfile.New(dir + "/imploid.lock")
		fg := runner.New(lock, sched, time.Duration(cfg.PollingIntervalSecs)*time.Second, override, log)
		return fg.Start(ctx)
	}

	return sched.Tick(override)
}

func splitProcessors(flag string) []string {
	if strings.TrimSpace(flag) == "" {
		return nil
	}
	parts := strings.Split(flag, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func buildScheduler(cfg *config.Config) (*scheduler.Scheduler, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	store := statestore.New(dir + "/processing-state.json")
	if err := store.Initialize(func(format string, args ...any) { log.Warnf(format, args...) }); err != nil {
		return nil, fmt.Errorf("initialize state store: %w", err)
	}

	gh := githubapi.New(cfg.GitHub.Token)
	ws := gitworkspace.New()
	prompts := promptloader.New(dir+"/prompts", installedDefaultsDir())

	var sinks []notify.Sink
	if cfg.Slack.BotToken != "" {
		sinks = append(sinks, slack.New(cfg.Slack.BotToken, cfg.Slack.ChannelID))
	}
	if cfg.Telegram.BotToken != "" {
		sinks = append(sinks, telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	fanout := notify.New(sinks, func(err error) { log.Warnf("notifier error: %v", err) })

	drivers := map[model.ProcessorName]processor.Driver{
		model.ProcessorClaude: processor.ClaudeDriver{},
		model.ProcessorCodex:  processor.CodexDriver{},
	}

	return scheduler.New(cfg, store, gh, ws, prompts, fanout, drivers, log), nil
}

// installedDefaultsDir is the location of shipped default prompt
// templates, analogous to pm's embedded ui assets directory.
func installedDefaultsDir() string {
	return "/usr/local/share/imploid/prompts"
}
