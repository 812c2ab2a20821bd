package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/Zanooda/sunshine-homeassistant/pkg/app"
	"github.com/Zanooda/sunshine-homeassistant/pkg/common"
	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

const AppName = "sunshine-homeassistant"

type CLI struct {
	app    *app.Application
	logger *logrus.Logger
	out    io.Writer
}

func NewCLI() *CLI {
	return &CLI{out: os.Stdout}
}

func (c *CLI) Run(args []string) error {
	cmd := &cli.Command{
		Name:    AppName,
		Usage:   "Expose Sunshine scooters to Home Assistant over MQTT",
		Version: common.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
			},
			&cli.BoolFlag{
				Name:  "list-scooters",
				Usage: "Fetch the scooters on the account once, print them and exit",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Set log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: c.runApp,
	}

	return cmd.Run(context.Background(), args)
}

func (c *CLI) runApp(ctx context.Context, cmd *cli.Command) error {
	c.logger = c.setupLogger(cmd)

	// If no config file exists at default location and no explicit config provided,
	// show help instead of failing
	configPath := cmd.String("config")
	if !cmd.IsSet("config") && configPath == "config.yaml" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if helpErr := cli.ShowAppHelp(cmd); helpErr != nil {
				return fmt.Errorf("failed to show help: %w", helpErr)
			}
			return fmt.Errorf("no configuration found - create config.yaml or specify with --config")
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	c.applyConfigLogging(cmd.IsSet("log-level"), cfg)

	if cmd.Bool("list-scooters") {
		return c.listScooters(ctx, cfg)
	}

	c.logger.Infof("Starting %s %s", AppName, common.GetBuildInfo())

	c.app = app.NewApplication(cfg, c.logger, common.GetVersion())
	if err := c.app.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	shutdownCh := c.setupSignalHandling()

	if err := c.app.Start(); err != nil {
		_ = c.app.Stop()
		return err
	}

	<-shutdownCh

	return c.app.Stop()
}

func (c *CLI) setupLogger(cmd *cli.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(newTextFormatter(term.IsTerminal(int(os.Stderr.Fd()))))

	if level, err := logrus.ParseLevel(cmd.String("log-level")); err == nil {
		logger.SetLevel(level)
	}

	return logger
}

func newTextFormatter(colors bool) *logrus.TextFormatter {
	return &logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   colors,
		DisableColors: !colors,
	}
}

// applyConfigLogging applies the config file's logging section. An explicit
// --log-level flag wins over the configured level.
func (c *CLI) applyConfigLogging(levelFlagSet bool, cfg *config.Config) {
	if !levelFlagSet {
		if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
			c.logger.SetLevel(level)
		}
	}
	if strings.EqualFold(cfg.Logging.Format, "json") {
		c.logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func (c *CLI) setupSignalHandling() <-chan struct{} {
	shutdownCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		c.logger.Infof("Received signal: %v", sig)
		close(shutdownCh)
	}()

	return shutdownCh
}

func (c *CLI) listScooters(ctx context.Context, cfg *config.Config) error {
	client, err := sunshine.NewClient(&cfg.Sunshine, common.GetVersion(), c.logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Sunshine.RequestTimeout)
	defer cancel()

	scooters, err := client.GetScooters(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch scooters: %w", err)
	}

	return printScooters(c.out, scooters)
}

func printScooters(w io.Writer, scooters []sunshine.Scooter) error {
	if len(scooters) == 0 {
		_, err := fmt.Fprintln(w, "No scooters found on this account")
		return err
	}

	fmt.Fprintf(w, "Found %d scooter(s):\n\n", len(scooters))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVIN\tMODEL\tBATTERY\tSTATUS\tLOCKED")
	for _, scooter := range scooters {
		id, _ := scooter.ID()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			id,
			column(scooter, sunshine.FieldVIN),
			column(scooter, sunshine.FieldModel),
			column(scooter, sunshine.FieldBatteryLevel),
			column(scooter, sunshine.FieldStatus),
			column(scooter, sunshine.FieldLocked),
		)
	}
	return tw.Flush()
}

func column(scooter sunshine.Scooter, key string) string {
	v, ok := scooter.Get(key)
	if !ok || v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
