// Command sous-vide runs the sous-vide temperature controller and provides
// the command-line collaborators that talk to it through its files.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/sweeney/sous-vide/internal/config"
	"github.com/sweeney/sous-vide/internal/control"
	"github.com/sweeney/sous-vide/internal/filestore"
	"github.com/sweeney/sous-vide/internal/status"
)

// CLI is the command-line interface.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"/etc/sous-vide.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
	EnvFile string `help:"pi-helper environment file with network details" default:"/run/pi-helper.env"`

	Run      RunCmd      `cmd:"" default:"1" help:"Run the controller daemon"`
	Start    StartCmd    `cmd:"" help:"Ask the running controller to start heating"`
	Stop     StopCmd     `cmd:"" help:"Ask the running controller to stop heating"`
	Setpoint SetpointCmd `cmd:"" help:"Set the target temperature"`
	Status   StatusCmd   `cmd:"" help:"Print the controller status"`
	Autotune AutotuneCmd `cmd:"" help:"Run an autotune session and print the resulting gains"`
}

// AfterApply sets up logging once flags are parsed.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sous-vide"),
		kong.Description("PID temperature controller for a sous-vide water bath."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		slog.Error("command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file. A missing file at the default
// location falls back to the built-in defaults.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultPath {
		slog.Warn("no configuration file, using defaults", "path", path)
		return config.Default(), nil
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func owner(f config.FilesConfig) *filestore.Owner {
	if f.UID < 0 && f.GID < 0 {
		return nil
	}
	return &filestore.Owner{UID: f.UID, GID: f.GID}
}

// StartCmd raises the start command flag.
type StartCmd struct{}

func (c *StartCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	return raiseFlag(filestore.New(), cfg.Files.StartPath(), owner(cfg.Files))
}

// StopCmd raises the stop command flag.
type StopCmd struct{}

func (c *StopCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	return raiseFlag(filestore.New(), cfg.Files.StopPath(), owner(cfg.Files))
}

func raiseFlag(store *filestore.Store, path string, o *filestore.Owner) error {
	if err := store.Write(path, nil, o); err != nil {
		return err
	}
	slog.Info("command queued", "path", path)
	return nil
}

// SetpointCmd writes a new target to the setpoint file.
type SetpointCmd struct {
	Celsius float64 `arg:"" help:"Target temperature in degrees Celsius"`
}

func (c *SetpointCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	return writeSetpoint(filestore.New(), cfg.Files.SetpointFile, owner(cfg.Files), c.Celsius)
}

func writeSetpoint(store *filestore.Store, path string, o *filestore.Owner, v float64) error {
	if !control.ValidSetpoint(v) {
		return fmt.Errorf("%w: %v", control.ErrInvalidSetpoint, v)
	}
	if err := store.Write(path, []byte(fmt.Sprintf("%g\n", v)), o); err != nil {
		return err
	}
	slog.Info("setpoint queued", "path", path, "setpoint", v)
	return nil
}

// StatusCmd prints the status file. It never fails on a missing or corrupt
// file; the unknown state is printed instead.
type StatusCmd struct{}

func (c *StatusCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	return printStatus(os.Stdout, cfg.Files.StatusPath())
}

func printStatus(w io.Writer, path string) error {
	snap := status.NewReader(path).Refresh()
	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// loadEnvFile exports the pi-helper variables. A missing file is normal on
// machines without pi-helper.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("cannot load env file", "path", path, "error", err)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
