package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/vlab-avamar/internal/config"
	"github.com/jbweber/vlab-avamar/internal/libvirt"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags.
var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vlab-avamar",
	Short: "vlab-avamar - Avamar appliance lifecycle service",
	Long: `vlab-avamar deploys and manages Avamar Virtual Edition servers and
NDMP accelerators on a libvirt host.

Run "vlab-avamar worker" on the host to serve tasks over NATS, then use the
server and ndmp commands to submit show, create, delete and image tasks.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn or error")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(newApplianceCmd(serverKind))
	rootCmd.AddCommand(newApplianceCmd(ndmpKind))
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(testConnCmd)
}

// loadConfig reads --config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	l, err := logging.New(logging.Options{
		Development: cfg.Log.Development,
		Level:       cfg.Log.Level,
	})
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Testing libvirt connection...")

		client, err := libvirt.Connect(cfg.Libvirt.Socket, cfg.Libvirt.Timeout)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Printf("✓ Connected to libvirt daemon at %s\n", client.Socket())

		v, err := client.Ping()
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		fmt.Printf("✓ Libvirt version: %s\n", v)

		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		mgr := storage.NewManager(client.Libvirt(), cfg.Pools)
		for _, pool := range []string{cfg.Pools.Images.Name, cfg.Pools.Machines.Name} {
			info, err := mgr.GetPoolInfo(cmd.Context(), pool)
			if err != nil {
				fmt.Printf("✗ Storage pool %s: %v\n", pool, err)
				continue
			}
			fmt.Printf("✓ Storage pool %s (%s, %.1f GB free at %s)\n", info.Name, info.State, info.AvailableGB(), info.Path)
		}

		fmt.Println("\nConnection test successful!")
		return nil
	},
}

// waitTimeout bounds client-side waits for a task outcome. Creates include
// the boot gate, so the default is generous.
const waitTimeout = 2 * time.Hour
