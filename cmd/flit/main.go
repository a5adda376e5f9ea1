package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/quocson95/flit/pkg/config"
	"github.com/quocson95/flit/pkg/tui"
)

func main() {
	cfg := config.LoadEnv()

	var timeoutMS int

	rootCmd := &cobra.Command{
		Use:   "flit",
		Short: "Interactive FTP/FTPS terminal client",
		Long: `flit browses a remote FTP server in the terminal: navigate and
preview files, search recursively, and download files or whole
directory trees with resume support.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Host, "host", cfg.Host, "FTP server hostname")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "FTP server port")
	flags.StringVar(&cfg.User, "user", cfg.User, "login user")
	flags.StringVar(&cfg.Password, "password", cfg.Password, "login password")
	flags.BoolVar(&cfg.Secure, "secure", cfg.Secure, "use explicit FTPS (AUTH TLS)")
	flags.BoolVar(&cfg.Passive, "passive", cfg.Passive, "use passive mode data connections")
	flags.IntVar(&timeoutMS, "timeout", int(cfg.Timeout.Milliseconds()), "connection timeout in milliseconds")
	flags.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "directory downloads are written to")

	if cfg.Host == "" {
		_ = rootCmd.MarkFlagRequired("host")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Session) error {
	// Set up logging to file; stdout belongs to the TUI.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dataDir := filepath.Join(homeDir, ".flit")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logFile, err := os.OpenFile(
		filepath.Join(dataDir, "debug.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0600,
	)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	log.SetOutput(logFile)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	slog.Info("Starting session", "addr", cfg.Addr(), "user", cfg.User, "secure", cfg.Secure)

	p := tea.NewProgram(
		tui.NewAppModel(cfg),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		slog.Error("Error running program", "error", err)
		return err
	}
	return nil
}
