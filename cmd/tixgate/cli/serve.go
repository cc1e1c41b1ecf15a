package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tixgate/tixgate/internal/server"
)

const banner = `
 _____ ___ __  __ ____    _  _____ _____
|_   _|_ _|\ \/ // ___|  / \|_   _| ____|
  | |  | |  \  /| |  _  / _ \ | | |  _|
  | |  | |  /  \| |_| |/ ___ \| | | |___
  |_| |___|/_/\_\\____/_/   \_\_| |_____|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tixgate HTTP server",
		Long:  "Start the HTTP server that serves signed uploads, the key-management API, and the gated form endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg.Logging)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store initialized", "driver", cfg.Store.Driver)

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	fmt.Printf("→ Mode:       %s\n", cfg.Signing.Mode)
	fmt.Printf("→ Listening:  http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Uploads:    http://%s:%d/uploads/\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
