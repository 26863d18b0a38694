package command

import (
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/config"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/server"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/server/engine"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/host"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"net/http"
	"os"
)

var (
	configPath     string
	logLevel       string
	serverAddress  []string
	allowedOrigins []string
	maxConnections int
	credentialDir  string
	spawnShell     bool
	shellPath      string
	tlsCertFile    string
	tlsKeyFile     string
)

const (
	initialCols = 80
	initialRows = 24
)

// loadConfig reads the configuration file, if any, and lets explicitly set
// flags take precedence over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if configPath != "" {
		var err error

		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("listen") || len(cfg.Listen) == 0 {
		cfg.Listen = serverAddress
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins = allowedOrigins
	}
	if flags.Changed("max-connections") {
		cfg.MaxConnections = maxConnections
	}
	if flags.Changed("credential-dir") {
		cfg.CredentialDir = credentialDir
	}
	if flags.Changed("spawn-shell") {
		cfg.Host.SpawnShell = spawnShell
	}
	if flags.Changed("shell") {
		cfg.Host.ShellPath = shellPath
	}
	if flags.Changed("tls-cert") {
		cfg.TLS.CertFile = tlsCertFile
	}
	if flags.Changed("tls-key") {
		cfg.TLS.KeyFile = tlsKeyFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, gcpProjectID, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.GCPProjectID != "" {
		gcpProjectID = cfg.GCPProjectID
	}

	authority := credential.NewAuthority(credential.NewFileStore(cfg.CredentialDir), logger)
	if err := authority.Load(); err != nil {
		if errors.Is(err, credential.ErrCorrupted) {
			return fmt.Errorf("%w, remove %s and restart to generate a new API key", err, cfg.CredentialDir)
		}

		return err
	}

	reg := registry.New(
		registry.WithBufferCapacity(cfg.Registry.BufferCapacity),
		registry.WithAssistantPatterns(cfg.Registry.AssistantPatterns),
	)

	hostOpts := []host.Option{
		host.WithLogger(logger),
		host.WithShellPath(cfg.Host.ShellPath),
	}
	if len(cfg.Host.Env) != 0 {
		hostOpts = append(hostOpts, host.WithShellEnv(append(os.Environ(), cfg.Host.Env...)))
	}

	ptyHost, err := host.New(hostOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := ptyHost.Shutdown(); err != nil {
			logger.Warn("failed to shut down the terminal host", zap.Error(err))
		}
	}()

	websocketOriginFunc := func(request *http.Request) bool {
		// Native mobile clients don't send an Origin
		if request.Header.Get("Origin") == "" || len(cfg.AllowedOrigins) == 0 {
			return true
		}

		for _, allowedOrigin := range cfg.AllowedOrigins {
			if request.Header.Get("Origin") == allowedOrigin {
				return true
			}
		}

		return false
	}

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithServerAddresses(cfg.Listen),
		server.WithAuthority(authority),
		server.WithRegistry(reg),
		server.WithHost(ptyHost),
		server.WithMaxConnections(cfg.MaxConnections),
		server.WithWebsocketOriginFunc(websocketOriginFunc),
		server.WithGCPProjectID(gcpProjectID),
		server.WithEngineOptions(
			engine.WithQueueCapacity(cfg.Engine.QueueCapacity),
			engine.WithPingInterval(cfg.Engine.PingInterval),
			engine.WithLivenessTimeout(cfg.Engine.LivenessTimeout),
			engine.WithIdleAfter(cfg.Engine.IdleAfter),
			engine.WithInputRate(rate.Limit(cfg.Engine.InputRate), cfg.Engine.InputBurst),
		),
	}

	if cfg.TLS.CertFile != "" {
		certificate, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}

		serverOpts = append(serverOpts, server.WithTLSConfig(&tls.Config{
			Certificates: []tls.Certificate{certificate},
			MinVersion:   tls.VersionTLS12,
		}))
	}

	terminalServer, err := server.New(serverOpts...)
	if err != nil {
		return err
	}

	if cfg.Host.SpawnShell {
		if _, err := ptyHost.Create(cmd.Context(), host.CreateRequest{
			WorkingDirectory: cfg.Host.WorkingDirectory,
			Cols:             initialCols,
			Rows:             initialRows,
		}); err != nil {
			return err
		}
	}

	return terminalServer.Run(cmd.Context())
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Relay terminal sessions to mobile clients over WebSocket and REST",
		RunE:  serve,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"logging level (possible levels: debug, info, warn, error, dpanic, panic, fatal)")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cmd.PersistentFlags().StringSliceVarP(&serverAddress, "listen", "l", []string{fmt.Sprintf(":%s", port)},
		"addresses to listen on")

	cmd.PersistentFlags().StringSliceVar(&allowedOrigins, "allowed-origins", []string{},
		"a list comma-separated origins that are allowed to open a WebSocket (all origins when empty)")

	cmd.PersistentFlags().IntVar(&maxConnections, "max-connections", server.DefaultMaxConnections,
		"maximum number of concurrently admitted streaming connections")

	cmd.PersistentFlags().StringVar(&credentialDir, "credential-dir", config.DefaultCredentialDir(),
		"directory holding the API key")

	cmd.PersistentFlags().BoolVar(&spawnShell, "spawn-shell", false, "start a shell session on boot")

	cmd.PersistentFlags().StringVar(&shellPath, "shell", "", "shell to start sessions with (defaults to $SHELL)")

	cmd.PersistentFlags().StringVar(&tlsCertFile, "tls-cert", "", "TLS certificate file")
	cmd.PersistentFlags().StringVar(&tlsKeyFile, "tls-key", "", "TLS private key file")

	return cmd
}
