package main

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	webdav "github.com/tryanks/davshare"
)

var (
	flagHost   string
	flagPort   int
	flagConfig string
)

func main() {
	root := &cobra.Command{
		Use:   "davshare-server",
		Short: "WebDAV server exposing one or more mounted shares",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebDAV server until interrupted",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagHost, "host", "", "listen address override, e.g. 0.0.0.0")
	serve.Flags().IntVar(&flagPort, "port", 0, "listen port override")
	serve.Flags().StringVar(&flagConfig, "config", "", "path to a YAML/TOML/JSON config file")

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	v := viper.New()
	cfg, err := webdav.LoadConfig(v, flagConfig)
	if err != nil {
		return err
	}

	listenAddr := cfg.ListenAddr
	if flagHost != "" || flagPort != 0 {
		host := flagHost
		port := flagPort
		if host == "" {
			host = "0.0.0.0"
		}
		listenAddr = fmt.Sprintf("%s:%d", host, port)
	}

	router, err := webdav.BuildRouter(cfg)
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	log.SetLevel(verboseToLevel(cfg.Verbose))

	h := &webdav.Handler{
		Prefix: cfg.MountPath,
		Router: router,
		Locks:  webdav.NewLockManager(0, 0),
		Props:  webdav.NewMemPropertyManager(),
	}

	var httpHandler fiber.Handler
	if cfg.AuthScheme() != 0 && len(cfg.UserMapping) > 0 {
		dc := webdav.NewConfigDomainController(cfg)
		auth := webdav.NewAuthenticator(dc)
		auth.Scheme = cfg.AuthScheme()
		auth.AllowOptions = true
		httpHandler = adaptor.HTTPHandler(auth.Wrap(h))
	} else {
		httpHandler = adaptor.HTTPHandler(h)
	}

	app := fiber.New(fiber.Config{
		RequestMethods: webdav.ExtendedMethods,
	})
	app.Use(logger.New())
	app.Use("/", httpHandler)

	log.Info("davshare-server listening on ", listenAddr)
	return app.Listen(listenAddr)
}

func verboseToLevel(v int) log.Level {
	switch {
	case v <= 0:
		return log.LevelError
	case v == 1:
		return log.LevelInfo
	case v == 2:
		return log.LevelDebug
	default:
		return log.LevelTrace
	}
}
