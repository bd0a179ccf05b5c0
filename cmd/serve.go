/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/bkmeter/internal/mqtt"
	"github.com/allbin/bkmeter/internal/web"
	"github.com/allbin/bkmeter/session"
)

const shutdownTimeout = 5 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the meter and publish readings over HTTP and MQTT",
	Long: `Poll the meter headless and publish every reading.

  HTTP  GET /reading, /health and /version on web.listen
  MQTT  JSON readings on mqtt.topic when mqtt.broker is set
  file  the two line overlay file when output.file is set

The meter is returned to local control on SIGINT or SIGTERM.

Example usage:
  bk549x serve --listen :8549
  bk549x serve --broker tcp://localhost:1883 --output /tmp/mmdata.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			closeAll()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "HTTP listen address (web.listen)")
	serveCmd.Flags().String("broker", "", "MQTT broker URL (mqtt.broker)")
	serveCmd.Flags().String("output", "", "overlay file or directory (output.file)")

	for key, flag := range map[string]string{
		"web.listen":  "listen",
		"mqtt.broker": "broker",
		"output.file": "output",
	} {
		if err := v.BindPFlag(key, serveCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func runServe() error {
	if cfg.Web.Listen == "" && cfg.MQTT.Broker == "" && cfg.Output.File == "" {
		return errors.New("nothing to publish: set web.listen, mqtt.broker or output.file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := outputSinks()
	if err != nil {
		return err
	}

	var srv *web.Server
	if cfg.Web.Listen != "" {
		srv = web.New(Version, logger)
		sinks = append(sinks, srv)
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.New(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		}, logger)
		if err != nil {
			return err
		}
		if err := pub.Connect(ctx); err != nil {
			// Publish reconnects; the broker may come up later.
			logger.Warn("mqtt connect failed", "broker", cfg.MQTT.Broker, "error", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	s, err := newSession(logger)
	if err != nil {
		return err
	}
	if err := s.Connect(ctx); err != nil {
		s.Close()
		return err
	}

	listenErr := make(chan error, 1)
	if srv != nil {
		go func() {
			logger.Info("http listening", "addr", cfg.Web.Listen)
			listenErr <- srv.Listen(cfg.Web.Listen)
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("http shutdown failed", "error", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-listenErr:
			if err != nil {
				logger.Error("http server stopped", "error", err)
			}
			cancel()
		case <-runCtx.Done():
		}
	}()

	r := session.NewRunner(s, cfg.PollInterval, sinks...)
	err = r.Run(runCtx)
	logger.Info("stopped", "last_seq", r.Last().Seq)
	return err
}
