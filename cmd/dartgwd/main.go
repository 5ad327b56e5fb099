// Command dartgwd runs the DART pump-interface gateway: it opens the
// RS-485 transport, drives the protocol engine, and serves the supervisor
// request/response and event-push surfaces over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	gateway "github.com/ibramn/pump-protocol"
	"github.com/ibramn/pump-protocol/cmd/dartgwd/httpapi"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "dartgwd",
	Short: "DART pump-interface gateway daemon",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("device", "/dev/ttyUSB0", "RS-485 serial device path")
	flags.Int("baud", 9600, "Serial baud rate (9600, 19200, 38400, 57600, 115200)")
	flags.String("pump-address", "0x50", "Default pump address, decimal or 0x-prefixed hex")
	flags.String("bind", ":8080", "Host:port the supervisor HTTP surface listens on")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")

	v.BindPFlags(flags)
	v.SetEnvPrefix("DARTGW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("dartgwd: %w", err)
	}
	logrus.SetLevel(level)
	log := logrus.WithField("component", "dartgwd")

	addr, err := gateway.ParseAddress(v.GetString("pump-address"))
	if err != nil {
		return fmt.Errorf("dartgwd: %w", err)
	}

	cfg := gateway.Config{
		Device:      v.GetString("device"),
		Baud:        v.GetInt("baud"),
		PumpAddress: addr,
	}

	registry := prometheus.NewRegistry()
	engine := gateway.New(cfg, gateway.WithLogger(log), gateway.WithMetrics(registry))
	if err := engine.Open(); err != nil {
		return fmt.Errorf("dartgwd: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", httpapi.New(engine, log))
	httpSrv := &http.Server{Addr: v.GetString("bind"), Handler: mux}

	go func() {
		log.WithField("bind", httpSrv.Addr).Info("serving supervisor surface")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	cancel()
	engine.Wait()
	_ = engine.Close()
	return httpSrv.Shutdown(context.Background())
}
