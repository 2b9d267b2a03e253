// Command outlet-reporter runs on a machine powered from the monitored outlet
// and reports to outlet-monitor once per slot for as long as it has power.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logging"
	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/reporter"
)

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func main() {
	server := flag.String("server", envOr("OUTLET_SERVER", "http://localhost:10000"), "Base URL of outlet-monitor")
	interval := flag.Duration("interval", logic.SlotWidth, "Report interval, aligned to the clock")
	offset := flag.Duration("offset", 5*time.Second, "Delay after each mark before reporting")
	clientIP := flag.String("client-ip", envOr("OUTLET_CLIENT_IP", ""), "Value sent as client_ip")
	retries := flag.Int("retries", 3, "Retries per report on network or server errors")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	once := flag.Bool("once", false, "Send one report and exit")
	logLevel := flag.String("log-level", envOr("OUTLET_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", envOr("OUTLET_LOG_FORMAT", "json"), "Log format: json or console")
	flag.Parse()

	log, err := logging.New(*logLevel, *logFormat, "outlet-reporter")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	client := reporter.NewClient(*server, reporter.Options{
		Timeout:  *timeout,
		Retries:  *retries,
		ClientIP: *clientIP,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		res, err := client.Report(ctx, time.Now())
		if err != nil {
			log.Fatal("report failed", zap.Error(err))
		}
		log.Info("reported", zap.String("slot", res.Slot), zap.Int("changes", res.Changes))
		return
	}

	log.Info("started", zap.String("server", *server), zap.Duration("interval", *interval), zap.Duration("offset", *offset))
	r := &reporter.Reporter{Client: client, Interval: *interval, Offset: *offset, Log: log}
	if err := r.Run(ctx); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
	log.Info("stopped")
}
