// Command outlet-monitor records power reports from an outlet-side reporter
// into a five-minute timeline and serves its status over HTTP and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/archive"
	"github.com/sweeney/outlet-monitor/internal/cache"
	"github.com/sweeney/outlet-monitor/internal/config"
	"github.com/sweeney/outlet-monitor/internal/fanout"
	"github.com/sweeney/outlet-monitor/internal/gpio"
	"github.com/sweeney/outlet-monitor/internal/kafkabus"
	"github.com/sweeney/outlet-monitor/internal/logging"
	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/metrics"
	"github.com/sweeney/outlet-monitor/internal/mqtt"
	"github.com/sweeney/outlet-monitor/internal/status"
	"github.com/sweeney/outlet-monitor/internal/storage"
	"github.com/sweeney/outlet-monitor/internal/sweep"
	"github.com/sweeney/outlet-monitor/internal/timeline"
	"github.com/sweeney/outlet-monitor/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, "outlet-monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, log, os.Stdout); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

// loadTimeline reads the data file. A corrupt file is reported and replaced
// by an empty timeline; a migrated or repaired file is rewritten.
func loadTimeline(file *storage.File, log *zap.Logger) (*logic.Timeline, bool, error) {
	loaded, err := file.Load()
	var ce *storage.CorruptError
	switch {
	case errors.As(err, &ce):
		log.Warn("data file unreadable, starting empty", zap.String("path", ce.Path), zap.Error(ce.Err))
	case err != nil:
		return nil, false, fmt.Errorf("load data: %w", err)
	}

	rewrite := false
	if loaded.Legacy {
		log.Info("migrated legacy data file", zap.String("path", file.Path()), zap.Int("slots", loaded.Timeline.Len()))
		rewrite = true
	}
	if n := len(loaded.Repaired); n > 0 {
		log.Info("filled gaps in data file", zap.Int("slots", n))
		rewrite = true
	}
	return loaded.Timeline, rewrite, nil
}

func printStatus(w io.Writer, tl *logic.Timeline, now time.Time, grace time.Duration, loc *time.Location) {
	v := logic.Infer(tl, now, grace)
	if !v.HasLatest {
		fmt.Fprintf(w, "Status: %s, Slots: 0\n", v.Status)
		return
	}
	fmt.Fprintf(w, "Status: %s, Latest: %s %s, Slots: %d\n",
		v.Status, v.Latest.Slot.In(loc).Format("2006-01-02 15:04 MST"), v.Latest.State, tl.Len())
}

// buildSinks connects the optional external sinks. A sink whose backend is
// unreachable at startup is skipped with a warning.
func buildSinks(ctx context.Context, cfg *config.Config, pub mqtt.Publisher, log *zap.Logger) ([]fanout.Sink, []io.Closer) {
	var (
		sinks   []fanout.Sink
		closers []io.Closer
	)
	if pub != nil {
		sinks = append(sinks, mqtt.Sink{P: pub})
	}

	if cfg.RedisAddr != "" {
		s := cache.NewSink(cache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.RedisPrefix)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := s.Ping(pctx); err != nil {
			log.Warn("redis not reachable yet", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()
		sinks = append(sinks, s)
		closers = append(closers, s)
	}

	if cfg.PostgresDSN != "" {
		db, err := archive.Open(cfg.PostgresDSN)
		if err != nil {
			log.Warn("postgres archive disabled", zap.Error(err))
		} else {
			a := archive.New(db, log)
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := a.EnsureSchema(sctx)
			cancel()
			if err != nil {
				log.Warn("postgres archive disabled", zap.Error(err))
				db.Close()
			} else {
				sinks = append(sinks, a)
				closers = append(closers, db)
			}
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		s := kafkabus.NewSink(kafkabus.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		sinks = append(sinks, s)
		closers = append(closers, s)
	}
	return sinks, closers
}

func run(cfg *config.Config, log *zap.Logger, stdout io.Writer) error {
	file := storage.NewFile(cfg.DataFile)
	tl, rewrite, err := loadTimeline(file, log)
	if err != nil {
		return err
	}

	if cfg.PrintStatus {
		printStatus(stdout, tl, time.Now(), cfg.Grace, cfg.DisplayTZ)
		return nil
	}

	var reader gpio.Reader
	if cfg.ProbePin >= 0 {
		r, err := gpio.NewRealReader(cfg.ProbeChip, cfg.ProbePin, cfg.ProbeActiveLow)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		reader = r
	}

	m := metrics.New()
	tracker := status.NewTracker(time.Now(), status.Config{
		Rounding:    string(cfg.Rounding),
		GraceMs:     cfg.Grace.Milliseconds(),
		ExtraWaitMs: cfg.ExtraWait.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		DataFile:    cfg.DataFile,
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		DisplayTZ:   cfg.DisplayTZ.String(),
		Sinks:       cfg.Sinks(),
	}, nil)
	store := timeline.New(tl, file, log,
		timeline.WithRounding(cfg.Rounding),
		timeline.WithRecorder(m),
		timeline.WithRecorder(tracker))
	tracker.SetOutlet(store)

	if rewrite {
		if err := store.Flush(); err != nil {
			log.Warn("rewrite of data file failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MQTT is optional.
	var (
		publisher *mqtt.RealPublisher
		pub       mqtt.Publisher
		conn      mqtt.ConnectionStatus
	)
	if cfg.Broker != "" {
		publisher = mqtt.NewRealPublisher(mqtt.Options{
			Broker:        cfg.Broker,
			ClientID:      "outlet-monitor",
			Username:      cfg.MQTTUser,
			Password:      cfg.MQTTPassword,
			TopicTimeline: cfg.TimelineTopic,
			TopicSystem:   cfg.SystemTopic,
			BufferSize:    cfg.MQTTBuffer,
		}, log)
		pub, conn = publisher, publisher
		if cfg.ReportTopic != "" {
			if err := publisher.Subscribe(cfg.ReportTopic, 1, mqtt.ReportHandler(store, log.Named("mqtt"))); err != nil {
				log.Warn("report subscription failed", zap.String("topic", cfg.ReportTopic), zap.Error(err))
			}
		}
	}

	sinks, closers := buildSinks(ctx, cfg, pub, log)
	dispatcher := fanout.NewDispatcher(sinks, cfg.QueueSize, log, m)
	store.OnChange(dispatcher.Enqueue)
	dctx, dcancel := context.WithCancel(context.Background())
	defer dcancel()
	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(dctx)
		close(dispatchDone)
	}()

	d := &daemon{log: log, tracker: tracker, publisher: pub, conn: conn, now: time.Now}
	d.publishSystem("STARTUP", "")

	// Optional local power-sense probe.
	probeDone := make(chan struct{})
	if reader != nil {
		probe := gpio.NewProbe(reader, store, cfg.ProbeDebounce, log)
		ticker := time.NewTicker(cfg.ProbePoll)
		defer ticker.Stop()
		go func() {
			probe.Run(ctx, ticker.C)
			close(probeDone)
		}()
		log.Info("probe started", zap.String("chip", cfg.ProbeChip), zap.Int("pin", cfg.ProbePin), zap.Duration("poll", cfg.ProbePoll))
	} else {
		close(probeDone)
	}

	sched := &sweep.Scheduler{
		Store:     store,
		ExtraWait: cfg.ExtraWait,
		Log:       log,
		Recorder:  m,
	}
	sweepDone := make(chan error, 1)
	go func() { sweepDone <- sched.Run(ctx) }()

	srv := web.New(store, tracker, web.Options{
		Addr:      cfg.HTTPAddr,
		Grace:     cfg.Grace,
		DisplayTZ: cfg.DisplayTZ,
		Log:       log,
		Metrics:   m,
	})
	httpErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	log.Info("started",
		zap.String("http", cfg.HTTPAddr),
		zap.String("data", cfg.DataFile),
		zap.Int("slots", store.Len()),
		zap.String("rounding", string(cfg.Rounding)),
		zap.Duration("grace", cfg.Grace),
		zap.Duration("extra_wait", cfg.ExtraWait),
		zap.Strings("sinks", dispatcher.Sinks()))

	refresh := time.NewTicker(10 * time.Second)
	defer refresh.Stop()
	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reason, loopErr := d.runLoop(refresh.C, heartbeat, sigCh, httpErr)

	// Stop producers, then save, then tell the world, then drain.
	cancel()
	<-probeDone
	if err := <-sweepDone; err != nil {
		log.Error("final save failed", zap.Error(err))
	}
	d.publishSystem("SHUTDOWN", reason)

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	scancel()

	dcancel()
	<-dispatchDone
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn("close sink", zap.Error(err))
		}
	}
	if publisher != nil {
		publisher.Close()
	}
	log.Info("stopped", zap.String("reason", reason), zap.Int("dropped_events", dispatcher.Dropped()))
	return loopErr
}

// daemon holds what the main loop needs to report on itself.
type daemon struct {
	log       *zap.Logger
	tracker   *status.Tracker
	publisher mqtt.Publisher        // nil when MQTT is disabled
	conn      mqtt.ConnectionStatus // nil when MQTT is disabled
	now       func() time.Time
}

func (d *daemon) snapshot() status.Snapshot {
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
	return d.tracker.Snapshot()
}

// publishSystem publishes a lifecycle event carrying a full status snapshot.
func (d *daemon) publishSystem(event, reason string) {
	if d.publisher == nil {
		return
	}
	snap := d.snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.log.Warn("system event publish failed", zap.String("event", event), zap.Error(err))
		return
	}
	d.log.Info("published system event", zap.String("event", event))
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runLoop refreshes connection state on every tick, publishes heartbeats and
// returns the shutdown reason once a signal arrives or the HTTP server fails.
func (d *daemon) runLoop(tick, heartbeat <-chan time.Time, sig <-chan os.Signal, fatal <-chan error) (string, error) {
	for {
		select {
		case s := <-sig:
			d.log.Info("shutting down", zap.String("signal", s.String()))
			return signalName(s), nil

		case err := <-fatal:
			d.log.Error("http server failed", zap.Error(err))
			return "HTTP_ERROR", fmt.Errorf("http server: %w", err)

		case <-heartbeat:
			snap := d.snapshot()
			d.log.Info("heartbeat",
				zap.Duration("uptime", snap.Uptime()),
				zap.String("status", string(snap.Verdict.Status)),
				zap.Int("slots", snap.Slots),
				zap.Bool("mqtt_connected", snap.MQTTConnected))
			d.publishSystem("HEARTBEAT", "")

		case <-tick:
			if d.conn != nil {
				d.tracker.SetMQTTConnected(d.conn.IsConnected())
			}
		}
	}
}
