// Package config parses outlet-monitor flags. Every flag can also be set
// through an OUTLET_* environment variable; flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // display zones on hosts without zoneinfo

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// Config holds the daemon settings.
type Config struct {
	HTTPAddr  string
	DataFile  string
	Rounding  logic.Rounding
	Grace     time.Duration
	ExtraWait time.Duration
	Heartbeat time.Duration
	DisplayTZ *time.Location
	LogLevel  string
	LogFormat string
	// PrintStatus prints the inferred status from the data file and exits.
	PrintStatus bool

	Broker        string
	MQTTUser      string
	MQTTPassword  string
	ReportTopic   string
	TimelineTopic string
	SystemTopic   string
	MQTTBuffer    int

	ProbePin       int
	ProbeChip      string
	ProbePoll      time.Duration
	ProbeDebounce  time.Duration
	ProbeActiveLow bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	PostgresDSN string

	KafkaBrokers []string
	KafkaTopic   string

	QueueSize int
}

// env returns the value of OUTLET_<NAME>, or def.
func env(getenv func(string) string, name, def string) string {
	if v := getenv("OUTLET_" + name); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, name string, def int) (int, error) {
	v := env(getenv, name, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("OUTLET_%s: %w", name, err)
	}
	return n, nil
}

func envDuration(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := env(getenv, name, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("OUTLET_%s: %w", name, err)
	}
	return d, nil
}

func envBool(getenv func(string) string, name string, def bool) (bool, error) {
	v := env(getenv, name, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("OUTLET_%s: %w", name, err)
	}
	return b, nil
}

// Load parses args (without the program name). getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	// PORT is honoured for hosting platforms that assign one.
	httpDefault := ":10000"
	if p := getenv("PORT"); p != "" {
		httpDefault = ":" + p
	}

	var errs []error
	i := func(name string, def int) int {
		n, err := envInt(getenv, name, def)
		errs = append(errs, err)
		return n
	}
	d := func(name string, def time.Duration) time.Duration {
		v, err := envDuration(getenv, name, def)
		errs = append(errs, err)
		return v
	}
	b := func(name string, def bool) bool {
		v, err := envBool(getenv, name, def)
		errs = append(errs, err)
		return v
	}
	s := func(name, def string) string { return env(getenv, name, def) }

	fs := flag.NewFlagSet("outlet-monitor", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	cfg := &Config{}
	var rounding, tz, kafkaBrokers string

	fs.StringVar(&cfg.HTTPAddr, "http", s("HTTP", httpDefault), "HTTP listen address")
	fs.StringVar(&cfg.DataFile, "data", s("DATA", "power_data.json"), "Timeline data file")
	fs.StringVar(&rounding, "rounding", s("ROUNDING", string(logic.RoundFloor)), "Slot rounding: floor or nearest")
	fs.DurationVar(&cfg.Grace, "grace", d("GRACE", 60*time.Second), "Grace period after an expected report before the outlet is OFF")
	fs.DurationVar(&cfg.ExtraWait, "extra-wait", d("EXTRA_WAIT", 60*time.Second), "Delay after each grid mark before sweeping")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", d("HEARTBEAT", 15*time.Minute), "MQTT heartbeat interval (0 to disable)")
	fs.StringVar(&tz, "display-tz", s("DISPLAY_TZ", "UTC"), "IANA time zone for the status page")
	fs.StringVar(&cfg.LogLevel, "log-level", s("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", s("LOG_FORMAT", "json"), "Log format: json or console")
	fs.BoolVar(&cfg.PrintStatus, "print-status", false, "Print the inferred status from the data file and exit")

	fs.StringVar(&cfg.Broker, "broker", s("BROKER", ""), "MQTT broker address (empty disables MQTT)")
	fs.StringVar(&cfg.MQTTUser, "mqtt-user", s("MQTT_USER", ""), "MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", s("MQTT_PASSWORD", ""), "MQTT password")
	fs.StringVar(&cfg.ReportTopic, "mqtt-report-topic", s("MQTT_REPORT_TOPIC", "power/outlet/report"), "Topic carrying power reports (empty to disable)")
	fs.StringVar(&cfg.TimelineTopic, "mqtt-timeline-topic", s("MQTT_TIMELINE_TOPIC", "power/outlet/timeline"), "Topic for slot changes")
	fs.StringVar(&cfg.SystemTopic, "mqtt-system-topic", s("MQTT_SYSTEM_TOPIC", "power/outlet/system"), "Topic for lifecycle events")
	fs.IntVar(&cfg.MQTTBuffer, "mqtt-buffer", i("MQTT_BUFFER", 100), "Messages kept while disconnected")

	fs.IntVar(&cfg.ProbePin, "probe-pin", i("PROBE_PIN", -1), "BCM pin of a local power-sense input (-1 disables)")
	fs.StringVar(&cfg.ProbeChip, "probe-chip", s("PROBE_CHIP", "gpiochip0"), "GPIO chip of the probe pin")
	fs.DurationVar(&cfg.ProbePoll, "probe-poll", d("PROBE_POLL", time.Second), "Probe polling interval")
	fs.DurationVar(&cfg.ProbeDebounce, "probe-debounce", d("PROBE_DEBOUNCE", 2*time.Second), "Probe debounce duration")
	fs.BoolVar(&cfg.ProbeActiveLow, "probe-active-low", b("PROBE_ACTIVE_LOW", true), "Probe reads 0 when powered")

	fs.StringVar(&cfg.RedisAddr, "redis", s("REDIS", ""), "Redis address for the status cache (empty disables)")
	fs.StringVar(&cfg.RedisPassword, "redis-password", s("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", i("REDIS_DB", 0), "Redis database")
	fs.StringVar(&cfg.RedisPrefix, "redis-prefix", s("REDIS_PREFIX", "outlet"), "Redis key prefix")

	fs.StringVar(&cfg.PostgresDSN, "postgres", s("POSTGRES", ""), "Postgres DSN for the slot archive (empty disables)")

	fs.StringVar(&kafkaBrokers, "kafka", s("KAFKA", ""), "Comma-separated Kafka brokers (empty disables)")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", s("KAFKA_TOPIC", "outlet.timeline"), "Kafka topic for slot changes")

	fs.IntVar(&cfg.QueueSize, "queue", i("QUEUE", 256), "Sink delivery queue size")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	r, err := logic.ParseRounding(rounding)
	if err != nil {
		return nil, err
	}
	cfg.Rounding = r

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("display-tz: %w", err)
	}
	cfg.DisplayTZ = loc

	for _, b := range strings.Split(kafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DataFile == "":
		return errors.New("data file must be set")
	case c.Grace < 0:
		return fmt.Errorf("grace must not be negative, got %v", c.Grace)
	case c.ExtraWait < 0 || c.ExtraWait >= logic.SlotWidth:
		return fmt.Errorf("extra-wait must be in [0, %v), got %v", logic.SlotWidth, c.ExtraWait)
	case c.Heartbeat < 0:
		return fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat)
	case c.ProbePin >= 0 && c.ProbePoll <= 0:
		return fmt.Errorf("probe-poll must be positive, got %v", c.ProbePoll)
	case c.MQTTBuffer < 1:
		return fmt.Errorf("mqtt-buffer must be at least 1, got %d", c.MQTTBuffer)
	case c.QueueSize < 1:
		return fmt.Errorf("queue must be at least 1, got %d", c.QueueSize)
	}
	return nil
}

// Sinks lists the enabled external sinks.
func (c *Config) Sinks() []string {
	var out []string
	if c.Broker != "" {
		out = append(out, "mqtt")
	}
	if c.RedisAddr != "" {
		out = append(out, "redis")
	}
	if c.PostgresDSN != "" {
		out = append(out, "postgres")
	}
	if len(c.KafkaBrokers) > 0 {
		out = append(out, "kafka")
	}
	return out
}
