package gpio

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/timeline"
)

// Ingester accepts observations from the probe.
type Ingester interface {
	Ingest(obs logic.Observation) (timeline.Result, error)
}

// Source is the observation source name used by the probe.
const Source = "gpio"

// Probe polls a Reader and reports power as ON observations while the
// debounced input is ON. An OFF input reports nothing; the sweep records OFF
// once reports stop.
type Probe struct {
	reader   Reader
	ingest   Ingester
	debounce *logic.Debouncer
	log      *zap.Logger
	now      func() time.Time
}

// NewProbe creates a probe that requires a reading to hold for debounce.
func NewProbe(r Reader, in Ingester, debounce time.Duration, log *zap.Logger) *Probe {
	if log == nil {
		log = zap.NewNop()
	}
	return &Probe{
		reader:   r,
		ingest:   in,
		debounce: logic.NewDebouncer(debounce),
		log:      log.Named("gpio"),
		now:      time.Now,
	}
}

// Run samples on every tick until ctx is done.
func (p *Probe) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			p.Sample()
		}
	}
}

// Sample takes one reading and ingests ON if the debounced input is ON.
func (p *Probe) Sample() {
	t := p.now()
	on, err := p.reader.Read()
	if err != nil {
		p.log.Warn("read failed", zap.Error(err))
		return
	}

	if tr := p.debounce.Process(on, t); tr != nil {
		p.log.Info("power transition", zap.String("from", string(tr.From)), zap.String("to", string(tr.To)))
	}
	if !p.debounce.IsBaselined() || p.debounce.Current() != logic.StateOn {
		return
	}

	if _, err := p.ingest.Ingest(logic.Observation{At: t, State: logic.StateOn, Source: Source}); err != nil {
		p.log.Error("ingest failed", zap.Error(err))
	}
}
