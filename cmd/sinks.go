package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/analytics"
	"github.com/sells-group/caselink/internal/graph"
	"github.com/sells-group/caselink/internal/notify"
)

// initSinks connects the optional graph and notification sinks. The returned
// close func releases every sink that was opened.
func initSinks(ctx context.Context) ([]analytics.Sink, func(), error) {
	var (
		sinks   []analytics.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Graph.Enabled {
		g, err := graph.NewSink(ctx, cfg.Graph)
		if err != nil {
			closeAll()
			return nil, nil, eris.Wrap(err, "init graph sink")
		}
		sinks = append(sinks, g)
		closers = append(closers, func() {
			if err := g.Close(context.WithoutCancel(ctx)); err != nil {
				zap.L().Warn("close graph sink", zap.Error(err))
			}
		})
	}

	if cfg.Notify.Enabled {
		p, err := notify.NewProducer(cfg.Notify)
		if err != nil {
			closeAll()
			return nil, nil, eris.Wrap(err, "init notify sink")
		}
		sinks = append(sinks, p)
		closers = append(closers, func() {
			if err := p.Close(); err != nil {
				zap.L().Warn("close notify sink", zap.Error(err))
			}
		})
	}

	return sinks, closeAll, nil
}
