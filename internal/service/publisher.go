package service

import (
	"context"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
)

// FanoutPublisher hands every event to each sink in order.
type FanoutPublisher struct {
	sinks []engine.EventSink
}

// NewFanoutPublisher drops nil sinks.
func NewFanoutPublisher(sinks ...engine.EventSink) *FanoutPublisher {
	p := &FanoutPublisher{}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

func (p *FanoutPublisher) Publish(ctx context.Context, ev domain.OrderEvent) {
	for _, s := range p.sinks {
		s.Publish(ctx, ev)
	}
}
