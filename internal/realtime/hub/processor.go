package hub

import (
	"context"
	"sync"
	"time"

	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/observability/metrics"
	"github.com/fieldsync/backend/pkg/event"
)

type inboundMessage struct {
	client *Client
	env    *event.Envelope
}

// Processor decouples the per-connection read pumps from command handling
// with a bounded worker pool. A full queue drops the message rather than
// stalling the reader.
type Processor struct {
	queue    chan inboundMessage
	workers  int
	router   CommandRouter
	log      *logger.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

func NewProcessor(workers, queueSize int, router CommandRouter, log *logger.Logger) *Processor {
	return &Processor{
		queue:   make(chan inboundMessage, queueSize),
		workers: workers,
		router:  router,
		log:     log,
		done:    make(chan struct{}),
	}
}

func (p *Processor) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Processor) Submit(client *Client, env *event.Envelope) {
	select {
	case p.queue <- inboundMessage{client: client, env: env}:
		metrics.RealtimeProcessorQueueSize.Set(float64(len(p.queue)))
	default:
		metrics.RealtimeDroppedMessages.WithLabelValues(string(env.Type)).Inc()
		p.log.Warnf("processor queue full, dropping message type=%s user_id=%s", env.Type, client.userID)
	}
}

func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Processor) worker(id int) {
	defer p.wg.Done()
	p.log.Debugf("processor worker started id=%d", id)

	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			metrics.RealtimeProcessorQueueSize.Set(float64(len(p.queue)))
			p.process(msg)
		}
	}
}

func (p *Processor) process(msg inboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RealtimeErrors.WithLabelValues("processor_panic").Inc()
			p.log.Errorf("panic while processing message type=%s user_id=%s: %v", msg.env.Type, msg.client.userID, r)
		}
	}()

	start := time.Now()
	metrics.RealtimeMessagesTotal.WithLabelValues(string(msg.env.Type)).Inc()

	if err := p.router.Route(msg.client.ctx, msg.client, msg.env); err != nil {
		metrics.RealtimeErrors.WithLabelValues("route").Inc()
		p.log.Warnf("message handling failed type=%s user_id=%s: %v", msg.env.Type, msg.client.userID, err)
	}

	metrics.RealtimeMessageProcessingDurationSeconds.WithLabelValues(string(msg.env.Type)).Observe(time.Since(start).Seconds())
}

// CommandRouter dispatches a decoded envelope from a connected client.
type CommandRouter interface {
	Route(ctx context.Context, client *Client, env *event.Envelope) error
}
