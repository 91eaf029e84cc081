package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pubflow/pubflow-go/contracts"
)

// fakeChannel is an in-memory Channel implementation. Tests drive broker
// behavior by invoking ack/nack/fireClose and by configuring publish or
// declare failures.
type fakeChannel struct {
	mu sync.Mutex

	confirmMode bool
	confirmErr  error

	seq        uint64
	published  []contracts.OutboundMessage
	publishErr func(n int) error // n is 1-based publish attempt number
	attempts   int

	onAck   func(uint64, bool)
	onNack  func(uint64, bool)
	onClose func(error)

	closed     bool
	closeCalls int
	closeErr   error

	queueSpecs    []contracts.QueueSpecification
	queueInfo     contracts.QueueInfo
	declareErr    error
	exchangeSpecs []contracts.ExchangeSpecification
	bindings      []contracts.BindingSpecification
	unbindings    []contracts.BindingSpecification
	purged        int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{}
}

func (c *fakeChannel) Confirm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confirmErr != nil {
		return c.confirmErr
	}
	c.confirmMode = true
	return nil
}

func (c *fakeChannel) NextPublishSeqNo() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq + 1
}

func (c *fakeChannel) Publish(ctx context.Context, msg contracts.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.publishErr != nil {
		if err := c.publishErr(c.attempts); err != nil {
			return err
		}
	}
	c.seq++
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) ConfirmListener(onAck, onNack func(deliveryTag uint64, multiple bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAck = onAck
	c.onNack = onNack
}

func (c *fakeChannel) CloseListener(onClose func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = onClose
}

func (c *fakeChannel) DeclareQueue(spec contracts.QueueSpecification) (contracts.QueueInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return contracts.QueueInfo{}, c.declareErr
	}
	c.queueSpecs = append(c.queueSpecs, spec)
	info := c.queueInfo
	if info.Name == "" {
		info.Name = spec.Name
	}
	return info, nil
}

func (c *fakeChannel) DeclareExchange(spec contracts.ExchangeSpecification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.exchangeSpecs = append(c.exchangeSpecs, spec)
	return nil
}

func (c *fakeChannel) BindQueue(spec contracts.BindingSpecification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.bindings = append(c.bindings, spec)
	return nil
}

func (c *fakeChannel) UnbindQueue(spec contracts.BindingSpecification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.unbindings = append(c.unbindings, spec)
	return nil
}

func (c *fakeChannel) DeleteQueue(spec contracts.QueueDeleteSpecification) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return 0, c.declareErr
	}
	return c.purged, nil
}

func (c *fakeChannel) DeleteExchange(spec contracts.ExchangeDeleteSpecification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.declareErr
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	c.closed = true
	return c.closeErr
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ack simulates a broker acknowledgment arriving on the notification pump.
func (c *fakeChannel) ack(tag uint64, multiple bool) {
	c.mu.Lock()
	onAck := c.onAck
	c.mu.Unlock()
	if onAck != nil {
		onAck(tag, multiple)
	}
}

// nack simulates a broker rejection.
func (c *fakeChannel) nack(tag uint64, multiple bool) {
	c.mu.Lock()
	onNack := c.onNack
	c.mu.Unlock()
	if onNack != nil {
		onNack(tag, multiple)
	}
}

// fireClose simulates an abnormal channel shutdown.
func (c *fakeChannel) fireClose(err error) {
	c.mu.Lock()
	onClose := c.onClose
	c.closed = true
	c.mu.Unlock()
	if onClose != nil {
		onClose(err)
	}
}

func (c *fakeChannel) publishedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

// waitPublished blocks until n messages have been published on the channel.
func (c *fakeChannel) waitPublished(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.publishedCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d published messages, got %d", n, c.publishedCount())
}

// fakeProvider hands out a queue of prepared channels, or fresh fakes once
// the queue is exhausted.
type fakeProvider struct {
	mu       sync.Mutex
	prepared []*fakeChannel
	created  []*fakeChannel
	err      error
	calls    int
}

func (p *fakeProvider) Channel(ctx context.Context) (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	var ch *fakeChannel
	if len(p.prepared) > 0 {
		ch = p.prepared[0]
		p.prepared = p.prepared[1:]
	} else {
		ch = newFakeChannel()
	}
	p.created = append(p.created, ch)
	return ch, nil
}

func providerFor(channels ...*fakeChannel) *fakeProvider {
	return &fakeProvider{prepared: channels}
}
