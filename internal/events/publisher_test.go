package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

type fakeChannel struct {
	declared   []string
	published  []amqp091.Publishing
	keys       []string
	declareErr error
	publishErr error
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func sampleSnapshot() *rates.Snapshot {
	return rates.NewSnapshot(currency.USD, map[currency.Code]decimal.Decimal{
		currency.GBP: decimal.RequireFromString("0.79"),
		currency.EUR: decimal.RequireFromString("0.92"),
	}, time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC), "Mon, 03 Feb 2025 00:00:01 +0000")
}

func TestRatesRefreshedMessage(t *testing.T) {
	msg := NewRatesRefreshed(sampleSnapshot())
	assert.Equal(t, []currency.Code{currency.EUR, currency.GBP}, msg.Currencies)
	assert.Equal(t, "0.92", msg.Rates["EUR"])

	body, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"base":"USD"`)

	back, err := RatesRefreshedFromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, msg.FetchedAt, back.FetchedAt)

	_, err = RatesRefreshedFromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestPublisherDeclaresAndPublishes(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, Options{Exchange: "budgetfx", RoutingKey: "rates.refreshed"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"budgetfx:topic"}, ch.declared)

	require.NoError(t, p.PublishRatesRefreshed(context.Background(), sampleSnapshot()))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "budgetfx/rates.refreshed", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp091.Persistent, ch.published[0].DeliveryMode)
}

func TestPublisherErrors(t *testing.T) {
	_, err := newPublisher(&fakeChannel{declareErr: errors.New("access refused")}, Options{Exchange: "x"}, zerolog.Nop())
	assert.ErrorContains(t, err, "declare exchange")

	p, err := newPublisher(&fakeChannel{publishErr: errors.New("channel closed")}, Options{Exchange: "x"}, zerolog.Nop())
	require.NoError(t, err)
	assert.ErrorContains(t, p.PublishRatesRefreshed(context.Background(), sampleSnapshot()), "publish message")
}

type recordingPublisher struct {
	got chan *rates.Snapshot
}

func (r *recordingPublisher) PublishRatesRefreshed(_ context.Context, snap *rates.Snapshot) error {
	r.got <- snap
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestListenerPublishesInstalledSnapshot(t *testing.T) {
	pub := &recordingPublisher{got: make(chan *rates.Snapshot, 1)}
	snap := sampleSnapshot()
	Listener(context.Background(), pub, zerolog.Nop())(snap)

	select {
	case got := <-pub.got:
		assert.Same(t, snap, got)
	case <-time.After(time.Second):
		t.Fatal("listener did not publish")
	}
}
