package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

type fakeChannel struct {
	declared   []string
	durable    bool
	published  []amqp.Publishing
	keys       []string
	declareErr error
	publishErr error
	closed     int
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	f.durable = durable
	return amqp.Queue{Name: name}, f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func TestPublishLedgerEvent(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultQueue}, ch.declared)
	assert.True(t, ch.durable)

	ev := library.LedgerEvent{
		Kind: library.EventReturned, LibraryID: 2, BookID: 7, UserID: 3,
		Date: library.MustParseDate("2024-01-22"), DaysLate: 7, LateFee: "3.50",
	}
	require.NoError(t, p.PublishLedgerEvent(context.Background(), ev))

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, DefaultQueue, ch.keys[0])
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, "returned", pub.Type)
	assert.NotEmpty(t, pub.MessageId)

	msg, err := Decode(pub.Body)
	require.NoError(t, err)
	assert.Equal(t, pub.MessageId, msg.ID)
	assert.Equal(t, library.EventReturned, msg.Event.Kind)
	assert.Equal(t, "2024-01-22", msg.Event.Date.String())
	assert.Equal(t, "3.50", msg.Event.LateFee)
	assert.Contains(t, string(pub.Body), `"late_fee":"3.50"`)
}

func TestPublishErrors(t *testing.T) {
	_, err := newPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "ledger.test")
	assert.ErrorContains(t, err, "declare ledger.test")

	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := newPublisher(ch, "ledger.test")
	require.NoError(t, err)
	err = p.PublishLedgerEvent(context.Background(), library.LedgerEvent{Kind: library.EventCheckedOut})
	assert.ErrorContains(t, err, "publish checked_out")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, ch.closed)
	assert.Error(t, p.PublishLedgerEvent(context.Background(), library.LedgerEvent{Kind: library.EventReserved}))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}
