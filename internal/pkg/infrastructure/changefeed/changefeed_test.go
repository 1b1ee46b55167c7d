package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
)

type row struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func TestThatSubscriberOnlyReceivesRequestedKinds(t *testing.T) {
	broker := NewInMemoryBroker(logging.NewLogger())
	defer broker.Close()

	sub, err := broker.Subscribe(context.Background(), TableIncidents, Update)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	publish(t, broker, TableIncidents, Insert, row{ID: "a", Status: "pending"})
	publish(t, broker, TableIncidents, Update, row{ID: "a", Status: "resolved"})

	event := receive(t, sub)
	assert.Equal(t, Update, event.Kind)

	r := row{}
	require.NoError(t, event.DecodeNew(&r))
	assert.Equal(t, "resolved", r.Status)
}

func TestThatEventsAreDeliveredInPublishOrder(t *testing.T) {
	broker := NewInMemoryBroker(logging.NewLogger())
	defer broker.Close()

	sub, err := broker.Subscribe(context.Background(), TableIncidents)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ids := []string{"1", "2", "3", "4", "5"}
	for _, id := range ids {
		publish(t, broker, TableIncidents, Insert, row{ID: id})
	}

	for _, id := range ids {
		r := row{}
		require.NoError(t, receive(t, sub).DecodeNew(&r))
		assert.Equal(t, id, r.ID)
	}
}

func TestThatTablesAreIsolated(t *testing.T) {
	broker := NewInMemoryBroker(logging.NewLogger())
	defer broker.Close()

	sub, err := broker.Subscribe(context.Background(), TableUnits)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	publish(t, broker, TableIncidents, Insert, row{ID: "incident"})
	publish(t, broker, TableUnits, Insert, row{ID: "unit"})

	event := receive(t, sub)
	assert.Equal(t, TableUnits, event.Table)
}

func TestThatUnsubscribeClosesTheStream(t *testing.T) {
	broker := NewInMemoryBroker(logging.NewLogger())
	defer broker.Close()

	sub, err := broker.Subscribe(context.Background(), TableUnits)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events:
		assert.False(t, ok, "expected the event stream to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("event stream was not closed after unsubscribe")
	}
}

func TestThatDecodeFailsForMissingRow(t *testing.T) {
	event, err := NewEvent(TableUnits, Delete, nil, row{ID: "gone"})
	require.NoError(t, err)

	assert.ErrorIs(t, event.DecodeNew(&row{}), ErrEmptyRow)

	r := row{}
	assert.NoError(t, event.DecodeOld(&r))
	assert.Equal(t, "gone", r.ID)
}

func publish(t *testing.T, p Publisher, table string, kind EventKind, r row) {
	event, err := NewEvent(table, kind, r, nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(event))
}

func receive(t *testing.T, sub *Subscription) Event {
	select {
	case event, ok := <-sub.Events:
		require.True(t, ok, "event stream closed unexpectedly")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return Event{}
}
