package changefeed

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

//EventKind is the kind of write that produced a change event
type EventKind string

//The kinds of change events a table feed may deliver
const (
	Insert EventKind = "INSERT"
	Update EventKind = "UPDATE"
	Delete EventKind = "DELETE"
)

//Names of the tables that emit change events
const (
	TableUnits     = "units"
	TableIncidents = "incidents"
)

//Event carries the full new and/or old row of a committed write. There are no partial deltas.
type Event struct {
	Table       string          `json:"table"`
	Kind        EventKind       `json:"type"`
	New         json.RawMessage `json:"new,omitempty"`
	Old         json.RawMessage `json:"old,omitempty"`
	CommittedAt time.Time       `json:"commit_timestamp"`
}

//ErrEmptyRow is returned when decoding a row that the event does not carry
var ErrEmptyRow = errors.New("change event does not carry the requested row")

//NewEvent encodes the given rows into a change event. Either row may be nil.
func NewEvent(table string, kind EventKind, newRow, oldRow interface{}) (Event, error) {
	event := Event{
		Table:       table,
		Kind:        kind,
		CommittedAt: time.Now().UTC(),
	}

	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return event, fmt.Errorf("failed to encode new %s row: %w", table, err)
		}
		event.New = b
	}

	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return event, fmt.Errorf("failed to encode old %s row: %w", table, err)
		}
		event.Old = b
	}

	return event, nil
}

//DecodeNew unmarshals the new row of the event into v
func (e Event) DecodeNew(v interface{}) error {
	if len(e.New) == 0 {
		return ErrEmptyRow
	}
	return json.Unmarshal(e.New, v)
}

//DecodeOld unmarshals the old row of the event into v
func (e Event) DecodeOld(v interface{}) error {
	if len(e.Old) == 0 {
		return ErrEmptyRow
	}
	return json.Unmarshal(e.Old, v)
}

func (e Event) String() string {
	return fmt.Sprintf("%s on %s", e.Kind, e.Table)
}
