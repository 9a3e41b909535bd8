package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics builds the notification topic hierarchy:
//
//	<prefix>/<chamber>/status          retained online/offline
//	<prefix>/<chamber>/alerts          backend alerts and recoveries
//	<prefix>/<chamber>/state/<name>    retained actuator state
type Topics struct {
	Prefix    string
	ChamberID string
}

func (t Topics) Status() string { return fmt.Sprintf("%s/%s/status", t.Prefix, t.ChamberID) }
func (t Topics) Alerts() string { return fmt.Sprintf("%s/%s/alerts", t.Prefix, t.ChamberID) }
func (t Topics) State(actuator string) string {
	return fmt.Sprintf("%s/%s/state/%s", t.Prefix, t.ChamberID, actuator)
}

// event is the common envelope of every notification payload.
type event struct {
	EventID   string    `json:"event_id"`
	Chamber   string    `json:"chamber"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(chamberID, eventType string) event {
	return event{
		EventID:   uuid.NewString(),
		Chamber:   chamberID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

type alertMessage struct {
	event
	Failures       int `json:"failures"`
	QueuedReadings int `json:"queued_readings"`
}

type stateMessage struct {
	event
	Actuator string `json:"actuator"`
	On       bool   `json:"on"`
}

type statusMessage struct {
	event
	Status string `json:"status"`
}

func alertPayload(chamberID string, failures, queuedReadings int) []byte {
	return mustMarshal(alertMessage{
		event:          newEvent(chamberID, "backend_alert"),
		Failures:       failures,
		QueuedReadings: queuedReadings,
	})
}

func recoveryPayload(chamberID string) []byte {
	return mustMarshal(newEvent(chamberID, "backend_recovery"))
}

func statePayload(chamberID, actuator string, on bool) []byte {
	return mustMarshal(stateMessage{
		event:    newEvent(chamberID, "state_change"),
		Actuator: actuator,
		On:       on,
	})
}

func statusPayload(chamberID, status string) []byte {
	return mustMarshal(statusMessage{
		event:  newEvent(chamberID, "status"),
		Status: status,
	})
}

// mustMarshal cannot fail for these fixed shapes.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
