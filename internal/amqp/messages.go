package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EmailJobMessage announces a queued email. It carries only the job id;
// the worker loads the job from the database.
type EmailJobMessage struct {
	JobID     int64     `json:"jobId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEmailJobMessage creates a message for a queued job
func NewEmailJobMessage(jobID int64) *EmailJobMessage {
	return &EmailJobMessage{
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EmailJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EmailJobMessageFromJSON decodes a message and rejects ones without a job id
func EmailJobMessageFromJSON(data []byte) (*EmailJobMessage, error) {
	var msg EmailJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID <= 0 {
		return nil, fmt.Errorf("message has no job id")
	}
	return &msg, nil
}
