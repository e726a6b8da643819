package messagequeue

import (
	"encoding/json"
	"fmt"
)

// TaskSubmittedPayload is the schema for tasks.submitted messages.
// The descriptors live in the store; workers load the task by id so that
// the queue message stays a pointer, not a copy of mutable state.
type TaskSubmittedPayload struct {
	TaskID string `json:"task_id"`
}

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch subject {
	case SubjectTaskSubmitted:
		target = &TaskSubmittedPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
