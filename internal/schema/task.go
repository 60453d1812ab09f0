package schema

import "encoding/json"

// TaskModuleRequest is the value of a task/fetch or task/submit invoke.
// Data is whatever the invoking button or action carried: usually an
// object, but hero card invoke buttons may send a bare string.
type TaskModuleRequest struct {
	Data    json.RawMessage    `json:"data,omitempty"`
	Context *TaskModuleContext `json:"context,omitempty"`
}

// DataMap returns Data as an object, or nil when it is not one.
func (r TaskModuleRequest) DataMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(r.Data, &m); err != nil {
		return nil
	}
	return m
}

// DataID returns the dialog id in Data: the string itself, or the string
// under the "data" key of an object.
func (r TaskModuleRequest) DataID() string {
	var id string
	if err := json.Unmarshal(r.Data, &id); err == nil {
		return id
	}
	id, _ = r.DataMap()["data"].(string)
	return id
}

// TaskModuleContext carries the Teams theme of the caller.
type TaskModuleContext struct {
	Theme string `json:"theme,omitempty"`
}

// Task module response types.
const (
	TaskResponseContinue = "continue"
	TaskResponseMessage  = "message"
)

// TaskModuleTaskInfo describes the dialog to open.
type TaskModuleTaskInfo struct {
	Title       string      `json:"title,omitempty"`
	Height      any         `json:"height,omitempty"`
	Width       any         `json:"width,omitempty"`
	URL         string      `json:"url,omitempty"`
	FallbackURL string      `json:"fallbackUrl,omitempty"`
	Card        *Attachment `json:"card,omitempty"`
}

// TaskModuleResponse is the body of a task module invoke response.
type TaskModuleResponse struct {
	Task TaskModuleResponseBase `json:"task"`
}

// TaskModuleResponseBase holds the task response type and value.
type TaskModuleResponseBase struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

// TaskContinue opens or replaces a dialog with info.
func TaskContinue(info TaskModuleTaskInfo) TaskModuleResponse {
	return TaskModuleResponse{Task: TaskModuleResponseBase{Type: TaskResponseContinue, Value: info}}
}

// TaskMessage closes the dialog and shows text.
func TaskMessage(text string) TaskModuleResponse {
	return TaskModuleResponse{Task: TaskModuleResponseBase{Type: TaskResponseMessage, Value: text}}
}
