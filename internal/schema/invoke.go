package schema

import "net/http"

// Invoke names handled by the router.
const (
	InvokeNameAdaptiveCardAction = "adaptiveCard/action"
	InvokeNameTaskFetch          = "task/fetch"
	InvokeNameTaskSubmit         = "task/submit"
)

// InvokeResponse is written back as the HTTP response of an invoke.
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// OK returns a 200 invoke response with body.
func OK(body any) *InvokeResponse {
	return &InvokeResponse{Status: http.StatusOK, Body: body}
}

// AdaptiveCardInvokeValue is the value of an adaptiveCard/action invoke.
type AdaptiveCardInvokeValue struct {
	Action AdaptiveCardInvokeAction `json:"action"`
}

// AdaptiveCardInvokeAction is the Action.Execute that fired.
type AdaptiveCardInvokeAction struct {
	Type string         `json:"type"`
	ID   string         `json:"id,omitempty"`
	Verb string         `json:"verb,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Adaptive card invoke response types.
const (
	InvokeResponseTypeMessage = "application/vnd.microsoft.activity.message"
	InvokeResponseTypeCard    = "application/vnd.microsoft.card.adaptive"
)

// AdaptiveCardInvokeResponse answers an adaptiveCard/action invoke.
type AdaptiveCardInvokeResponse struct {
	StatusCode int    `json:"statusCode"`
	Type       string `json:"type"`
	Value      any    `json:"value"`
}

// ActionMessage returns an invoke response showing text to the user.
func ActionMessage(text string) AdaptiveCardInvokeResponse {
	return AdaptiveCardInvokeResponse{
		StatusCode: http.StatusOK,
		Type:       InvokeResponseTypeMessage,
		Value:      text,
	}
}
