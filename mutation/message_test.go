package mutation

import (
	"errors"
	"testing"

	"github.com/MrEthical07/cmsync/gateway"
)

func TestMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &ValidationError{Fields: map[string]string{"email": "email is required"}}, "email is required"},
		{"gateway message", &gateway.Error{Status: 400, Message: "Subject is required"}, "Subject is required"},
		{"nested response message", &gateway.Error{Status: 500, Message: gateway.DefaultErrorMessage, Body: []byte(`{"response":{"message":"Upstream down"}}`)}, "Upstream down"},
		{"nested data message", &gateway.Error{Status: 500, Message: gateway.DefaultErrorMessage, Body: []byte(`{"data":{"message":"Quota"}}`)}, "Quota"},
		{"default message", &gateway.Error{Status: 500, Message: gateway.DefaultErrorMessage, Body: []byte(`oops`)}, gateway.DefaultErrorMessage},
		{"timeout", &gateway.Error{Timeout: true, Message: "Request timed out"}, "Request timed out"},
		{"plain", errors.New("disk full"), "disk full"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Message(tc.err); got != tc.want {
				t.Fatalf("Message()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidationSummarySortsByFieldName(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"subject":  "subject is required",
		"priority": "priority must be one of low medium high",
		"message":  "message is required",
	}}
	want := "message is required, priority must be one of low medium high, subject is required"
	if got := err.Summary(); got != want {
		t.Fatalf("Summary()=%q, want %q", got, want)
	}
}
