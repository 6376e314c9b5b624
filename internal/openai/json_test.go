package openai

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Sure, here you go: {"a":1} hope that helps`, `{"a":1}`},
	}
	for _, tc := range cases {
		got, err := ExtractJSON(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if string(got) != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}

	_, err := ExtractJSON("no json here at all")
	if !IsMalformed(err) {
		t.Fatalf("prose-only input err = %v, want malformed", err)
	}
}

var testSchema = MustSchema("test.json", `{
	"type": "object",
	"required": ["score"],
	"properties": {
		"score": {"type": "number"}
	}
}`)

func TestUnmarshalValidated(t *testing.T) {
	var out struct {
		Score float64 `json:"score"`
	}
	if err := UnmarshalValidated(testSchema, `result: {"score": 0.75}`, &out); err != nil {
		t.Fatalf("UnmarshalValidated: %v", err)
	}
	if out.Score != 0.75 {
		t.Fatalf("score = %v", out.Score)
	}
}

func TestUnmarshalValidatedFailures(t *testing.T) {
	var out struct {
		Score float64 `json:"score"`
	}
	cases := []struct {
		name string
		raw  string
	}{
		{"missing required key", `{"other": 1}`},
		{"wrong type", `{"score": "high"}`},
		{"broken json", `{"score": }`},
		{"no object", `the model declined`},
	}
	for _, tc := range cases {
		err := UnmarshalValidated(testSchema, tc.raw, &out)
		if !IsMalformed(err) {
			t.Fatalf("%s: err = %v, want malformed", tc.name, err)
		}
	}
}

func TestIsMalformed(t *testing.T) {
	if IsMalformed(nil) {
		t.Fatalf("nil should not be malformed")
	}
	if IsMalformed(errors.New("plain")) {
		t.Fatalf("plain error should not be malformed")
	}
	wrapped := &MalformedPayloadError{Reason: "bad"}
	if !IsMalformed(wrapped) {
		t.Fatalf("malformed error not recognized")
	}
}
