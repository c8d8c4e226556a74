package hydrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type settings struct {
	Theme string `json:"theme"`
	Scale int    `json:"scale"`
}

func TestDecodeDefaultJSONPath(t *testing.T) {
	decoder := NewDecoder[settings]()
	got, err := decoder.Decode(Context{Cell: "settings", Key: "settings"}, `{"theme":"dark","scale":2}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Theme != "dark" || got.Scale != 2 {
		t.Fatalf("unexpected decoded value %+v", got)
	}
}

func TestDecodeReportsKeyOnFailure(t *testing.T) {
	decoder := NewDecoder[settings]()
	_, err := decoder.Decode(Context{Key: "settings"}, `{broken`)
	if err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
	if !strings.Contains(err.Error(), `"settings"`) {
		t.Fatalf("expected key in error, got %v", err)
	}
}

func TestPreHookRewritesPayload(t *testing.T) {
	decoder := NewDecoder(WithPreHook[settings](func(_ Context, raw []byte) ([]byte, error) {
		return bytes.ReplaceAll(raw, []byte("light"), []byte("dark")), nil
	}))
	got, err := decoder.Decode(Context{}, `{"theme":"light"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Theme != "dark" {
		t.Fatalf("expected pre-hook rewrite, got %+v", got)
	}
}

func TestPreHookErrorAborts(t *testing.T) {
	boom := errors.New("bad payload")
	decoder := NewDecoder(WithPreHook[settings](func(Context, []byte) ([]byte, error) {
		return nil, boom
	}))
	if _, err := decoder.Decode(Context{Key: "settings"}, `{}`); !errors.Is(err, boom) {
		t.Fatalf("expected pre-hook error, got %v", err)
	}
}

func TestPostHookValidatesResult(t *testing.T) {
	invalid := errors.New("scale out of range")
	decoder := NewDecoder(WithPostHook[settings](func(_ Context, value *settings) error {
		if value.Scale > 10 {
			return invalid
		}
		if value.Theme == "" {
			value.Theme = "light"
		}
		return nil
	}))

	got, err := decoder.Decode(Context{}, `{"scale":1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Theme != "light" {
		t.Fatalf("expected post-hook default, got %+v", got)
	}

	if _, err := decoder.Decode(Context{}, `{"scale":11}`); !errors.Is(err, invalid) {
		t.Fatalf("expected post-hook validation error, got %v", err)
	}
}

func TestDisallowUnknownFields(t *testing.T) {
	decoder := NewDecoder(WithDisallowUnknownFields[settings]())
	if _, err := decoder.Decode(Context{}, `{"theme":"dark","surprise":true}`); err == nil {
		t.Fatalf("expected unknown field to fail decoding")
	}
}

func TestUseNumberKeepsPrecision(t *testing.T) {
	decoder := NewDecoder(WithUseNumber[map[string]any]())
	got, err := decoder.Decode(Context{}, `{"n":9007199254740993}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	number, ok := got["n"].(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T", got["n"])
	}
	if number.String() != "9007199254740993" {
		t.Fatalf("expected precision preserved, got %s", number)
	}
}

func TestCustomDecoderReplacesJSONPath(t *testing.T) {
	decoder := NewDecoder(WithCustomDecoder[int](func(_ Context, raw []byte) (int, error) {
		if string(raw) == "on" {
			return 1, nil
		}
		return 0, nil
	}))
	got, err := decoder.Decode(Context{}, "on")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected custom decoding, got %d", got)
	}
}
