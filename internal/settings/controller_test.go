package settings

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sweeney/gatewayctl/internal/gateway"
	"github.com/sweeney/gatewayctl/internal/loop"
)

type harness struct {
	api      *gateway.FakeConfigAPI
	ctl      *Controller
	workers  []func()
	applied  map[string]any
	statuses []string
	results  []error
}

func newHarness(t *testing.T, remote map[string]any, hooks ...Hook) *harness {
	t.Helper()
	h := &harness{
		api:     gateway.NewFakeConfigAPI(remote),
		applied: map[string]any{},
	}
	h.ctl = NewController(Options{
		API:    h.api,
		Exec:   &loop.Inline{},
		Apply:  func(key string, value any) { h.applied[key] = value },
		Status: func(msg string) { h.statuses = append(h.statuses, msg) },
		Hooks:  hooks,
		Spawn:  func(f func()) { h.workers = append(h.workers, f) },
	})
	return h
}

// settle runs queued requests, including ones queued by their completions.
func (h *harness) settle() {
	for len(h.workers) > 0 {
		w := h.workers[0]
		h.workers = h.workers[1:]
		w()
	}
}

func (h *harness) done(err error) {
	h.results = append(h.results, err)
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	h.ctl.Load(h.done)
	h.settle()
	if err := h.results[len(h.results)-1]; err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadAppliesEveryKey(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1", "mqttRetain": true})
	h.load(t)

	if h.applied["deviceName"] != "gw1" || h.applied["mqttRetain"] != true {
		t.Errorf("applied: got %v", h.applied)
	}
	if got := h.ctl.Snapshot(); len(got) != 2 {
		t.Errorf("snapshot: got %v", got)
	}
}

func TestLoadThenPushNoEdits(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1", "mqttRetain": true})
	h.load(t)
	before := h.ctl.Snapshot()

	h.ctl.Push(h.done)
	h.settle()

	if h.api.PushCount() != 0 {
		t.Errorf("pushes: got %d, want 0", h.api.PushCount())
	}
	if len(h.ctl.Pending()) != 0 {
		t.Errorf("pending: got %v, want empty", h.ctl.Pending())
	}
	after := h.ctl.Snapshot()
	for k, v := range before {
		if !Equal(after[k], v) {
			t.Errorf("snapshot[%s]: got %v, want %v", k, after[k], v)
		}
	}
	if h.results[len(h.results)-1] != nil {
		t.Errorf("Push result: got %v, want nil", h.results[len(h.results)-1])
	}
}

func TestEditAndRevertSkipsPush(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1", "mqttRetain": true})
	h.load(t)

	h.ctl.RecordEdit("mqttRetain", false, true)
	if got := h.ctl.Pending(); len(got) != 1 || got["mqttRetain"] != false {
		t.Fatalf("pending: got %v, want {mqttRetain:false}", got)
	}
	h.ctl.RecordEdit("mqttRetain", true, true)
	if got := h.ctl.Pending(); len(got) != 0 {
		t.Fatalf("pending: got %v, want empty", got)
	}

	h.ctl.Push(h.done)
	h.settle()
	if h.api.PushCount() != 0 {
		t.Errorf("pushes: got %d, want 0", h.api.PushCount())
	}
}

func TestEditDuringPushSurvives(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1", "mqttBroker": "old.host"})
	h.load(t)

	h.ctl.RecordEdit("mqttBroker", "new.host", true)
	h.ctl.Push(h.done)

	// Request is in flight; the user keeps editing.
	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.settle()

	if len(h.api.Pushes) != 1 {
		t.Fatalf("pushes: got %d, want 1", len(h.api.Pushes))
	}
	if sent := h.api.Pushes[0]; len(sent) != 1 || sent["mqttBroker"] != "new.host" {
		t.Errorf("sent: got %v, want {mqttBroker:new.host}", sent)
	}
	pending := h.ctl.Pending()
	if len(pending) != 1 || pending["deviceName"] != "gw2" {
		t.Errorf("pending: got %v, want {deviceName:gw2}", pending)
	}
	if h.ctl.Snapshot()["mqttBroker"] != "new.host" {
		t.Errorf("snapshot mqttBroker: got %v", h.ctl.Snapshot()["mqttBroker"])
	}
	if h.applied["deviceName"] != "gw1" {
		// Initial load applied gw1; the push must not overwrite the user's edit.
		t.Errorf("applied deviceName: got %v, want gw1 from the initial load", h.applied["deviceName"])
	}
}

func TestRevertDuringPushSurvives(t *testing.T) {
	h := newHarness(t, map[string]any{"mqttBroker": "old.host"})
	h.load(t)

	h.ctl.RecordEdit("mqttBroker", "new.host", true)
	h.ctl.Push(h.done)

	// The user changes their mind while the request is in flight.
	h.ctl.RecordEdit("mqttBroker", "old.host", true)
	if len(h.ctl.Pending()) != 0 {
		t.Errorf("pending in flight: got %v, want empty", h.ctl.Pending())
	}
	h.settle()

	if h.ctl.Snapshot()["mqttBroker"] != "new.host" {
		t.Errorf("snapshot mqttBroker: got %v, want new.host", h.ctl.Snapshot()["mqttBroker"])
	}
	if pending := h.ctl.Pending(); len(pending) != 1 || pending["mqttBroker"] != "old.host" {
		t.Errorf("pending: got %v, want {mqttBroker:old.host}", pending)
	}
	if h.applied["mqttBroker"] != "old.host" {
		t.Errorf("applied mqttBroker: got %v, want old.host", h.applied["mqttBroker"])
	}
}

func TestRevertDroppedWhenPushFails(t *testing.T) {
	h := newHarness(t, map[string]any{"mqttBroker": "old.host"})
	h.load(t)
	h.api.PushError = errors.New("connection refused")

	h.ctl.RecordEdit("mqttBroker", "new.host", true)
	h.ctl.Push(h.done)
	h.ctl.RecordEdit("mqttBroker", "old.host", true)
	h.settle()

	if len(h.ctl.Pending()) != 0 {
		t.Errorf("pending: got %v, want empty", h.ctl.Pending())
	}
}

func TestPushAppliesResponseButNotEditedKeys(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1", "mqttBroker": "old.host"})
	h.load(t)
	h.applied = map[string]any{}

	h.ctl.RecordEdit("mqttBroker", "new.host", true)
	h.ctl.Push(h.done)
	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.settle()

	if _, ok := h.applied["deviceName"]; ok {
		t.Error("apply overwrote a key with a pending edit")
	}
	if h.applied["mqttBroker"] != "new.host" {
		t.Errorf("applied mqttBroker: got %v", h.applied["mqttBroker"])
	}
}

func TestPushFailureKeepsPending(t *testing.T) {
	h := newHarness(t, map[string]any{"ledPin": float64(1)})
	h.load(t)
	h.api.PushError = &gateway.StatusError{Code: http.StatusBadRequest, Status: "Bad Request"}

	h.ctl.RecordEdit("ledPin", 99, true)
	h.ctl.Push(h.done)
	h.settle()

	var f *Failure
	if !errors.As(h.results[len(h.results)-1], &f) {
		t.Fatalf("result: got %v, want *Failure", h.results[len(h.results)-1])
	}
	if f.Kind != KindRejected {
		t.Errorf("Kind: got %v, want %v", f.Kind, KindRejected)
	}
	if got := h.ctl.Pending()["ledPin"]; got != 99 {
		t.Errorf("pending ledPin: got %v, want 99", got)
	}
	if got := h.ctl.Snapshot()["ledPin"]; got != float64(1) {
		t.Errorf("snapshot ledPin: got %v, want 1", got)
	}
}

func TestLoadFailureKeepsSnapshot(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1"})
	h.load(t)
	h.api.FetchError = errors.New("connection refused")

	h.ctl.Load(h.done)
	h.settle()

	var f *Failure
	if !errors.As(h.results[len(h.results)-1], &f) || f.Kind != KindTransport {
		t.Fatalf("result: got %v, want transport failure", h.results[len(h.results)-1])
	}
	if h.ctl.Snapshot()["deviceName"] != "gw1" {
		t.Errorf("snapshot lost on failed load: %v", h.ctl.Snapshot())
	}
	if last := h.statuses[len(h.statuses)-1]; last != "Loading settings failed: connection refused" {
		t.Errorf("status: got %q", last)
	}
}

func TestLoadClearsEditsMadeBeforeRequest(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1", "mqttBroker": "a"})
	h.load(t)

	h.ctl.RecordEdit("mqttBroker", "b", true)
	h.ctl.Load(h.done)
	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.settle()

	pending := h.ctl.Pending()
	if len(pending) != 1 || pending["deviceName"] != "gw2" {
		t.Errorf("pending: got %v, want {deviceName:gw2}", pending)
	}
}

func TestOverlappingLoadsLastArrivalWins(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1"})

	h.ctl.Load(h.done)
	h.ctl.Load(h.done)
	first, second := h.workers[0], h.workers[1]
	h.workers = nil

	second()
	h.api.Config["deviceName"] = "gw2"
	first()

	if h.ctl.Snapshot()["deviceName"] != "gw2" {
		t.Errorf("snapshot: got %v, want gw2 from the last response", h.ctl.Snapshot()["deviceName"])
	}
	if len(h.results) != 2 || h.results[0] != nil || h.results[1] != nil {
		t.Errorf("results: got %v", h.results)
	}
}

func TestResetDiscardsAndReloads(t *testing.T) {
	h := newHarness(t, map[string]any{"deviceName": "gw1"})
	h.load(t)
	h.ctl.RecordEdit("deviceName", "gw2", true)

	h.ctl.Reset(h.done)
	h.settle()

	if len(h.ctl.Pending()) != 0 {
		t.Errorf("pending: got %v, want empty", h.ctl.Pending())
	}
	if h.api.Fetches != 2 {
		t.Errorf("fetches: got %d, want 2", h.api.Fetches)
	}
	if h.applied["deviceName"] != "gw1" {
		t.Errorf("applied deviceName: got %v, want gw1", h.applied["deviceName"])
	}
}

func TestCredentialHookReloads(t *testing.T) {
	var newPassword string
	hook := &CredentialHook{SetPassword: func(p string) { newPassword = p }}
	h := newHarness(t, map[string]any{"deviceName": "gw1", CredentialKey: "oldpassword"}, hook)
	h.load(t)
	fetches := h.api.Fetches

	h.ctl.RecordEdit(CredentialKey, "newpassword", true)
	h.ctl.Push(h.done)
	h.settle()

	if newPassword != "newpassword" {
		t.Errorf("SetPassword: got %q, want newpassword", newPassword)
	}
	if h.api.Fetches != fetches+1 {
		t.Errorf("fetches after push: got %d, want %d", h.api.Fetches, fetches+1)
	}
	if len(h.ctl.Pending()) != 0 {
		t.Errorf("pending: got %v, want empty", h.ctl.Pending())
	}
	if len(h.results) != 2 || h.results[1] != nil {
		t.Errorf("results: got %v", h.results)
	}
}

func TestCredentialReloadKeepsEditDuringPush(t *testing.T) {
	hook := &CredentialHook{SetPassword: func(string) {}}
	h := newHarness(t, map[string]any{"deviceName": "gw1", CredentialKey: "oldpassword"}, hook)
	h.load(t)
	fetches := h.api.Fetches

	h.ctl.RecordEdit(CredentialKey, "newpassword", true)
	h.ctl.Push(h.done)
	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.settle()

	if h.api.Fetches != fetches+1 {
		t.Errorf("fetches after push: got %d, want %d", h.api.Fetches, fetches+1)
	}
	if pending := h.ctl.Pending(); len(pending) != 1 || pending["deviceName"] != "gw2" {
		t.Errorf("pending: got %v, want {deviceName:gw2}", pending)
	}
	if h.applied["deviceName"] != "gw1" {
		t.Errorf("applied deviceName: got %v, want gw1 from the initial load", h.applied["deviceName"])
	}
	if h.results[len(h.results)-1] != nil {
		t.Errorf("result: got %v, want nil", h.results[len(h.results)-1])
	}
}

func TestCredentialHookPrompt(t *testing.T) {
	var newPassword string
	hook := &CredentialHook{
		SetPassword: func(p string) { newPassword = p },
		Prompt:      func(ctx context.Context) (string, error) { return "typed-password", nil },
	}
	h := newHarness(t, map[string]any{CredentialKey: "oldpassword"}, hook)
	h.load(t)

	h.ctl.RecordEdit(CredentialKey, "newpassword", true)
	h.ctl.Push(nil)
	h.settle()

	if newPassword != "typed-password" {
		t.Errorf("SetPassword: got %q, want typed-password", newPassword)
	}
}

type fakeConfirmer struct {
	answer    bool
	questions []string
}

func (f *fakeConfirmer) Confirm(ctx context.Context, q string) (bool, error) {
	f.questions = append(f.questions, q)
	return f.answer, nil
}

func renameHarness(t *testing.T, host string, answer bool) (*harness, *fakeConfirmer, *[]string) {
	t.Helper()
	confirmer := &fakeConfirmer{answer: answer}
	var navigated []string
	hook := &IdentityHook{
		Host:      func() string { return host },
		Confirmer: confirmer,
		Navigate:  func(h string) { navigated = append(navigated, h) },
	}
	h := newHarness(t, map[string]any{"deviceName": "gw1", "mqttBroker": "b"}, hook)
	h.load(t)
	return h, confirmer, &navigated
}

func TestRenameAcceptedNavigates(t *testing.T) {
	h, confirmer, navigated := renameHarness(t, "GW1.local", true)

	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.ctl.Push(h.done)
	h.settle()

	if len(confirmer.questions) != 1 {
		t.Fatalf("questions: got %d, want 1", len(confirmer.questions))
	}
	if len(*navigated) != 1 || (*navigated)[0] != "gw2.local" {
		t.Errorf("navigated: got %v, want [gw2.local]", *navigated)
	}
	if h.ctl.Snapshot()["deviceName"] != "gw2" {
		t.Errorf("snapshot deviceName: got %v, want gw2", h.ctl.Snapshot()["deviceName"])
	}
	if len(h.ctl.Pending()) != 0 {
		t.Errorf("pending: got %v, want empty", h.ctl.Pending())
	}
}

func TestRenameDeclinedKeepsPending(t *testing.T) {
	h, _, navigated := renameHarness(t, "gw1.local", false)

	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.ctl.Push(h.done)
	h.settle()

	var f *Failure
	if !errors.As(h.results[len(h.results)-1], &f) || f.Kind != KindDeclined {
		t.Fatalf("result: got %v, want declined failure", h.results[len(h.results)-1])
	}
	if len(*navigated) != 0 {
		t.Errorf("navigated: got %v, want none", *navigated)
	}
	if h.ctl.Snapshot()["deviceName"] != "gw1" {
		t.Errorf("snapshot deviceName: got %v, want gw1", h.ctl.Snapshot()["deviceName"])
	}
	if h.ctl.Pending()["deviceName"] != "gw2" {
		t.Errorf("pending: got %v, want {deviceName:gw2}", h.ctl.Pending())
	}
}

func TestRenameDeclinedKeepsEditDuringPush(t *testing.T) {
	h, _, _ := renameHarness(t, "gw1.local", false)

	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.ctl.Push(h.done)
	h.ctl.RecordEdit("mqttBroker", "c", true)
	h.settle()

	var f *Failure
	if !errors.As(h.results[len(h.results)-1], &f) || f.Kind != KindDeclined {
		t.Fatalf("result: got %v, want declined failure", h.results[len(h.results)-1])
	}
	pending := h.ctl.Pending()
	if len(pending) != 2 || pending["deviceName"] != "gw2" || pending["mqttBroker"] != "c" {
		t.Errorf("pending: got %v, want {deviceName:gw2 mqttBroker:c}", pending)
	}
	if h.ctl.Snapshot()["mqttBroker"] != "b" {
		t.Errorf("snapshot mqttBroker: got %v, want b", h.ctl.Snapshot()["mqttBroker"])
	}
}

func TestRenameByIPSkipsPrompt(t *testing.T) {
	h, confirmer, navigated := renameHarness(t, "192.168.1.50", false)

	h.ctl.RecordEdit("deviceName", "gw2", true)
	h.ctl.Push(h.done)
	h.settle()

	if len(confirmer.questions) != 0 {
		t.Errorf("questions: got %v, want none", confirmer.questions)
	}
	if len(*navigated) != 0 {
		t.Errorf("navigated: got %v, want none", *navigated)
	}
	if h.ctl.Snapshot()["deviceName"] != "gw2" {
		t.Errorf("snapshot deviceName: got %v, want gw2", h.ctl.Snapshot()["deviceName"])
	}
}

func TestHookSkippedWhenKeyNotPushed(t *testing.T) {
	h, confirmer, _ := renameHarness(t, "gw1.local", false)

	h.ctl.RecordEdit("mqttBroker", "c", true)
	h.ctl.Push(h.done)
	h.settle()

	if len(confirmer.questions) != 0 {
		t.Errorf("questions: got %v, want none", confirmer.questions)
	}
	if h.results[len(h.results)-1] != nil {
		t.Errorf("result: got %v, want nil", h.results[len(h.results)-1])
	}
}
