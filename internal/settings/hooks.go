package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Decision is a hook's verdict on a successful push. When several hooks
// run, the highest decision wins.
type Decision int

const (
	// Apply installs the response and updates the UI.
	Apply Decision = iota

	// Reload installs the response without touching the UI, then runs a
	// full Load.
	Reload

	// Abort leaves the snapshot and the pending edits as they were.
	Abort
)

// PushResult describes a push that the gateway accepted.
type PushResult struct {
	Pushed   Config
	Previous Config
	Response Config
}

// Hook reacts to a push that changed a sensitive key. AfterPush runs off the
// event loop and may block, for example on a user prompt.
type Hook interface {
	Key() string
	AfterPush(ctx context.Context, r PushResult) Decision
}

// CredentialKey is the gateway's admin password.
const CredentialKey = "configPassword"

// CredentialHook switches the client to a new admin password after it was
// pushed, and forces a full reload so the UI never shows the echoed value.
type CredentialHook struct {
	// SetPassword updates the credentials used for later requests.
	SetPassword func(password string)

	// Prompt, if set, asks for the password instead of reusing the pushed one.
	Prompt func(ctx context.Context) (string, error)

	Logger hclog.Logger
}

// Key implements Hook.
func (h *CredentialHook) Key() string { return CredentialKey }

// AfterPush implements Hook.
func (h *CredentialHook) AfterPush(ctx context.Context, r PushResult) Decision {
	password, _ := r.Pushed[CredentialKey].(string)
	if h.Prompt != nil {
		p, err := h.Prompt(ctx)
		if err != nil {
			if h.Logger != nil {
				h.Logger.Warn("password prompt failed, using pushed value", "error", err)
			}
		} else {
			password = p
		}
	}
	if h.SetPassword != nil && password != "" {
		h.SetPassword(password)
	}
	return Reload
}

// IdentityKey is the gateway's device name; it determines its mDNS host name.
const IdentityKey = "deviceName"

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// IdentityHook handles a device rename while the session addresses the
// gateway by its old <name>.local host. The user is asked whether to follow
// the device to its new address; declining aborts the apply.
type IdentityHook struct {
	// Host returns the host name the session currently uses.
	Host func() string

	Confirmer Confirmer

	// Navigate moves the session to a new host.
	Navigate func(host string)

	Logger hclog.Logger
}

// Key implements Hook.
func (h *IdentityHook) Key() string { return IdentityKey }

// AfterPush implements Hook.
func (h *IdentityHook) AfterPush(ctx context.Context, r PushResult) Decision {
	oldName, _ := r.Previous[IdentityKey].(string)
	newName, _ := r.Pushed[IdentityKey].(string)
	if oldName == "" || newName == "" || h.Host == nil {
		return Apply
	}
	if !strings.EqualFold(h.Host(), oldName+".local") {
		return Apply
	}

	newHost := newName + ".local"
	ok, err := h.Confirmer.Confirm(ctx, fmt.Sprintf("deviceName changed to %q. Reconnect to %s?", newName, newHost))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("rename confirmation failed", "error", err)
		}
		return Abort
	}
	if !ok {
		return Abort
	}
	if h.Navigate != nil {
		h.Navigate(newHost)
	}
	return Apply
}
