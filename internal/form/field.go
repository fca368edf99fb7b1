// Package form holds the local, user-editable view of the gateway
// configuration. Each Field kind knows how to show a remote value, parse
// user input and report whether its current value may be sent.
package form

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Field is one configuration entry.
type Field interface {
	Name() string
	Help() string

	// Render returns the current local value as display text.
	Render() string

	// ApplyRemote replaces the local value with an authoritative one.
	ApplyRemote(v any)

	// ReadLocal returns the value to send and whether it is valid.
	ReadLocal() (any, bool)

	// Set parses user input. The input is kept even when invalid; the
	// returned error explains why ReadLocal now reports false.
	Set(input string) error
}

// ErrRequired is returned when a required field is left empty.
var ErrRequired = errors.New("value required")

type base struct {
	name string
	help string
}

func (b base) Name() string { return b.name }
func (b base) Help() string { return b.help }

// TextField is a free text input with an optional pattern.
type TextField struct {
	base
	pattern  *regexp.Regexp
	required bool
	value    string
	err      error
}

// NewTextField creates a TextField. pattern may be empty.
func NewTextField(name, help, pattern string, required bool) *TextField {
	f := &TextField{base: base{name, help}, required: required}
	if pattern != "" {
		f.pattern = regexp.MustCompile("^(?:" + pattern + ")$")
	}
	return f
}

func (f *TextField) Render() string { return f.value }

func (f *TextField) ApplyRemote(v any) {
	f.value = toString(v)
	f.err = nil
}

func (f *TextField) ReadLocal() (any, bool) {
	return f.value, f.err == nil
}

func (f *TextField) Set(input string) error {
	f.value = input
	f.err = f.validate(input)
	return f.err
}

func (f *TextField) validate(s string) error {
	if s == "" {
		if f.required {
			return ErrRequired
		}
		return nil
	}
	if f.pattern != nil && !f.pattern.MatchString(s) {
		return fmt.Errorf("%q does not match %s", s, f.pattern)
	}
	return nil
}

// ErrMismatch is returned while a password and its confirmation differ.
var ErrMismatch = errors.New("passwords don't match")

// PasswordField is a masked input. With confirmation enabled, the value is
// only valid once the confirmation matches.
type PasswordField struct {
	base
	minLength int
	confirm   bool
	value     string
	confirmed string
	err       error
}

// NewPasswordField creates a PasswordField.
func NewPasswordField(name, help string, minLength int, confirm bool) *PasswordField {
	return &PasswordField{base: base{name, help}, minLength: minLength, confirm: confirm}
}

func (f *PasswordField) Render() string {
	if f.value == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}

func (f *PasswordField) ApplyRemote(v any) {
	f.value = toString(v)
	f.confirmed = f.value
	f.err = nil
}

func (f *PasswordField) ReadLocal() (any, bool) {
	return f.value, f.err == nil
}

func (f *PasswordField) Set(input string) error {
	f.value = input
	f.err = f.validate()
	return f.err
}

// SetConfirm sets the confirmation input.
func (f *PasswordField) SetConfirm(input string) error {
	f.confirmed = input
	f.err = f.validate()
	return f.err
}

// NeedsConfirm reports whether the field has a confirmation input.
func (f *PasswordField) NeedsConfirm() bool { return f.confirm }

func (f *PasswordField) validate() error {
	if f.minLength > 0 && len(f.value) < f.minLength {
		return fmt.Errorf("at least %d characters required", f.minLength)
	}
	if f.confirm && f.value != f.confirmed {
		return ErrMismatch
	}
	return nil
}

// CheckboxField is a boolean.
type CheckboxField struct {
	base
	value bool
}

// NewCheckboxField creates a CheckboxField.
func NewCheckboxField(name, help string) *CheckboxField {
	return &CheckboxField{base: base{name, help}}
}

func (f *CheckboxField) Render() string { return strconv.FormatBool(f.value) }

func (f *CheckboxField) ApplyRemote(v any) {
	b, _ := v.(bool)
	f.value = b
}

func (f *CheckboxField) ReadLocal() (any, bool) { return f.value, true }

func (f *CheckboxField) Set(input string) error {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "true", "yes", "on", "1":
		f.value = true
	case "false", "no", "off", "0":
		f.value = false
	default:
		return fmt.Errorf("%q is not a boolean", input)
	}
	return nil
}

// NumberField is an integer within [min, max].
type NumberField struct {
	base
	min, max int
	text     string
	value    int
	err      error
}

// NewNumberField creates a NumberField.
func NewNumberField(name, help string, min, max int) *NumberField {
	return &NumberField{base: base{name, help}, min: min, max: max}
}

func (f *NumberField) Render() string { return f.text }

func (f *NumberField) ApplyRemote(v any) {
	switch n := v.(type) {
	case float64:
		f.value = int(n)
	case int:
		f.value = n
	default:
		f.value = 0
	}
	f.text = strconv.Itoa(f.value)
	f.err = nil
}

func (f *NumberField) ReadLocal() (any, bool) {
	return f.value, f.err == nil
}

func (f *NumberField) Set(input string) error {
	f.text = input
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		f.err = fmt.Errorf("%q is not a number", input)
		return f.err
	}
	f.value = n
	if n < f.min || n > f.max {
		f.err = fmt.Errorf("%d outside %d..%d", n, f.min, f.max)
		return f.err
	}
	f.err = nil
	return nil
}

// Option is one choice of a SelectField.
type Option struct {
	Value string
	Label string
}

// SelectField picks one of a fixed set of values.
type SelectField struct {
	base
	options []Option
	value   string
	err     error
}

// NewSelectField creates a SelectField.
func NewSelectField(name, help string, options []Option) *SelectField {
	return &SelectField{base: base{name, help}, options: options}
}

func (f *SelectField) Render() string {
	for _, o := range f.options {
		if o.Value == f.value {
			return o.Label
		}
	}
	return f.value
}

func (f *SelectField) ApplyRemote(v any) {
	f.value = toString(v)
	f.err = nil
}

func (f *SelectField) ReadLocal() (any, bool) { return f.value, f.err == nil }

func (f *SelectField) Set(input string) error {
	f.value = input
	for _, o := range f.options {
		if strings.EqualFold(o.Value, input) || strings.EqualFold(o.Label, input) {
			f.value = o.Value
			f.err = nil
			return nil
		}
	}
	f.err = fmt.Errorf("%q is not one of %s", input, f.choices())
	return f.err
}

func (f *SelectField) choices() string {
	vals := make([]string, len(f.options))
	for i, o := range f.options {
		vals[i] = strconv.Quote(o.Value)
	}
	return strings.Join(vals, ", ")
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}
