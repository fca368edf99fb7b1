package form

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// ConfirmSuffix addresses the confirmation input of a PasswordField:
// Set("configPassword-confirm", ...).
const ConfirmSuffix = "-confirm"

// Recorder receives every local change.
type Recorder interface {
	RecordEdit(key string, value any, valid bool)
}

// Group is a titled run of fields.
type Group struct {
	Title  string
	Fields []Field
}

// Form binds fields to a Recorder.
type Form struct {
	rec    Recorder
	groups []Group
	byName map[string]Field
}

// New creates a Form.
func New(rec Recorder, groups ...Group) *Form {
	f := &Form{rec: rec, groups: groups, byName: map[string]Field{}}
	for _, g := range groups {
		for _, fld := range g.Fields {
			f.byName[fld.Name()] = fld
		}
	}
	return f
}

// Field returns the named field.
func (f *Form) Field(name string) (Field, bool) {
	fld, ok := f.byName[name]
	return fld, ok
}

// Apply shows an authoritative value. Keys without a field are ignored.
func (f *Form) Apply(key string, value any) {
	if fld, ok := f.byName[key]; ok {
		fld.ApplyRemote(value)
	}
}

// Set feeds user input into a field and records the result. The edit is
// recorded even when invalid so the recorder can keep its previous entry.
func (f *Form) Set(name, input string) error {
	if base, ok := strings.CutSuffix(name, ConfirmSuffix); ok {
		fld, found := f.byName[base]
		pw, isPW := fld.(*PasswordField)
		if !found || !isPW || !pw.NeedsConfirm() {
			return fmt.Errorf("unknown field %q", name)
		}
		err := pw.SetConfirm(input)
		f.record(pw)
		return err
	}

	fld, ok := f.byName[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	err := fld.Set(input)
	f.record(fld)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (f *Form) record(fld Field) {
	if f.rec == nil {
		return
	}
	v, ok := fld.ReadLocal()
	f.rec.RecordEdit(fld.Name(), v, ok)
}

// Render writes every field as an aligned table.
func (f *Form) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, g := range f.groups {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "# %s\n", g.Title)
		for _, fld := range g.Fields {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", fld.Name(), fld.Render(), fld.Help())
		}
	}
	return tw.Flush()
}

var logLevels = []Option{
	{Value: "", Label: "None"},
	{Value: "error", Label: "Error"},
	{Value: "warning", Label: "Warning"},
	{Value: "info", Label: "Info"},
	{Value: "debug", Label: "Debug"},
}

const (
	namePattern = `[-._A-Za-z0-9]+`
	hostPattern = `[-._A-Za-z0-9]*`
)

// GatewayGroups returns the gateway's configuration catalogue.
func GatewayGroups() []Group {
	return []Group{
		{Title: "General Config", Fields: []Field{
			NewTextField("deviceName", "The general name of the device", namePattern, true),
			NewPasswordField("configPassword", "The admin password for the web UI (min. 8 characters)", 8, true),
		}},
		{Title: "MQTT Config", Fields: []Field{
			NewTextField("mqttBroker", "MQTT Broker host", hostPattern, false),
			NewNumberField("mqttBrokerPort", "MQTT Broker port", 1, 65535),
			NewTextField("mqttUser", "MQTT username (optional)", "", false),
			NewPasswordField("mqttPassword", "MQTT password (optional)", 0, false),
			NewCheckboxField("mqttRetain", "Retain MQTT messages"),
		}},
		{Title: "MQTT Topic Config", Fields: []Field{
			NewTextField("mqttReceiveTopic", "Topic to publish received signal", "", true),
			NewTextField("mqttSendTopic", "Topic to get signals to send from", "", true),
		}},
		{Title: "433MHz RF Config", Fields: []Field{
			NewCheckboxField("rfEchoMessages", "Echo sent rf messages back"),
			NewNumberField("rfReceiverPin", "The GPIO pin used for the rf receiver", 0, 16),
			NewCheckboxField("rfReceiverPinPullUp", "Activate pullup on rf receiver pin (required for 5V protection with reverse diode)"),
			NewNumberField("rfTransmitterPin", "The GPIO pin used for the RF transmitter", 0, 16),
		}},
		{Title: "Enabled RF protocols", Fields: []Field{
			NewProtocolListField("rfProtocols", "Comma-separated protocols, +name/-name to toggle, or all"),
		}},
		{Title: "Log Config", Fields: []Field{
			NewSelectField("serialLogLevel", "Level for serial logging", logLevels),
			NewSelectField("webLogLevel", "Level for logging to the web UI", logLevels),
			NewSelectField("syslogLevel", "Level for syslog logging", logLevels),
			NewTextField("syslogHost", "Syslog server (optional)", hostPattern, false),
			NewNumberField("syslogPort", "Syslog port (optional)", 1, 65535),
		}},
		{Title: "Status LED", Fields: []Field{
			NewNumberField("ledPin", "The GPIO pin used for the status LED", 0, 16),
			NewCheckboxField("ledActiveHigh", "The way how the LED is connected to the pin (false for built-in led)"),
		}},
	}
}

// DebugFlags maps each debug flag to its description.
var DebugFlags = map[string]string{
	"protocolRaw": "Enable Raw RF message logging",
	"systemLoad":  "Show the processed loop() iterations for each second",
	"freeHeap":    "Show the free heap memory every second",
}

// Protocols returns the protocol list field of a form built from
// GatewayGroups, or nil.
func (f *Form) Protocols() *ProtocolListField {
	p, _ := f.byName["rfProtocols"].(*ProtocolListField)
	return p
}
