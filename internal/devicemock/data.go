package devicemock

import "github.com/sweeney/gatewayctl/internal/gateway"

func defaultConfig() map[string]any {
	return map[string]any{
		"deviceName":          "default",
		"mqttBroker":          "broker",
		"mqttBrokerPort":      float64(12),
		"mqttUser":            "",
		"mqttRetain":          true,
		"mqttReceiveTopic":    "recv",
		"mqttSendTopic":       "send",
		"mqttStateTopic":      "state",
		"mqttVersionTopic":    "version",
		"rfEchoMessages":      false,
		"rfReceiverPin":       float64(1),
		"rfReceiverPinPullUp": false,
		"rfTransmitterPin":    float64(2),
		"rfProtocols":         []any{},
		"serialLogLevel":      "info",
		"webLogLevel":         "error",
		"syslogLevel":         "",
		"syslogHost":          "",
		"syslogPort":          float64(514),
		"ledPin":              float64(1),
		"ledActiveHigh":       false,
	}
}

func defaultFirmware() gateway.Firmware {
	return gateway.Firmware{
		Version: "v0.0.8",
		ChipID:  "devMock",
		BuildWith: map[string]string{
			"ArduinoJson":          "5.13.3",
			"ArduinoSimpleLogging": "0.2.2",
			"ESPiLight":            "0.15.0",
			"PlatformIO":           "3.6.2b6",
			"PubSubClient":         "2.7",
			"Syslog":               "2.0.0",
			"WebSockets":           "2.1.2",
			"WifiManager":          "0.14",
			"espressif8266":        "1.8.0",
		},
	}
}

var defaultProtocols = []string{
	"x10", "tfa30", "tfa", "teknihall", "techlico_switch", "tcm",
	"silvercrest", "selectremote", "secudo_smoke_sensor", "sc2262", "rsl366",
	"rev3_switch", "rev2_switch", "rev1_switch", "rc101", "quigg_screen",
	"quigg_gt9000", "quigg_gt7000", "quigg_gt1000", "pollin",
	"ninjablocks_weather", "mumbi", "logilink_switch", "livolo_switch",
	"impuls", "heitech", "ev1527", "eurodomest_switch", "elro_800_switch",
	"elro_800_contact", "elro_400_switch", "elro_300_switch", "ehome", "daycom",
	"conrad_rsl_switch", "conrad_rsl_contact", "cleverwatts", "clarus_switch",
	"beamish_switch", "auriol", "arctech_switch_old", "arctech_switch",
	"arctech_screen_old", "arctech_screen", "arctech_motion", "arctech_dusk",
	"arctech_dimmer", "arctech_contact", "alecto_wx500", "alecto_wsd17",
	"alecto_ws1700",
}
