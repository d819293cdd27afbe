package mqttnode

import (
	"log/slog"
	"os"

	"github.com/rs/xid"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultKeepalive is the keepalive interval applied when none, or an
	// out-of-range value, is configured.
	DefaultKeepalive = 60

	// MaxKeepalive is the largest keepalive interval the configuration
	// surface accepts, in seconds.
	MaxKeepalive = 120
)

// LastWill is the message the broker publishes on the client's behalf if
// the connection drops uncleanly. It is consumed once while building the
// CONNECT packet. Message takes precedence over Payload when both are set.
type LastWill struct {
	Topic   string `yaml:"topic" json:"topic"`
	Message string `yaml:"message" json:"message"`
	Payload []byte `yaml:"payload" json:"payload"`
	Qos     byte   `yaml:"qos" json:"qos"`
	Retain  bool   `yaml:"retain" json:"retain"`
}

// body returns the will payload bytes.
func (w *LastWill) body() []byte {
	if w.Message != "" {
		return []byte(w.Message)
	}
	return w.Payload
}

// Options contains configurable options for the client.
type Options struct {
	// Broker is the broker address, e.g. ws://broker:8080/mqtt.
	Broker string `yaml:"broker" json:"broker"`

	// ClientID identifies this client to the broker. When empty an id with
	// a random suffix is generated.
	ClientID string `yaml:"client_id" json:"client_id"`

	// CleanSession asks the broker to discard any previous session state.
	CleanSession *bool `yaml:"clean_session" json:"clean_session"`

	// Keepalive is the ping interval in seconds, 0-120. Zero disables
	// keepalive pings.
	Keepalive *int `yaml:"keepalive" json:"keepalive"`

	// Will is the optional last-will message.
	Will *LastWill `yaml:"will" json:"will"`

	// Username and Password are optional credentials. A password is only
	// sent when a username is present.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// AutoConnect makes Poll initiate the connection whenever the session
	// is disconnected and a transport is attached.
	AutoConnect bool `yaml:"auto_connect" json:"auto_connect"`

	// Logger overrides the client's default slog logger.
	Logger *slog.Logger `yaml:"-" json:"-"`
}

// Config is the top-level shape of a yaml configuration file.
// Note: struct fields must be public in order for unmarshal to
// correctly populate the data.
type Config struct {
	Client struct {
		Options `yaml:"options"`
	} `yaml:"client"`
}

// OpenConfigFile reads client options from a yaml file.
func OpenConfigFile(p string) (*Options, error) {
	if p == "" {
		slog.Default().Debug("no file path provided")
		return nil, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return &config.Client.Options, nil
}

// ensureDefaults fills unset options in place.
func (o *Options) ensureDefaults() {
	if o.ClientID == "" {
		o.ClientID = "mqtt-node-" + xid.New().String()
	}

	if o.CleanSession == nil {
		t := true
		o.CleanSession = &t
	}

	if o.Keepalive == nil {
		k := DefaultKeepalive
		o.Keepalive = &k
	}
}
