package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	mqttnode "github.com/freehuntx/mqtt-node"
	"github.com/freehuntx/mqtt-node/transport"
)

// pollInterval is how often the session is ticked.
const pollInterval = 100 * time.Millisecond

var (
	flagBroker     string
	flagConfig     string
	flagClientID   string
	flagUsername   string
	flagPassword   string
	flagKeepalive  int
	flagNoCleanSes bool
	flagVerbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mqttnode",
		Short: "MQTT 3.1.1 client over websockets",
		Long: `mqttnode is a command-line MQTT 3.1.1 client that talks to
websocket brokers. It can publish single messages and subscribe
to topic filters, printing received messages to stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagBroker, "broker", "b", "", "Broker websocket URL (ws:// or wss://)")
	pf.StringVarP(&flagConfig, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&flagClientID, "client-id", "", "Client identifier (generated when empty)")
	pf.StringVarP(&flagUsername, "username", "u", "", "Username for authentication")
	pf.StringVarP(&flagPassword, "password", "P", "", "Password for authentication")
	pf.IntVarP(&flagKeepalive, "keepalive", "k", 0, "Keepalive interval in seconds")
	pf.BoolVar(&flagNoCleanSes, "no-clean-session", false, "Resume a persistent broker session")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log client internals to stderr")

	rootCmd.AddCommand(
		pubCmd(),
		subCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadOptions builds the client options from the config file, then applies
// command-line overrides on top.
func loadOptions() (*mqttnode.Options, error) {
	opts, err := mqttnode.OpenConfigFile(flagConfig)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &mqttnode.Options{}
	}

	if flagBroker != "" {
		opts.Broker = flagBroker
	}
	if flagClientID != "" {
		opts.ClientID = flagClientID
	}
	if flagUsername != "" {
		opts.Username = flagUsername
	}
	if flagPassword != "" {
		opts.Password = flagPassword
	}
	if flagKeepalive > mqttnode.MaxKeepalive {
		return nil, fmt.Errorf("keepalive above %d seconds is not supported", mqttnode.MaxKeepalive)
	}
	if flagKeepalive > 0 {
		opts.Keepalive = &flagKeepalive
	}
	if flagNoCleanSes {
		f := false
		opts.CleanSession = &f
	}
	if !flagVerbose {
		opts.Logger = discardLogger()
	}

	if opts.Broker == "" {
		return nil, errors.New("no broker given, use --broker or a config file")
	}

	return opts, nil
}

// discardLogger silences the client's internal logging.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newClient builds a client over a fresh websocket transport.
func newClient() (*mqttnode.Client, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}
	return mqttnode.New(transport.NewWebsocket(), opts), nil
}
