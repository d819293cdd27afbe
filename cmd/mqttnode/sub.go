package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mqttnode "github.com/freehuntx/mqtt-node"
)

func subCmd() *cobra.Command {
	var (
		topics []string
		qos    int
	)

	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Subscribe and print received messages",
		Long: `Connect to the broker, subscribe to one or more topic filters
and print every received message to stdout until interrupted.

Examples:
  mqttnode sub -b ws://broker:8080/mqtt -t sensors/#
  mqttnode sub -b ws://broker:8080/mqtt -t a/b -t c/d -q 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSub(topics, byte(qos))
		},
	}

	cmd.Flags().StringArrayVarP(&topics, "topic", "t", nil, "Topic filter to subscribe to (repeatable, required)")
	cmd.Flags().IntVarP(&qos, "qos", "q", 0, "Requested quality of service (0, 1 or 2)")
	cmd.MarkFlagRequired("topic")

	return cmd
}

func runSub(topics []string, qos byte) error {
	if qos > 2 {
		return fmt.Errorf("invalid qos %d", qos)
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	subs := make([]mqttnode.Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, mqttnode.Subscription{Topic: t, Qos: qos})
	}

	var failure error
	c.OnEvent(func(ev mqttnode.Event) {
		switch ev.Kind {
		case mqttnode.EventConnected:
			if err := c.SubscribeMultiple(subs); err != nil {
				failure = err
			}
		case mqttnode.EventSubscribed:
			fmt.Fprintf(os.Stderr, "subscribed to %s (qos %d)\n", ev.Topic, ev.Qos)
		case mqttnode.EventMessage:
			fmt.Printf("%s %s\n", ev.Topic, ev.Payload)
		case mqttnode.EventConnectingFailed:
			failure = errors.New("could not connect to broker")
		case mqttnode.EventDisconnected:
			failure = errors.New("connection lost")
		}
	})

	if err := c.Connect(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Poll()
			if failure != nil {
				return failure
			}
		case <-sig:
			if c.State() == mqttnode.StateEstablished {
				c.Disconnect()
			}
			return nil
		}
	}
}
