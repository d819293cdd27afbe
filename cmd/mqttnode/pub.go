package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	mqttnode "github.com/freehuntx/mqtt-node"
)

func pubCmd() *cobra.Command {
	var (
		topic   string
		message string
		qos     int
		retain  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pub",
		Short: "Publish a single message",
		Long: `Connect to the broker, publish one message and disconnect.

For QoS 1 and 2 the command waits until the broker acknowledged
the message before disconnecting.

Examples:
  mqttnode pub -b ws://broker:8080/mqtt -t sensors/temp -m 21.5
  mqttnode pub -b ws://broker:8080/mqtt -t alerts -m down -q 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPub(topic, message, byte(qos), retain, timeout)
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to publish to (required)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message payload")
	cmd.Flags().IntVarP(&qos, "qos", "q", 0, "Quality of service (0, 1 or 2)")
	cmd.Flags().BoolVarP(&retain, "retain", "r", false, "Retain the message on the broker")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	cmd.MarkFlagRequired("topic")

	return cmd
}

func runPub(topic, message string, qos byte, retain bool, timeout time.Duration) error {
	if qos > 2 {
		return fmt.Errorf("invalid qos %d", qos)
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	var (
		published bool
		failure   error
	)
	c.OnEvent(func(ev mqttnode.Event) {
		switch ev.Kind {
		case mqttnode.EventConnected:
			if err := c.Publish(topic, []byte(message), qos, retain); err != nil {
				failure = err
				return
			}
			published = true
		case mqttnode.EventConnectingFailed:
			failure = errors.New("could not connect to broker")
		case mqttnode.EventDisconnected:
			if failure == nil {
				failure = errors.New("connection lost before the message was acknowledged")
			}
		}
	})

	if err := c.Connect(); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(timeout)

	for range ticker.C {
		c.Poll()

		if failure != nil {
			return failure
		}
		if published && c.Pending() == 0 {
			return c.Disconnect()
		}
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for the broker")
		}
	}

	return nil
}
