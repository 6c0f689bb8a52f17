// Package nats publishes pipeline events on a JetStream stream
package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/ytla-corr/internal/types"
)

const (
	// StreamName is the JetStream stream holding all pipeline events
	StreamName = "YTLA_PIPELINE"

	SubjectCalibrationCompleted = "ytla.calibration.completed"
	SubjectSEFDSolved           = "ytla.sefd.solved"
)

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// StreamConfig returns the stream definition created by New
func StreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectCalibrationCompleted, SubjectSEFDSolved},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	}
}

// New connects to url and makes sure the pipeline stream exists
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("ytla-corr"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(StreamConfig())
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

func (c *Client) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishCalibration announces a completed calibration run
func (c *Client) PublishCalibration(run *types.CalibrationRun) error {
	return c.publish(SubjectCalibrationCompleted, run)
}

// PublishSEFD announces the solution of one patch
func (c *Client) PublishSEFD(rec *types.SEFDRecord) error {
	return c.publish(SubjectSEFDSolved, rec)
}

// SubscribeCalibration delivers completed calibration runs to handler
func (c *Client) SubscribeCalibration(handler func(*types.CalibrationRun)) (*nats.Subscription, error) {
	return subscribe(c.js, SubjectCalibrationCompleted, handler)
}

// SubscribeSEFD delivers solved patches to handler
func (c *Client) SubscribeSEFD(handler func(*types.SEFDRecord)) (*nats.Subscription, error) {
	return subscribe(c.js, SubjectSEFDSolved, handler)
}

func subscribe[T any](js nats.JetStreamContext, subject string, handler func(*T)) (*nats.Subscription, error) {
	sub, err := js.Subscribe(subject, func(msg *nats.Msg) {
		v, err := decode[T](msg.Data)
		if err != nil {
			log.Printf("Warning: dropping malformed event on %s: %v", subject, err)
			return
		}
		handler(v)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
