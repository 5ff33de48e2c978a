package kds

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/floor-ops/utils"
)

// Transport is the pub/sub channel instances share. The production
// implementation is Redis; tests use an in-memory fake.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

type envelope struct {
	Origin   string          `json:"origin"`
	TenantID string          `json:"tenant_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"payload"`
}

// Relay mirrors hub traffic between server instances so a dashboard connected
// to one instance still hears about transitions committed on another.
type Relay struct {
	Hub            *Hub
	Transport      Transport
	Channel        string
	Origin         string
	PublishTimeout time.Duration

	stopChan chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewRelay(hub *Hub, transport Transport, channel string) *Relay {
	return &Relay{
		Hub:            hub,
		Transport:      transport,
		Channel:        channel,
		Origin:         uuid.NewString(),
		PublishTimeout: 2 * time.Second,
		stopChan:       make(chan struct{}),
	}
}

// Start subscribes and begins relaying in both directions.
func (r *Relay) Start(ctx context.Context) error {
	if r.Transport == nil {
		return errors.New("relay has no transport")
	}
	incoming, closeSub, err := r.Transport.Subscribe(ctx, r.Channel)
	if err != nil {
		return err
	}

	r.Hub.setForward(r.forward)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer closeSub()
		for {
			select {
			case payload, ok := <-incoming:
				if !ok {
					return
				}
				r.receive(payload)
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	utils.InfoLogger.Printf("Event relay started on channel %s (origin %s)", r.Channel, r.Origin)
	return nil
}

// Stop detaches from the hub and ends the receive loop.
func (r *Relay) Stop() {
	r.once.Do(func() {
		r.Hub.setForward(nil)
		close(r.stopChan)
	})
	r.wg.Wait()
}

func (r *Relay) forward(msg Message) {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		utils.ErrorLogger.Printf("relay: marshal %s payload: %v", msg.Event, err)
		return
	}
	payload, err := json.Marshal(envelope{
		Origin:   r.Origin,
		TenantID: msg.TenantID,
		Event:    msg.Event,
		Data:     data,
	})
	if err != nil {
		utils.ErrorLogger.Printf("relay: marshal envelope: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.PublishTimeout)
		defer cancel()
		if err := r.Transport.Publish(ctx, r.Channel, payload); err != nil {
			utils.ErrorLogger.Printf("relay: publish %s: %v", msg.Event, err)
		}
	}()
}

func (r *Relay) receive(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		utils.ErrorLogger.Printf("relay: bad envelope: %v", err)
		return
	}
	if env.Origin == r.Origin {
		return
	}
	r.Hub.deliver(Message{
		TenantID: env.TenantID,
		Event:    env.Event,
		Data:     env.Data,
	})
}
