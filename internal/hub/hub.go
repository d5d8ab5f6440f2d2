// Package hub fans messages out to subscribers by topic. All state lives in
// one goroutine; everything else talks to it through the inbox.
package hub

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("hub is shut down")

const (
	KindStatus = "status" // rendered queue status
	KindAudit  = "audit"  // operator-facing record of a committed change
	KindPrompt = "prompt" // confirmation round for an operator
	KindNotice = "notice" // message for a team
)

type Message struct {
	Topic string    `json:"topic"`
	Kind  string    `json:"kind"`
	Body  string    `json:"body,omitempty"`
	Data  any       `json:"data,omitempty"`
	Time  time.Time `json:"time"`
}

func OperatorTopic(id string) string { return "operator:" + id }

func TeamTopic(textChannel string) string { return "team:" + textChannel }

type Msg interface{ isHubMsg() }

type Join struct {
	ClientID string
	Topic    string
	Outbox   chan Message // where this client wants to receive messages
}

type Leave struct{ ClientID string }

type Publish struct{ Message Message }

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

func (Join) isHubMsg()     {}
func (Leave) isHubMsg()    {}
func (Publish) isHubMsg()  {}
func (GetState) isHubMsg() {}
func (Shutdown) isHubMsg() {}

type View struct {
	Published  int
	NumClients int
	Topics     map[string]int // subscribers per topic
}

type client struct {
	topic string
	out   chan Message
}

type Hub struct {
	inbox     chan Msg
	clients   map[string]client
	last      map[string]Message // replayed to late joiners, prompts excluded
	published int
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan Msg, 64),
		clients: make(map[string]client),
		last:    make(map[string]Message),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

// Expose the inbox so tests or the ws layer can send messages.
func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Send delivers m to the hub goroutine unless the hub or ctx is done first.
func (h *Hub) Send(ctx context.Context, m Msg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish queues m for delivery, stamping the time if unset.
func (h *Hub) Publish(ctx context.Context, m Message) error {
	if m.Time.IsZero() {
		m.Time = time.Now().UTC()
	}
	if h.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case h.inbox <- Publish{Message: m}:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.clients[msg.ClientID] = client{topic: msg.Topic, out: msg.Outbox}
				if last, ok := h.last[msg.Topic]; ok {
					h.deliver(msg.ClientID, last)
				}

			case Leave:
				delete(h.clients, msg.ClientID)

			case Publish:
				h.published++
				// prompts go stale once their round resolves, never replay them
				if msg.Message.Kind != KindPrompt {
					h.last[msg.Message.Topic] = msg.Message
				}
				for id, c := range h.clients {
					if c.topic == msg.Message.Topic {
						h.deliver(id, msg.Message)
					}
				}

			case GetState:
				topics := map[string]int{}
				for _, c := range h.clients {
					topics[c.topic]++
				}
				msg.Reply <- View{Published: h.published, NumClients: len(h.clients), Topics: topics}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) deliver(id string, m Message) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	select {
	case c.out <- m:
	default:
		// Client is slow/full - drop them.
		close(c.out)
		delete(h.clients, id)
	}
}

func (h *Hub) shutdown() {
	h.cancel()
	for id, c := range h.clients {
		close(c.out) // no more messages for this client
		delete(h.clients, id)
	}
}
