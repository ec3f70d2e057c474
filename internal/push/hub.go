// Package push terminates WebSocket connections for buyers, vendors and
// dashboards and forwards NATS push traffic onto them. The hub is a
// plain fan-out: one goroutine owns the registry, subjects map to
// channels by stripping the push prefix, and slow consumers are dropped
// rather than allowed to stall delivery.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// Subscriber is the subset of nats.Conn the hub needs.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Tracker receives connection lifecycle signals from vendor sockets.
// Satisfied by presence.Tracker.
type Tracker interface {
	MarkOnline(ctx context.Context, vendorID, sessionToken string, productIDs []string) error
	MarkOffline(ctx context.Context, vendorID, reason string) error
	Heartbeat(ctx context.Context, vendorID string) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy belongs to the edge proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub owns the client registry and routes envelopes to channels.
type Hub struct {
	tracker Tracker
	logger  *zap.Logger

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery

	clients map[string]map[*Client]struct{} // channel -> clients
	sub     *nats.Subscription
}

type delivery struct {
	channel string
	data    []byte
}

func NewHub(tracker Tracker, logger *zap.Logger) *Hub {
	return &Hub{
		tracker:    tracker,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		clients:    make(map[string]map[*Client]struct{}),
	}
}

// Run processes registry changes and deliveries until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			if h.clients[c.channel] == nil {
				h.clients[c.channel] = make(map[*Client]struct{})
			}
			h.clients[c.channel][c] = struct{}{}
			h.logger.Info("push.client_connected",
				zap.String("channel", c.channel),
				zap.Int("channel_clients", len(h.clients[c.channel])))

		case c := <-h.unregister:
			if set, ok := h.clients[c.channel]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.send)
					if len(set) == 0 {
						delete(h.clients, c.channel)
					}
				}
			}
			h.logger.Info("push.client_disconnected", zap.String("channel", c.channel))

		case d := <-h.deliver:
			for c := range h.clients[d.channel] {
				select {
				case c.send <- d.data:
				default:
					// Slow consumer: drop the connection, not the hub.
					delete(h.clients[d.channel], c)
					close(c.send)
					h.logger.Warn("push.slow_consumer_dropped", zap.String("channel", d.channel))
				}
			}

		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			return
		}
	}
}

// SubscribePush attaches the hub to the push subject tree. Subjects map
// to channels by dropping the prefix: push.vendor.42 -> vendor.42,
// push.presence -> presence.
func (h *Hub) SubscribePush(nc Subscriber) error {
	sub, err := nc.Subscribe(model.PushSubjectPrefix+".>", func(msg *nats.Msg) {
		channel := strings.TrimPrefix(msg.Subject, model.PushSubjectPrefix+".")
		select {
		case h.deliver <- delivery{channel: channel, data: msg.Data}:
		default:
			h.logger.Warn("push.delivery_queue_full", zap.String("subject", msg.Subject))
		}
	})
	if err != nil {
		return err
	}
	h.sub = sub
	h.logger.Info("push.subscribed", zap.String("subject", model.PushSubjectPrefix+".>"))
	return nil
}

// Close drains the NATS subscription.
func (h *Hub) Close() {
	if h.sub != nil {
		h.sub.Unsubscribe() //nolint:errcheck
	}
}

// ServeWS upgrades an HTTP request to a push socket. Identity comes
// from query parameters; authentication happens at the edge.
//
//	GET /ws?kind=vendor&id=42&token=...&products=p1,p2
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	kind := model.PartyKind(r.URL.Query().Get("kind"))
	id := r.URL.Query().Get("id")
	if !kind.Valid() || id == "" {
		http.Error(w, "kind and id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("push.upgrade_failed", zap.Error(err))
		return
	}

	party := model.Party{Kind: kind, ID: id}
	c := &Client{
		hub:     h,
		conn:    conn,
		party:   party,
		channel: party.Channel(),
		send:    make(chan []byte, clientSendBuffer),
		logger:  h.logger.With(zap.String("channel", party.Channel())),
	}

	if kind == model.PartyVendor {
		token := r.URL.Query().Get("token")
		products := splitProducts(r.URL.Query().Get("products"))
		if err := h.tracker.MarkOnline(r.Context(), id, token, products); err != nil {
			h.logger.Warn("push.mark_online_failed", zap.String("vendor_id", id), zap.Error(err))
		}
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}

// Listen runs the push HTTP listener until ctx is cancelled.
func (h *Hub) Listen(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	h.logger.Info("push.listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func splitProducts(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// inboundFrame is what clients send upstream. Only vendors send
// anything meaningful; everything else is ignored.
type inboundFrame struct {
	Type       string   `json:"type"` // "heartbeat" | "products"
	ProductIDs []string `json:"product_ids,omitempty"`
}

func parseInbound(data []byte) (inboundFrame, bool) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return inboundFrame{}, false
	}
	return f, f.Type != ""
}
