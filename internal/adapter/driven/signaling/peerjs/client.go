// Package peerjs speaks the PeerJS signaling protocol and carries media calls
// over pion peer connections.
package peerjs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHost      = "0.peerjs.com"
	DefaultPort      = 443
	DefaultPath      = "/"
	DefaultKey       = "peerjs"
	DefaultHeartbeat = 5 * time.Second

	writeWait = 10 * time.Second
)

type Config struct {
	Host      string
	Port      int
	Path      string
	Key       string
	Secure    bool
	Heartbeat time.Duration
	// PeerID is requested from the server; a random one is used when empty.
	PeerID domain.PeerID
	ICE    webrtc.Configuration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if !strings.HasSuffix(c.Path, "/") {
		c.Path += "/"
	}
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	return c
}

// URL is the socket endpoint for id and token.
func (c Config) URL(id domain.PeerID, token string) string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("key", c.Key)
	q.Set("id", id.String())
	q.Set("token", token)
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     c.Path + "peerjs",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// NewFactory returns a port.SignalingFactory producing clients that share api.
func NewFactory(cfg Config, api *webrtc.API) port.SignalingFactory {
	return func(h port.SignalingHandlers) (port.SignalingClient, error) {
		return New(cfg, api, h)
	}
}

// Client is one registration with the signaling server.
type Client struct {
	cfg      Config
	api      *webrtc.API
	handlers port.SignalingHandlers
	id       domain.PeerID
	token    string
	dialer   *websocket.Dialer
	log      zerolog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	calls     map[string]*mediaCall
	destroyed bool
	stop      chan struct{}
}

func New(cfg Config, api *webrtc.API, h port.SignalingHandlers) (*Client, error) {
	if api == nil {
		return nil, errors.New("peerjs: nil webrtc api")
	}
	cfg = cfg.withDefaults()
	id := cfg.PeerID
	if id.IsZero() {
		id = domain.NewPeerID()
	}
	return &Client{
		cfg:      cfg,
		api:      api,
		handlers: h,
		id:       id,
		token:    uuid.NewString(),
		dialer:   websocket.DefaultDialer,
		log:      log.With().Str("component", "peerjs").Str("peer_id", id.String()).Logger(),
		calls:    make(map[string]*mediaCall),
		stop:     make(chan struct{}),
	}, nil
}

func (c *Client) ID() domain.PeerID {
	return c.id
}

// Open dials the server. OPEN and every later event arrive through the handlers.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return domain.ErrSignalingClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	endpoint := c.cfg.URL(c.id, c.token)
	c.log.Info().Str("url", endpoint).Msg("Connecting to signaling server")
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return domain.NewSignalingError(domain.ErrTypeServerError,
				fmt.Sprintf("signaling server answered %s", resp.Status), err)
		}
		return domain.NewSignalingError(domain.ErrTypeNetwork, "could not reach signaling server", err)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		conn.Close()
		return domain.ErrSignalingClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.heartbeat()
	return nil
}

func (c *Client) Call(ctx context.Context, target domain.PeerID, stream port.LocalStream) (port.MediaCall, error) {
	if target.IsZero() {
		return nil, domain.ErrInvalidTarget
	}
	c.mu.Lock()
	if c.destroyed || c.conn == nil {
		c.mu.Unlock()
		return nil, domain.ErrSignalingClosed
	}
	c.mu.Unlock()

	call, err := newMediaCall(c, "mc_"+uuid.NewString(), target, "")
	if err != nil {
		return nil, err
	}
	c.track(call)

	sdp, err := call.session.CreateOffer(trackSource(stream))
	if err != nil {
		call.Close()
		return nil, err
	}
	err = c.send(TypeOffer, target, Payload{
		SDP:          &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp},
		Type:         connectionTypeMedia,
		ConnectionID: call.id,
	})
	if err != nil {
		call.Close()
		return nil, err
	}
	call.session.StartTrickle()
	c.log.Debug().Str("connection_id", call.id).Str("target", target.String()).Msg("Sent offer")
	return call, nil
}

// Destroy closes every call and the socket. No handler fires afterwards.
func (c *Client) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	conn := c.conn
	calls := make([]*mediaCall, 0, len(c.calls))
	for _, call := range c.calls {
		calls = append(calls, call)
	}
	close(c.stop)
	c.mu.Unlock()

	for _, call := range calls {
		call.Close()
	}
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Client) send(t MessageType, dst domain.PeerID, payload any) error {
	msg, err := newMessage(t, dst.String(), payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrSignalingClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return domain.NewSignalingError(domain.ErrTypeNetwork, fmt.Sprintf("send %s", t), err)
	}
	return nil
}

func (c *Client) heartbeat() {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.send(TypeHeartbeat, "", nil); err != nil {
				c.log.Debug().Err(err).Msg("Heartbeat failed")
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if c.isDestroyed() {
				return
			}
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				c.log.Warn().Err(err).Msg("Malformed signaling message")
				continue
			}
			c.log.Warn().Err(err).Msg("Signaling connection lost")
			c.lost(err)
			return
		}
		c.handle(msg)
	}
}

// lost reports a dropped socket the way PeerJS does: disconnected, then a
// network error.
func (c *Client) lost(err error) {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	if c.handlers.OnDisconnected != nil {
		c.handlers.OnDisconnected()
	}
	c.emitError(domain.NewSignalingError(domain.ErrTypeNetwork, "lost connection to signaling server", err))
}

func (c *Client) handle(msg Message) {
	l := c.log.With().Str("type", string(msg.Type)).Str("src", msg.Src).Logger()
	l.Debug().Msg("Signaling message")

	switch msg.Type {
	case TypeOpen:
		if c.handlers.OnOpen != nil {
			c.handlers.OnOpen(c.id)
		}
	case TypeError:
		c.emitError(domain.NewSignalingError(domain.ErrTypeServerError, serverMessage(msg, "server error"), nil))
	case TypeIDTaken:
		c.emitError(domain.NewSignalingError(domain.ErrTypeUnavailableID,
			fmt.Sprintf("id %q is taken", c.id), nil))
	case TypeInvalidKey:
		c.emitError(domain.NewSignalingError(domain.ErrTypeServerError,
			fmt.Sprintf("api key %q is invalid", c.cfg.Key), nil))
	case TypeExpire:
		c.emitError(domain.NewSignalingError(domain.ErrTypePeerUnavailable,
			fmt.Sprintf("could not connect to peer %s", msg.Src), nil).About(domain.PeerID(msg.Src)))
	case TypeLeave:
		for _, call := range c.callsWith(domain.PeerID(msg.Src)) {
			l.Info().Str("connection_id", call.id).Msg("Peer left")
			call.Close()
		}
	case TypeOffer, TypeAnswer, TypeCandidate:
		var p Payload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			l.Warn().Err(err).Msg("Invalid payload")
			return
		}
		c.handleConnection(msg, p, l)
	default:
		l.Warn().Msg("Unrecognized signaling message")
	}
}

func (c *Client) handleConnection(msg Message, p Payload, l zerolog.Logger) {
	if p.Type != "" && p.Type != connectionTypeMedia {
		l.Debug().Str("connection_type", p.Type).Msg("Ignoring non-media connection")
		return
	}
	call := c.lookup(p.ConnectionID)

	switch msg.Type {
	case TypeOffer:
		if call != nil {
			l.Warn().Str("connection_id", p.ConnectionID).Msg("Offer for an existing connection, ignoring")
			return
		}
		if p.SDP == nil {
			l.Warn().Msg("Offer without sdp")
			return
		}
		incoming, err := newMediaCall(c, p.ConnectionID, domain.PeerID(msg.Src), p.SDP.SDP)
		if err != nil {
			c.emitError(domain.NewSignalingError(domain.ErrTypeWebRTC, "could not create peer connection", err))
			return
		}
		c.track(incoming)
		if c.handlers.OnCall != nil {
			c.handlers.OnCall(incoming)
		}
	case TypeAnswer:
		if call == nil || p.SDP == nil {
			l.Warn().Str("connection_id", p.ConnectionID).Msg("Answer for unknown connection")
			return
		}
		if err := call.session.AcceptAnswer(p.SDP.SDP); err != nil {
			call.fail(err)
		}
	case TypeCandidate:
		if call == nil || p.Candidate == nil {
			l.Debug().Str("connection_id", p.ConnectionID).Msg("Candidate for unknown connection")
			return
		}
		if err := call.session.AddRemoteCandidate(*p.Candidate); err != nil {
			l.Warn().Err(err).Msg("Failed to add ICE candidate")
		}
	}
}

func (c *Client) emitError(err *domain.SignalingError) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *Client) track(call *mediaCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[call.id] = call
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calls, id)
}

func (c *Client) lookup(id string) *mediaCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func (c *Client) callsWith(peer domain.PeerID) []*mediaCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*mediaCall
	for _, call := range c.calls {
		if call.peer == peer {
			out = append(out, call)
		}
	}
	return out
}

func serverMessage(msg Message, fallback string) string {
	var e ServerError
	if len(msg.Payload) > 0 && json.Unmarshal(msg.Payload, &e) == nil && e.Msg != "" {
		return e.Msg
	}
	return fallback
}

var _ port.SignalingClient = (*Client)(nil)
