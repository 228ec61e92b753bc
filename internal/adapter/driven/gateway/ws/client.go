package ws

// Client is a UI connection attached to the hub.
type Client interface {
	ID() string
	Send(ev Event) error
	Close() error
}
