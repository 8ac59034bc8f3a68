package ports

import "context"

// BrokerEvents is the handler contract a pub/sub transport drives. Methods
// may be invoked concurrently from the transport's own goroutines and must
// return quickly.
type BrokerEvents interface {
	OnConnect(clientID, remoteAddr string)
	OnDisconnect(clientID string, err error)
	OnPublish(clientID, topic string, payload []byte)
}

// Transport delivers broker events to a registered handler.
type Transport interface {
	Handle(events BrokerEvents)
	Start(ctx context.Context) error
	Stop() error
	Name() string
}
