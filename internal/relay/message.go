package relay

// Message is a single frame read from or written to a relay connection. The
// relay never inspects Data; it is delivered to subscribers byte for byte.
type Message struct {
	// Type is the websocket frame type (websocket.TextMessage or BinaryMessage).
	Type int
	Data []byte

	// client is the client that sent the message.
	// It's used internally by the Hub and never written to the wire.
	client *Client
}
