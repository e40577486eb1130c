package events

// FeedUpdate é a mensagem do canal Redis Pub/Sub consumida pelo hub WebSocket.
// Type: "tally" | "status"
type FeedUpdate struct {
	BetID   string `json:"betId"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
