package call

// Twilio Media Streams wire shapes. Inbound events arrive as JSON text frames
// on the stream WebSocket; outbound media and marks are sent on the same
// socket keyed by streamSid.

type startPayload struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type mediaPayload struct {
	Track   string `json:"track"`
	Payload string `json:"payload"` // base64 mu-law
}

type markPayload struct {
	Name string `json:"name"`
}

type inboundEvent struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

type outboundMedia struct {
	Event     string     `json:"event"`
	StreamSid string     `json:"streamSid"`
	Media     mediaChunk `json:"media"`
}

type mediaChunk struct {
	Payload string `json:"payload"`
}

type outboundMark struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Mark      markPayload `json:"mark"`
}
