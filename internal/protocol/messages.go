package protocol

// SUBSCRIBE (client -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Assignments asks for the raw permutation on every update. Without it
	// the client only gets generation lifecycle messages and fetches PNGs.
	Assignments bool `json:"assignments,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SubscriberID    string `json:"subscriber_id"`
	Sidelen         int    `json:"sidelen"`
	Generation      uint32 `json:"generation"`
}

// ASSIGNMENTS (server -> client)
type AssignmentsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Generation      uint32 `json:"generation"`
	Batch           uint64 `json:"batch"`
	Sidelen         int    `json:"sidelen"`
	Assignments     []int  `json:"assignments,omitempty"`
}

// CANCELLED (server -> client)
type CancelledMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Generation      uint32 `json:"generation"`
}

// DONE (server -> client)
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Generation      uint32 `json:"generation"`
	Location        string `json:"location"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// StrokeRequest is the body of POST /v1/strokes: canvas positions
// (y*128+x) claimed by one new stroke.
type StrokeRequest struct {
	Positions []int `json:"positions"`
	// Frame defaults to the current frame when zero.
	Frame uint32 `json:"frame,omitempty"`
}

type StrokeResponse struct {
	StrokeID uint32 `json:"stroke_id"`
	Frame    uint32 `json:"frame"`
}

type RestartResponse struct {
	RunID      string `json:"run_id"`
	Generation uint32 `json:"generation"`
}
