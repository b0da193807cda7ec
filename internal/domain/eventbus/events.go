package eventbus

import "time"

// 事件类型定义
const (
	// 传输相关事件
	EventTransmissionCompleted = "transmission:completed"

	// 系统事件
	EventSystemError = "system:error"
)

// 传输模式
const (
	ModeURL    = "url"
	ModeStored = "stored"
)

// TransmissionEvent is published once per pipeline run, successful or not.
type TransmissionEvent struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Source     string    `json:"source"`
	Endpoint   string    `json:"endpoint"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
	FinishedAt time.Time `json:"finishedAt"`
}

type SystemEventData struct {
	Level   string      `json:"level"` // error, warn, info
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
