package cmsync

import (
	"io"

	"github.com/MrEthical07/cmsync/guard"
	"github.com/MrEthical07/cmsync/internal/events"
)

// Event is a notification or navigation request raised by the client.
type Event = events.Event

// EventKind classifies an [Event].
type EventKind = events.Kind

// EventLevel is the severity of a notification.
type EventLevel = events.Level

// EventSink receives events from the client's dispatcher goroutine.
type EventSink = events.Sink

type (
	NoOpSink       = events.NoOpSink
	ChannelSink    = events.ChannelSink
	JSONWriterSink = events.JSONWriterSink
	EventSinkFunc  = events.SinkFunc
)

const (
	EventNotify   = events.KindNotify
	EventNavigate = events.KindNavigate

	LevelInfo    = events.LevelInfo
	LevelSuccess = events.LevelSuccess
	LevelError   = events.LevelError
)

// Navigation targets carried by [EventNavigate] events.
const (
	PathAuth      = guard.PathAuth
	PathDashboard = guard.PathDashboard
)

// NewChannelSink returns a sink that buffers up to buffer events.
func NewChannelSink(buffer int) *ChannelSink { return events.NewChannelSink(buffer) }

// NewJSONWriterSink returns a sink that writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return events.NewJSONWriterSink(w) }
