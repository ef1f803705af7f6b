package core

import "sync"

// EventContext carries the payload of a recorder event.
type EventContext struct {
	Label   string
	Serial  uint64
	Count   uint32
	Err     error
	Payload interface{}
}

// Recorder event codes. Applications should use codes beyond 255.
type SystemEventCode int

const (
	// A native call failed and the device must be considered lost.
	/* Context usage:
	 * err := data.Err
	 */
	EVENT_CODE_DEVICE_LOST SystemEventCode = 0x01

	// A shader-visible descriptor heap ran out and was replaced.
	/* Context usage:
	 * serial := data.Serial
	 * label := data.Label // "cbv-srv-uav" or "sampler"
	 */
	EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED SystemEventCode = 0x02

	// A command buffer finished recording.
	/* Context usage:
	 * label := data.Label
	 * commands := data.Count
	 */
	EVENT_CODE_COMMAND_BUFFER_RECORDED SystemEventCode = 0x03

	// The recorder configuration changed on disk.
	/* Context usage:
	 * cfg := data.Payload.(*RecorderConfig)
	 */
	EVENT_CODE_CONFIG_CHANGED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// State structure.
type eventSystemState struct {
	mu sync.RWMutex
	// Lookup table for event codes.
	registered [MAX_MESSAGE_CODES]eventCodeEntry
}

/**
 * Event system internal state.
 */
var onceEvent sync.Once
var eventState *eventSystemState = nil

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener_inst interface{}, data EventContext) bool

func events() *eventSystemState {
	onceEvent.Do(func() {
		eventState = &eventSystemState{}
	})
	return eventState
}

func EventShutdown() {
	s := events()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < MAX_MESSAGE_CODES; i++ {
		s.registered[i].events = nil
	}
}

/**
 * Register to listen for when events are sent with the provided code. A listener
 * already registered for the code is not registered again and this returns false.
 * @param code The event code to listen for.
 * @param listener The listener instance. Can be nil.
 * @param onEvent The callback invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	s := events()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.registered[code].events {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	s.registered[code].events = append(s.registered[code].events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister a listener from the provided code.
 * @returns true if the listener was found and removed; otherwise false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES {
		return false
	}
	s := events()
	s.mu.Lock()
	defer s.mu.Unlock()

	registered := s.registered[code].events
	for i, e := range registered {
		if e.listener == listener {
			s.registered[code].events = append(registered[:i:i], registered[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If a handler returns true
 * the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES {
		return false
	}
	s := events()
	s.mu.RLock()
	registered := append([]*registeredEvent(nil), s.registered[code].events...)
	s.mu.RUnlock()

	for _, e := range registered {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}
