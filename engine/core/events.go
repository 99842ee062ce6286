package core

// EventContext carries the payload of a fired event. Interpretation depends on the code.
type EventContext struct {
	Data struct {
		U32 [4]uint32
		F32 [4]float32
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EventCodeApplicationQuit SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * u32 width = data.U32[0];
	 * u32 height = data.U32[1];
	 */
	EventCodeResized SystemEventCode = 0x08

	// The swapchain was rebuilt.
	/* Context usage:
	 * u32 width = data.U32[0];
	 * u32 height = data.U32[1];
	 * u32 image count = data.U32[2];
	 */
	EventCodeSwapchainRecreated SystemEventCode = 0x09

	MaxEventCode SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MaxMessageCodes = 16384

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// Dispatcher routes events to listeners. It is created by the owner of the frame loop and
// passed to whoever needs to fire or listen; it is not safe for concurrent use.
type Dispatcher struct {
	registered map[SystemEventCode][]registeredEvent
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 */
func (d *Dispatcher) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code >= MaxMessageCodes || onEvent == nil {
		return false
	}
	for _, e := range d.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	d.registered[code] = append(d.registered[code], registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes the listener for code. Returns false when nothing matched.
func (d *Dispatcher) Unregister(code SystemEventCode, listener interface{}) bool {
	events := d.registered[code]
	for i, e := range events {
		if e.listener == listener {
			d.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 */
func (d *Dispatcher) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	for _, e := range d.registered[code] {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (d *Dispatcher) Shutdown() {
	d.registered = make(map[SystemEventCode][]registeredEvent)
}
