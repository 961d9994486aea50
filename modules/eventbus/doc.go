// Package eventbus fans booth notifications out to any number of listeners.
//
// Every user-visible outcome of the booth (a photo captured, an image
// deleted, a composite that could not be built) is published as an Event.
// Listeners register a buffered channel; when a listener's channel is full
// the event is dropped for that listener only, so a slow toast renderer or a
// disconnected broker never stalls the capture loop.
//
// # Basic Usage
//
//	bus := eventbus.New()
//	defer bus.Close()
//
//	toasts := make(chan eventbus.Event, 16)
//	bus.Subscribe("toasts", toasts)
//
//	go func() {
//	    for ev := range toasts {
//	        fmt.Println(ev.Message())
//	    }
//	}()
//
//	bus.Publish(eventbus.Event{Kind: eventbus.KindCaptured, Shot: 1})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Publish never blocks.
package eventbus
