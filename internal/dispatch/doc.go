// Package dispatch runs the script's main loop.
//
// A Dispatcher is the only goroutine that ever calls into the script. Each
// cycle it:
//
//  1. polls input devices and pushes the resulting edge events, releases due
//     held keys, and reports focus and console size changes
//  2. drains the event queue, invoking the script once per event and stopping
//     at the first failure
//  3. pumps a bounded number of posted messages so collaborators that need the
//     dispatcher goroutine (reload, signals) stay responsive
//
// Producers (socket workers, signal handlers, file watchers) never call the
// script directly. They push events into the queue or post messages to the
// Pump.
package dispatch
