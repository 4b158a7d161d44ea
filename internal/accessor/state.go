// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package accessor implements the data-access layer between UI code and the
// backend handle. Each accessor owns one slice of tri-state data (loading /
// error / payload), refetches when its declared inputs change, and exposes a
// snapshot plus a change-notification channel.
//
// Accessors are actors: a single goroutine started by Start owns the state;
// commands, realtime events, and fetch settlements reach it over channels.
// Every fetch carries a generation number, and a settlement from a
// superseded generation is discarded, so an older request that finishes late
// can never overwrite newer data.
package accessor

// State is the tri-state envelope every accessor exposes. At any observable
// point exactly one of these holds: Loading is true, Err is non-empty, or
// the state is settled with Data valid and Err empty.
type State[T any] struct {
	Data    T
	Loading bool
	Err     string
}

// settlement carries a fetch result back into an accessor's loop together
// with the generation that issued the fetch.
type settlement[T any] struct {
	gen  uint64
	data T
	err  error
}

// notify signals a watcher channel without ever blocking the actor loop;
// back-to-back changes coalesce into one pending signal.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
