/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package test

import (
	"context"
	"sync"

	"github.com/awslabs/host-factory-controlplane/pkg/events"
)

// EventRecorder is a mock events.Publisher subscriber used to facilitate
// testing, adapted from the teacher's own EventRecorder (which wrapped
// client-go's record.EventRecorder) onto this package's generic
// events.Publisher/events.Event shape.
type EventRecorder struct {
	mu      sync.RWMutex
	calls   map[string]int
	recorded []events.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{calls: map[string]int{}}
}

// Attach subscribes the recorder to every event type T on p. Call once per
// concrete event type the test cares about observing.
func Attach[T events.Event](r *EventRecorder, p *events.Publisher) {
	events.Subscribe[T](p, func(_ context.Context, e T) {
		r.record(e)
	})
}

func (r *EventRecorder) record(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, e)
	r.calls[e.EventName()]++
}

func (r *EventRecorder) Calls(eventName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[eventName]
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = nil
	r.calls = map[string]int{}
}

func (r *EventRecorder) ForEachEvent(f func(evt events.Event)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.recorded {
		f(e)
	}
}
