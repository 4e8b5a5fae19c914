package tattoy

import (
	"sync"

	"tattoy/internal/cell"
	"tattoy/internal/compositor"
)

// Aggregator collects each overlay's latest contribution keyed by ID and
// recomposites them into the single tattoy_composite surface the renderer
// (C7) consumes, per spec.md §4.5/§4.6. This is the many-producers side of
// the "frame update channel" spec.md §9 describes; the renderer's
// SubmitOverlay is the one-consumer side.
type Aggregator struct {
	mu     sync.Mutex
	width  int
	height int
	layers map[string]layerEntry
	onSubmit func(*cell.Surface)
}

type layerEntry struct {
	z       int16
	surface *cell.Surface
}

// NewAggregator constructs an Aggregator for a tty of the given size.
// onComposite is called with the freshly recomposited surface after every
// Submit; typically (*renderer.Renderer).SubmitOverlay.
func NewAggregator(width, height int, onComposite func(*cell.Surface)) *Aggregator {
	return &Aggregator{
		width:    width,
		height:   height,
		layers:   make(map[string]layerEntry),
		onSubmit: onComposite,
	}
}

// Resize updates the composite's target dimensions; existing layers keep
// contributing until their owning overlay submits again at the new size.
func (a *Aggregator) Resize(width, height int) {
	a.mu.Lock()
	a.width, a.height = width, height
	a.mu.Unlock()
}

// Submit records id's latest surface at z-order layer and recomposites.
// A nil surface clears id's previous contribution (the overlay is
// submitting a blank frame to withdraw, per spec.md §4.6's "may also
// submit a blank frame to clear previous contribution").
func (a *Aggregator) Submit(id string, layer int16, surface *cell.Surface) {
	a.mu.Lock()
	if surface == nil {
		delete(a.layers, id)
	} else {
		a.layers[id] = layerEntry{z: layer, surface: surface}
	}
	composite := a.composeLocked()
	a.mu.Unlock()

	if a.onSubmit != nil {
		a.onSubmit(composite)
	}
}

// Withdraw removes id's contribution entirely (the overlay task exited).
func (a *Aggregator) Withdraw(id string) {
	a.Submit(id, 0, nil)
}

func (a *Aggregator) composeLocked() *cell.Surface {
	layers := make([]compositor.Layer, 0, len(a.layers))
	for _, le := range a.layers {
		if le.surface.Width != a.width || le.surface.Height != a.height {
			continue // stale size; skip until the overlay resubmits
		}
		layers = append(layers, compositor.Layer{Z: le.z, Opacity: 1, Surface: le.surface})
	}
	return compositor.Composite(a.width, a.height, layers)
}
