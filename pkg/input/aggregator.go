package input

// Actions receives exactly one call per change of the resolved Directive.
type Actions interface {
	Move(d Directive)
	// Stop halts the base. idle is true when no control is held at all.
	Stop(idle bool)
	EmergencyStop()
	ActuatorUp()
	ActuatorDown()
}

// Aggregator keeps the set of held identifiers and dispatches the resolved
// Directive when it changes. It is not safe for concurrent use; callers
// serialize input events.
type Aggregator struct {
	keys    KeyMap
	actions Actions
	held    map[string]Signal
	current Directive
}

// NewAggregator creates an aggregator dispatching to actions.
func NewAggregator(keys KeyMap, actions Actions) *Aggregator {
	if keys == nil {
		keys = DefaultKeyMap()
	}
	if actions == nil {
		panic("input: NewAggregator requires Actions")
	}
	return &Aggregator{
		keys:    keys,
		actions: actions,
		held:    make(map[string]Signal),
	}
}

// Press marks id as held. Unmapped identifiers are ignored.
func (a *Aggregator) Press(id string) Directive {
	id = Normalize(id)
	if sig, ok := a.keys[id]; ok {
		a.held[id] = sig
	}
	return a.update()
}

// Release drops id from the held set. Releasing an absent id is a no-op.
func (a *Aggregator) Release(id string) Directive {
	delete(a.held, Normalize(id))
	return a.update()
}

// Leave handles a pointer leaving a button, which counts as a release.
func (a *Aggregator) Leave(id string) Directive {
	return a.Release(id)
}

// Clear empties the held set, as on focus loss or disconnect.
func (a *Aggregator) Clear() Directive {
	for id := range a.held {
		delete(a.held, id)
	}
	return a.update()
}

// Current returns the last resolved Directive.
func (a *Aggregator) Current() Directive {
	return a.current
}

// Held returns the held identifiers.
func (a *Aggregator) Held() []string {
	ids := make([]string, 0, len(a.held))
	for id := range a.held {
		ids = append(ids, id)
	}
	return ids
}

func (a *Aggregator) update() Directive {
	active := make(map[Signal]bool, len(a.held))
	for _, sig := range a.held {
		active[sig] = true
	}

	next := Resolve(active)
	if next == a.current {
		return next
	}
	a.current = next
	a.dispatch(next)
	return next
}

func (a *Aggregator) dispatch(d Directive) {
	switch d {
	case DirectiveNone:
		a.actions.Stop(true)
	case DirectiveStop:
		a.actions.Stop(false)
	case DirectiveEmergencyStop:
		a.actions.EmergencyStop()
	case DirectiveActuatorUp:
		a.actions.ActuatorUp()
	case DirectiveActuatorDown:
		a.actions.ActuatorDown()
	default:
		a.actions.Move(d)
	}
}
