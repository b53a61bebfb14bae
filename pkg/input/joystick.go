package input

import "github.com/go-gl/mathgl/mgl64"

// Velocity is a normalized (linear, angular) pair, each in [-1, 1].
type Velocity struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// Joystick maps pointer positions on a square control surface to a Velocity.
// Up is forward and left is a positive (counter-clockwise) turn.
type Joystick struct {
	center    mgl64.Vec2
	maxRadius float64
	offset    mgl64.Vec2
	dragging  bool

	enabled func() bool
	emit    func(Velocity)
}

// NewJoystick creates a joystick for a width x height control. The knob
// travel is the largest circle around the center, less margin.
func NewJoystick(width, height, margin float64, enabled func() bool, emit func(Velocity)) *Joystick {
	center := mgl64.Vec2{width / 2, height / 2}
	maxRadius := center.X()
	if center.Y() < maxRadius {
		maxRadius = center.Y()
	}
	maxRadius -= margin
	if maxRadius <= 0 {
		maxRadius = 1
	}
	if enabled == nil {
		enabled = func() bool { return true }
	}
	if emit == nil {
		emit = func(Velocity) {}
	}
	return &Joystick{
		center:    center,
		maxRadius: maxRadius,
		enabled:   enabled,
		emit:      emit,
	}
}

// Begin starts a drag at (x, y). It is refused while disabled.
func (j *Joystick) Begin(x, y float64) bool {
	if !j.enabled() {
		return false
	}
	j.dragging = true
	j.Update(x, y)
	return true
}

// Update moves the knob while dragging. The offset from the center is
// clamped to maxRadius keeping its direction.
func (j *Joystick) Update(x, y float64) {
	if !j.dragging {
		return
	}
	offset := mgl64.Vec2{x, y}.Sub(j.center)
	if offset.Len() > j.maxRadius {
		offset = offset.Normalize().Mul(j.maxRadius)
	}
	j.offset = offset
	j.emit(j.Velocity())
}

// End finishes the interaction and re-centers the knob.
func (j *Joystick) End() {
	j.dragging = false
	j.offset = mgl64.Vec2{}
	j.emit(Velocity{})
}

// Dragging reports whether an interaction is in progress.
func (j *Joystick) Dragging() bool {
	return j.dragging
}

// Offset returns the knob position relative to the center.
func (j *Joystick) Offset() mgl64.Vec2 {
	return j.offset
}

// MaxRadius returns the knob travel in pixels.
func (j *Joystick) MaxRadius() float64 {
	return j.maxRadius
}

// Velocity returns the normalized velocity for the current offset.
func (j *Joystick) Velocity() Velocity {
	return Velocity{
		Linear:  unsigned(-j.offset.Y() / j.maxRadius),
		Angular: unsigned(-j.offset.X() / j.maxRadius),
	}
}

// unsigned drops the sign of a negative zero so it encodes as 0.
func unsigned(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}
