package input

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type recordedAction struct {
	kind      string
	directive Directive
	idle      bool
}

type recordingActions struct {
	calls []recordedAction
}

func (r *recordingActions) Move(d Directive) {
	r.calls = append(r.calls, recordedAction{kind: "move", directive: d})
}
func (r *recordingActions) Stop(idle bool) {
	r.calls = append(r.calls, recordedAction{kind: "stop", idle: idle})
}
func (r *recordingActions) EmergencyStop() {
	r.calls = append(r.calls, recordedAction{kind: "estop"})
}
func (r *recordingActions) ActuatorUp() {
	r.calls = append(r.calls, recordedAction{kind: "up"})
}
func (r *recordingActions) ActuatorDown() {
	r.calls = append(r.calls, recordedAction{kind: "down"})
}

func signals(s ...Signal) map[Signal]bool {
	m := make(map[Signal]bool, len(s))
	for _, sig := range s {
		m[sig] = true
	}
	return m
}

func TestResolve(t *testing.T) {
	Convey("Resolution follows the fixed precedence order", t, func() {
		So(Resolve(signals()), ShouldEqual, DirectiveNone)
		So(Resolve(signals(SignalForward)), ShouldEqual, DirectiveForward)
		So(Resolve(signals(SignalBackward)), ShouldEqual, DirectiveBackward)
		So(Resolve(signals(SignalLeft)), ShouldEqual, DirectiveLeft)
		So(Resolve(signals(SignalRight)), ShouldEqual, DirectiveRight)
		So(Resolve(signals(SignalForward, SignalLeft)), ShouldEqual, DirectiveForwardLeft)
		So(Resolve(signals(SignalForward, SignalRight)), ShouldEqual, DirectiveForwardRight)
		So(Resolve(signals(SignalBackward, SignalLeft)), ShouldEqual, DirectiveBackwardLeft)
		So(Resolve(signals(SignalBackward, SignalRight)), ShouldEqual, DirectiveBackwardRight)
		So(Resolve(signals(SignalForward, SignalBackward)), ShouldEqual, DirectiveForward)
		So(Resolve(signals(SignalLeft, SignalRight)), ShouldEqual, DirectiveLeft)
		So(Resolve(signals(SignalLift, SignalForward)), ShouldEqual, DirectiveActuatorUp)
		So(Resolve(signals(SignalLift, SignalLower)), ShouldEqual, DirectiveActuatorUp)
		So(Resolve(signals(SignalStop, SignalLift, SignalForward)), ShouldEqual, DirectiveStop)
	})

	Convey("Emergency stop wins over every other signal", t, func() {
		all := []Signal{SignalForward, SignalBackward, SignalLeft, SignalRight, SignalStop, SignalLift, SignalLower}
		for mask := 0; mask < 1<<len(all); mask++ {
			active := signals(SignalEmergencyStop)
			for i, sig := range all {
				if mask&(1<<i) != 0 {
					active[sig] = true
				}
			}
			So(Resolve(active), ShouldEqual, DirectiveEmergencyStop)
		}
	})
}

func TestAggregatorHistoryIndependence(t *testing.T) {
	Convey("Two press orders reaching the same set resolve identically", t, func() {
		orders := [][]string{
			{"w", "a", "l"},
			{"l", "w", "a"},
			{"a", "l", "w"},
		}
		var results []Directive
		for _, order := range orders {
			agg := NewAggregator(DefaultKeyMap(), &recordingActions{})
			for _, id := range order {
				agg.Press(id)
			}
			results = append(results, agg.Current())
		}
		So(results[0], ShouldEqual, DirectiveActuatorUp)
		So(results[1], ShouldEqual, results[0])
		So(results[2], ShouldEqual, results[0])

		Convey("and a press-release detour does not change the outcome", func() {
			agg := NewAggregator(DefaultKeyMap(), &recordingActions{})
			agg.Press("w")
			agg.Press("e")
			agg.Release("e")
			agg.Press("a")
			So(agg.Current(), ShouldEqual, DirectiveForwardLeft)
		})
	})
}

func TestAggregatorDispatch(t *testing.T) {
	Convey("Given an aggregator with the default key map", t, func() {
		rec := &recordingActions{}
		agg := NewAggregator(DefaultKeyMap(), rec)

		Convey("forward then left combines into a diagonal and decomposes on release", func() {
			So(agg.Press("w"), ShouldEqual, DirectiveForward)
			So(agg.Press("a"), ShouldEqual, DirectiveForwardLeft)
			So(agg.Release("w"), ShouldEqual, DirectiveLeft)
			So(agg.Release("a"), ShouldEqual, DirectiveNone)

			So(rec.calls, ShouldResemble, []recordedAction{
				{kind: "move", directive: DirectiveForward},
				{kind: "move", directive: DirectiveForwardLeft},
				{kind: "move", directive: DirectiveLeft},
				{kind: "stop", idle: true},
			})
		})

		Convey("identical directives are dispatched once", func() {
			agg.Press("w")
			agg.Press("ArrowUp")
			agg.Release("w")
			So(rec.calls, ShouldHaveLength, 1)
			So(agg.Current(), ShouldEqual, DirectiveForward)
		})

		Convey("identifiers are case-insensitive and buttons share the key path", func() {
			agg.Press("W")
			agg.Release("w")
			agg.Press("forward")
			agg.Leave("FORWARD")
			So(rec.calls, ShouldHaveLength, 4)
			So(agg.Held(), ShouldBeEmpty)
		})

		Convey("releasing an absent id is a no-op", func() {
			So(agg.Release("d"), ShouldEqual, DirectiveNone)
			So(rec.calls, ShouldBeEmpty)
		})

		Convey("unmapped keys are ignored", func() {
			So(agg.Press("q"), ShouldEqual, DirectiveNone)
			So(agg.Held(), ShouldBeEmpty)
			So(rec.calls, ShouldBeEmpty)
		})

		Convey("stop and emergency stop are reported distinctly from idle", func() {
			agg.Press(" ")
			agg.Press("e")
			agg.Release("e")
			agg.Release("space")
			agg.Release(" ")
			So(rec.calls, ShouldResemble, []recordedAction{
				{kind: "stop", idle: false},
				{kind: "estop"},
				{kind: "stop", idle: false},
				{kind: "stop", idle: true},
			})
		})

		Convey("actuator signals dispatch once per change", func() {
			agg.Press("l")
			agg.Press("lift")
			agg.Release("l")
			agg.Release("lift")
			agg.Press("k")
			So(rec.calls, ShouldResemble, []recordedAction{
				{kind: "up"},
				{kind: "stop", idle: true},
				{kind: "down"},
			})
		})

		Convey("clear releases everything", func() {
			agg.Press("w")
			agg.Press("d")
			So(agg.Clear(), ShouldEqual, DirectiveNone)
			So(agg.Held(), ShouldBeEmpty)
			So(rec.calls[len(rec.calls)-1], ShouldResemble, recordedAction{kind: "stop", idle: true})
		})
	})
}

func TestKeyMap(t *testing.T) {
	Convey("Overrides extend the default map", t, func() {
		km, err := NewKeyMap(map[string]string{"I": "Forward", "j": "left"})
		So(err, ShouldBeNil)

		sig, ok := km.Lookup("i")
		So(ok, ShouldBeTrue)
		So(sig, ShouldEqual, SignalForward)

		sig, ok = km.Lookup("w")
		So(ok, ShouldBeTrue)
		So(sig, ShouldEqual, SignalForward)
	})

	Convey("Unknown signal names are rejected", t, func() {
		_, err := NewKeyMap(map[string]string{"x": "jump"})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "jump")
	})
}

func TestJoystick(t *testing.T) {
	Convey("Given a 240x240 joystick with a 20px margin", t, func() {
		var emitted []Velocity
		enabled := true
		joy := NewJoystick(240, 240, 20, func() bool { return enabled }, func(v Velocity) {
			emitted = append(emitted, v)
		})
		So(joy.MaxRadius(), ShouldEqual, 100.0)

		Convey("pushing up drives forward at full scale", func() {
			So(joy.Begin(120, 120), ShouldBeTrue)
			joy.Update(120, 20)
			So(joy.Velocity(), ShouldResemble, Velocity{Linear: 1, Angular: 0})
		})

		Convey("pushing left turns counter-clockwise", func() {
			joy.Begin(120, 120)
			joy.Update(70, 120)
			So(joy.Velocity(), ShouldResemble, Velocity{Linear: 0, Angular: 0.5})
		})

		Convey("offsets beyond the radius are clamped keeping direction", func() {
			joy.Begin(120, 120)
			joy.Update(520, 120)
			So(joy.Offset().Len(), ShouldAlmostEqual, 100, 1e-9)
			So(joy.Velocity().Angular, ShouldAlmostEqual, -1, 1e-9)

			joy.Update(420, 420)
			v := joy.Velocity()
			So(math.Hypot(v.Linear, v.Angular), ShouldAlmostEqual, 1, 1e-9)
			So(v.Linear, ShouldAlmostEqual, -math.Sqrt2/2, 1e-9)
			So(v.Angular, ShouldAlmostEqual, -math.Sqrt2/2, 1e-9)
		})

		Convey("every emitted component stays within [-1, 1]", func() {
			joy.Begin(0, 0)
			for x := -500.0; x <= 500; x += 37 {
				for y := -500.0; y <= 500; y += 41 {
					joy.Update(x, y)
				}
			}
			for _, v := range emitted {
				So(math.Abs(v.Linear), ShouldBeLessThanOrEqualTo, 1+1e-9)
				So(math.Abs(v.Angular), ShouldBeLessThanOrEqualTo, 1+1e-9)
			}
		})

		Convey("ending the interaction emits a zero velocity", func() {
			joy.Begin(120, 120)
			joy.Update(200, 30)
			joy.End()
			So(emitted[len(emitted)-1], ShouldResemble, Velocity{})
			So(joy.Dragging(), ShouldBeFalse)
			So(joy.Offset().Len(), ShouldEqual, 0.0)
		})

		Convey("moves without a drag are ignored", func() {
			joy.Update(200, 30)
			So(emitted, ShouldBeEmpty)
		})

		Convey("begin is refused while disabled", func() {
			enabled = false
			So(joy.Begin(120, 20), ShouldBeFalse)
			joy.Update(120, 20)
			So(emitted, ShouldBeEmpty)
		})
	})
}
