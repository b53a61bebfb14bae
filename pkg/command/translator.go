// Package command converts resolved operator intent into the velocity and
// actuator messages published on the bridge.
package command

import (
	"github.com/open-teleop/console/pkg/config"
	"github.com/open-teleop/console/pkg/input"
	"github.com/open-teleop/console/pkg/log"
	"github.com/open-teleop/console/pkg/rosmsg"
)

// Publisher sends commands on the bridge. Both methods report whether the
// message was accepted; a refused publish is not an error.
type Publisher interface {
	PublishTwist(twist rosmsg.Twist) bool
	PublishActuator(position float64) bool
}

// unit (linear, angular) per movement directive; left is a positive turn.
var units = map[input.Directive][2]float64{
	input.DirectiveForward:       {1, 0},
	input.DirectiveBackward:      {-1, 0},
	input.DirectiveLeft:          {0, 1},
	input.DirectiveRight:         {0, -1},
	input.DirectiveForwardLeft:   {1, 1},
	input.DirectiveForwardRight:  {1, -1},
	input.DirectiveBackwardLeft:  {-1, 1},
	input.DirectiveBackwardRight: {-1, -1},
}

// Translator implements input.Actions on top of a Publisher.
type Translator struct {
	pub      Publisher
	drive    config.DriveConfig
	actuator *Actuator
	logger   log.Logger

	linear  float64
	angular float64
}

// NewTranslator creates a translator. The actuator is owned by the caller so
// its position can outlive a connection.
func NewTranslator(pub Publisher, drive config.DriveConfig, actuator *Actuator, logger log.Logger) *Translator {
	if pub == nil || actuator == nil || logger == nil {
		panic("command: NewTranslator requires a publisher, an actuator and a logger")
	}
	return &Translator{
		pub:      pub,
		drive:    drive,
		actuator: actuator,
		logger:   logger,
	}
}

// Move publishes the scaled unit vector of a movement directive.
func (t *Translator) Move(d input.Directive) {
	u, ok := units[d]
	if !ok {
		t.logger.Warnf("Ignoring non-movement directive %s", d)
		return
	}
	t.send(u[0]*t.drive.MoveSpeed, u[1]*t.drive.TurnSpeed)
}

// Stop publishes a zero twist.
func (t *Translator) Stop(idle bool) {
	t.send(0, 0)
}

// EmergencyStop publishes a zero twist.
func (t *Translator) EmergencyStop() {
	t.logger.Warnf("Emergency stop requested")
	t.send(0, 0)
}

// ActuatorUp raises the actuator one step and publishes the new position.
func (t *Translator) ActuatorUp() {
	t.pub.PublishActuator(t.actuator.Raise())
}

// ActuatorDown lowers the actuator one step and publishes the new position.
func (t *Translator) ActuatorDown() {
	t.pub.PublishActuator(t.actuator.Lower())
}

// Joystick publishes a joystick velocity scaled to the configured maximums.
func (t *Translator) Joystick(v input.Velocity) {
	t.send(v.Linear*t.drive.MaxLinear, v.Angular*t.drive.MaxAngular)
}

// Last returns the most recently published (linear, angular) pair. A stop
// counts even when it was suppressed.
func (t *Translator) Last() (linear, angular float64) {
	return t.linear, t.angular
}

func (t *Translator) send(linear, angular float64) {
	if t.pub.PublishTwist(rosmsg.PlanarTwist(linear, angular)) || (linear == 0 && angular == 0) {
		t.linear, t.angular = linear, angular
		return
	}
	t.logger.Debugf("Velocity command suppressed: linear=%.2f angular=%.2f", linear, angular)
}
