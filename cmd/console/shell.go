package main

import (
	"encoding/json"
	"strconv"

	"github.com/abiosoft/ishell/v2"

	"github.com/open-teleop/console/domain/teleop"
	"github.com/open-teleop/console/pkg/bridge"
)

// newShell builds the operator shell. Every command maps onto one session
// call, like the HTTP and websocket surfaces.
func newShell(session *teleop.Session, manager *bridge.Manager) *ishell.Shell {
	shell := ishell.New()
	shell.Println("Open-Teleop operator shell")

	shell.AddCmd(&ishell.Cmd{
		Name: "connect",
		Help: "connect [url] - connect to the bridge (default: configured url)",
		Func: func(c *ishell.Context) {
			url := ""
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			session.Connect(url)
			c.Printf("Connecting (%s)\n", manager.Status().URL)
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "disconnect",
		Help: "disconnect from the bridge",
		Func: func(c *ishell.Context) {
			session.Disconnect()
			c.Println("Disconnected")
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "press",
		Help: "press <id> - press a key or button (w, a, s, d, e, l, k, space, forward, ...)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: press <id>")
				return
			}
			c.Printf("Active: %s\n", session.Press(c.Args[0]).Label())
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "release",
		Help: "release <id> - release a key or button",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: release <id>")
				return
			}
			c.Printf("Active: %s\n", session.Release(c.Args[0]).Label())
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "blur",
		Help: "release every held key and end the joystick drag",
		Func: func(c *ishell.Context) {
			session.Blur()
			c.Println("Released all controls")
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "joy",
		Help: "joy <x> <y> - drag the joystick knob to (x, y)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: joy <x> <y>")
				return
			}
			x, errX := strconv.ParseFloat(c.Args[0], 64)
			y, errY := strconv.ParseFloat(c.Args[1], 64)
			if errX != nil || errY != nil {
				c.Println("x and y must be numbers")
				return
			}
			if !session.Telemetry().Joystick.Active {
				if !session.JoystickBegin(x, y) {
					c.Println("Joystick is disabled while disconnected")
					return
				}
			} else {
				session.JoystickMove(x, y)
			}
			j := session.Telemetry().Joystick
			c.Printf("linear=%.2f angular=%.2f\n", j.Linear, j.Angular)
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "joyend",
		Help: "release the joystick",
		Func: func(c *ishell.Context) {
			session.JoystickEnd()
			c.Println("Joystick released")
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "print the session telemetry",
		Func: func(c *ishell.Context) {
			data, err := json.MarshalIndent(session.Telemetry(), "", "  ")
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(string(data))
		},
	})

	return shell
}
