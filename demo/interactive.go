package demo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/theracd/console"
	"github.com/the-lightning-land/theracd/control"
)

const prompt = "theracd> "

const usage = `Commands:
  setup <dose> <x> <y>      configure a treatment
  mode <xray|electron>      change the beam mode
  edit <field> <value>      edit dose, position_x or position_y
  fire                      fire the beam
  status                    show the machine state
  estop                     emergency stop
  reset                     start over with a fresh machine
  quit                      leave
`

// Interactive reads operator commands line by line until quit or end of
// input.
func Interactive(c *console.Console, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, usage)

	for {
		fmt.Fprint(out, prompt)

		if !scanner.Scan() {
			break
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}

		if args[0] == "quit" || args[0] == "exit" {
			return nil
		}

		if err := execute(c, args, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Errorf("Could not read command: %v", err)
	}

	return nil
}

func execute(c *console.Console, args []string, out io.Writer) error {
	ctl := c.Current().Control

	switch {
	case args[0] == "setup" && len(args) == 4:
		values, err := atois(args[1:])
		if err != nil {
			return err
		}

		if err := ctl.SetupTreatment(values[0], values[1], values[2]); err != nil {
			fmt.Fprintf(out, "Setup: failed (%v)\n", err)
			return nil
		}

		fmt.Fprintln(out, "Setup: ok")
	case args[0] == "mode" && len(args) == 2:
		mode, err := control.ParseBeamMode(args[1])
		if err != nil {
			return err
		}

		if err := ctl.ChangeMode(mode); err != nil {
			fmt.Fprintf(out, "Mode change: failed (%v)\n", err)
			return nil
		}

		fmt.Fprintln(out, "Mode change: ok")
	case args[0] == "edit" && len(args) == 3:
		field, err := control.ParseField(args[1])
		if err != nil {
			return err
		}

		values, err := atois(args[2:])
		if err != nil {
			return err
		}

		if err := ctl.EditField(field, values[0]); err != nil {
			return err
		}

		fmt.Fprintln(out, "Edit: ok")
	case args[0] == "fire" && len(args) == 1:
		fmt.Fprintf(out, "Fire result: %v\n", ctl.FireBeam())
	case args[0] == "status" && len(args) == 1:
		printStatus(out, c.Current().ID, ctl.Status())
	case args[0] == "estop" && len(args) == 1:
		c.EmergencyStop()
		fmt.Fprintln(out, "Emergency stop")
	case args[0] == "reset" && len(args) == 1:
		session := c.Reset()
		fmt.Fprintf(out, "New session %v\n", session.ID)
	case args[0] == "help":
		fmt.Fprint(out, usage)
	default:
		return errors.Errorf("invalid command %q, type help", strings.Join(args, " "))
	}

	return nil
}

func atois(args []string) ([]int, error) {
	values := make([]int, len(args))

	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.Errorf("%q is not a number", arg)
		}

		values[i] = v
	}

	return values, nil
}

func printStatus(out io.Writer, session string, status control.Status) {
	fmt.Fprintf(out, "  session: %v\n", session)
	fmt.Fprintf(out, "  mode: %v\n", status.Mode)
	fmt.Fprintf(out, "  state: %v\n", status.State)
	fmt.Fprintf(out, "  beam_mode: %v\n", status.BeamMode)
	fmt.Fprintf(out, "  dose: %d\n", status.Dose)
	fmt.Fprintf(out, "  position: (%d, %d)\n", status.PositionX, status.PositionY)
	fmt.Fprintf(out, "  setup_counter: %d\n", status.SetupCounter)
	fmt.Fprintf(out, "  turntable_position: %v\n", status.TurntablePosition)
	fmt.Fprintf(out, "  turntable_moving: %v\n", status.TurntableMoving)
}
