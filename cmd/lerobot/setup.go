package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/lerobot-bimanual/pkg/bimanual"
	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// slot is a position in the workspace an arm can be assigned to.
type slot struct {
	role string
	side string
}

func (s slot) key() string { return s.role + "/" + s.side }

func (s slot) label() string {
	switch s.role {
	case RoleLeader:
		return fmt.Sprintf("Leader %s (moved by hand)", s.side)
	default:
		return fmt.Sprintf("Follower %s (follows the leader)", s.side)
	}
}

var slots = []slot{
	{RoleLeader, bimanual.Left},
	{RoleLeader, bimanual.Right},
	{RoleFollower, bimanual.Left},
	{RoleFollower, bimanual.Right},
}

type SetupCommand struct {
	NoCalibrate bool `long:"no-calibrate" description:"Only assign ports, skip calibration"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("LeRobot Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	ws, err := loadWorkspace(opts.Config)
	if errors.Is(err, fs.ErrNotExist) {
		ws, err = defaultWorkspace(), nil
	}
	if err != nil {
		return err
	}

	ports, err := scanForArms()
	if err != nil {
		return err
	}

	ws.Leader.LeftPort = ports[slot{RoleLeader, bimanual.Left}.key()]
	ws.Leader.RightPort = ports[slot{RoleLeader, bimanual.Right}.key()]
	ws.Follower.LeftPort = ports[slot{RoleFollower, bimanual.Left}.key()]
	ws.Follower.RightPort = ports[slot{RoleFollower, bimanual.Right}.key()]

	if err := ws.Save(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Ports assigned."))
	fmt.Printf("Configuration saved to %s\n", opts.Config)

	if c.NoCalibrate {
		fmt.Println()
		fmt.Println("Calibrate with: " + headerStyle.Render("lerobot calibrate"))
		return nil
	}

	fmt.Println()
	cal := &CalibrateCommand{}
	if err := cal.Execute(nil); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Println("Start teleoperation with: " + headerStyle.Render("lerobot teleoperate"))
	return nil
}

// scanForArms finds every SO-101 arm, wiggles it and asks the operator which
// slot it fills. It returns the port per slot key and fails unless all four
// slots are filled.
func scanForArms() (map[string]string, error) {
	fmt.Println("Scanning for robot arms...")
	fmt.Println()

	arms := findArms()
	if len(arms) == 0 {
		fmt.Println("Make sure your arms are connected and powered on.")
		return nil, fmt.Errorf("%w: no SO-101 arms found", robot.ErrConnection)
	}

	fmt.Printf("Found %d arm(s). Let's identify them...\n\n", len(arms))

	assigned := make(map[string]string)
	for _, arm := range arms {
		if len(assigned) == len(slots) {
			arm.bus.Close()
			continue
		}
		key, err := identifyArmWithWiggle(arm, assigned)
		if err != nil {
			return nil, err
		}
		if key != "" {
			assigned[key] = arm.port
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))

	var missing []string
	for _, s := range slots {
		port, ok := assigned[s.key()]
		if !ok {
			missing = append(missing, s.key())
			port = dimStyle.Render("(not found)")
		}
		fmt.Printf("  %-15s %s\n", s.key()+":", port)
	}
	if len(missing) > 0 {
		fmt.Println()
		fmt.Println("Two leader and two follower arms are required for bimanual teleoperation.")
		return nil, fmt.Errorf("%w: arms not identified: %s", robot.ErrConfiguration, strings.Join(missing, ", "))
	}
	return assigned, nil
}

type armInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func findArms() []armInfo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var arms []armInfo

	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: 1_000_000,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, 1, 6)
		cancel()

		if err != nil {
			bus.Close()
			continue
		}

		if isSOArm(servos) {
			fmt.Printf("  Found SO-101 arm on %s\n", port)
			arms = append(arms, armInfo{
				port:   port,
				servos: servos,
				bus:    bus,
			})
		} else {
			bus.Close()
		}
	}

	return arms
}

// isSOArm reports whether the scan found exactly servos 1-6.
func isSOArm(servos []feetech.FoundServo) bool {
	ids := make([]int, 0, len(servos))
	for _, s := range servos {
		ids = append(ids, s.ID)
	}
	return hasMotorIDs(ids)
}

func hasMotorIDs(ids []int) bool {
	want := robot.DefaultMotorIDs()
	if len(ids) != len(want) {
		return false
	}
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range want {
		if !seen[id] {
			return false
		}
	}
	return true
}

// slotOptions lists the slots still free, plus skip.
func slotOptions(assigned map[string]string) []huh.Option[string] {
	var options []huh.Option[string]
	for _, s := range slots {
		if _, taken := assigned[s.key()]; !taken {
			options = append(options, huh.NewOption(s.label(), s.key()))
		}
	}
	return append(options, huh.NewOption("Skip this arm", "skip"))
}

func identifyArmWithWiggle(arm armInfo, assigned map[string]string) (string, error) {
	defer arm.bus.Close()

	ctx := context.Background()

	// Servo 1 is shoulder_pan
	var servo *feetech.Servo
	for _, s := range arm.servos {
		if s.ID == 1 {
			servo = feetech.NewServo(arm.bus, s.ID, s.Model)
			break
		}
	}
	if servo == nil {
		return "", nil
	}

	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return "", nil
	}

	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return "", nil
	}

	fmt.Printf("\n  Wiggling arm on %s...\n", arm.port)

	// Single gentle, slow movement
	wiggleAmount := 30
	moveTimeMs := 500
	servo.SetPositionWithTime(ctx, originalPos+wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos-wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)

	servo.Disable(ctx)

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which arm is on %s?", arm.port)).
				Description("The arm that just wiggled").
				Options(slotOptions(assigned)...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("setup aborted: %w", err)
	}

	if choice == "skip" {
		return "", nil
	}
	return choice, nil
}
