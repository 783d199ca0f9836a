package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/armseq/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Port string `long:"port" description:"Serial port of the servo bench; scanned when empty"`
}

func (c *SetupCommand) Execute(args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Println(headerStyle.Render("armseq servo bench setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	port := c.Port
	if port == "" {
		port, err = pickBench(cfg.Servo.BaudRate)
		if err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibrating " + port + " ━━━"))
	fmt.Println()
	cal, err := calibrateBench(port, cfg.Servo.BaudRate)
	if err != nil {
		return err
	}

	if err := cal.Save(cfg.Servo.Calibration); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Calibration saved to %s\n", cfg.Servo.Calibration)
	if cfg.Servo.Calibration != robot.DefaultConfig().Servo.Calibration {
		fmt.Printf("Keep servo.calibration in %s pointing at it.\n", robot.DefaultConfigFile)
	}
	fmt.Println()
	fmt.Println("Run a program with: " + headerStyle.Render("armseq run serial://"+port))

	return nil
}

// pickBench scans serial ports for a bench and asks which one to use when
// several are connected.
func pickBench(baudRate int) (string, error) {
	fmt.Println("Scanning for servo benches...")
	fmt.Println()

	ports := findBenches(baudRate)
	switch len(ports) {
	case 0:
		fmt.Println("Make sure the bench is connected and powered on.")
		return "", fmt.Errorf("no servo bench with %d servos found", robot.NumJoints)
	case 1:
		return ports[0], nil
	}

	options := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}
	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which bench should be calibrated?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return port, nil
}

func findBenches(baudRate int) []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var benches []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, servos, err := connectToBench(port, baudRate)
		if err != nil {
			continue
		}
		bus.Close()
		fmt.Printf("  Found bench with %d servos on %s\n", len(servos), port)
		benches = append(benches, port)
	}
	return benches
}

// isBench reports whether servos has exactly one servo per joint, IDs 1 to 9.
func isBench(servos []feetech.FoundServo) bool {
	if len(servos) != robot.NumJoints {
		return false
	}

	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= robot.NumJoints; i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}

func connectToBench(port string, baudRate int) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	servos, err := bus.Scan(ctx, 1, robot.NumJoints)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}

	if !isBench(servos) {
		bus.Close()
		return nil, nil, fmt.Errorf("not a servo bench (expected %d servos with IDs 1-%d)", robot.NumJoints, robot.NumJoints)
	}

	return bus, servos, nil
}

// servoID is the bench servo that drives joint j.
func servoID(j robot.Joint) int {
	return int(j) + 1
}

func calibrateBench(port string, baudRate int) (robot.Calibration, error) {
	bus, servos, err := connectToBench(port, baudRate)
	if err != nil {
		return nil, fmt.Errorf("connect to bench: %w", err)
	}
	defer bus.Close()

	servoMap := make(map[int]*feetech.Servo)
	for _, s := range servos {
		servoMap[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}

	// Disable all servos so the joints can be moved by hand
	ctx := context.Background()
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	joints := robot.AllJoints()

	// Zero pose: arms hanging straight down, waist facing forward
	if !waitForUser("Move every joint to its zero pose: arms straight down, elbows straight, waist facing forward.") {
		return nil, errors.New("setup cancelled")
	}
	homing := make(map[robot.Joint]int)
	for _, j := range joints {
		pos, err := servoMap[servoID(j)].Position(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", j, err)
		}
		homing[j] = pos
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	model := newCalibrationModel(joints, servoMap, homing)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	cm := finalModel.(calibrationModel)
	if cm.cancelled {
		return nil, errors.New("setup cancelled")
	}

	cal := make(robot.Calibration)
	for _, j := range joints {
		cal[j] = robot.JointCalibration{
			ID:           servoID(j),
			HomingOffset: homing[j],
			RangeMin:     cm.minPositions[j],
			RangeMax:     cm.maxPositions[j],
		}
	}
	return cal, nil
}

func waitForUser(prompt string) bool {
	fmt.Println(prompt)

	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		return false
	}
	return ok
}

// Calibration TUI model
type calibrationModel struct {
	joints       []robot.Joint
	servoMap     map[int]*feetech.Servo
	curPositions map[robot.Joint]int
	minPositions map[robot.Joint]int
	maxPositions map[robot.Joint]int
	quitting     bool
	cancelled    bool
}

type tickMsg time.Time

func newCalibrationModel(joints []robot.Joint, servoMap map[int]*feetech.Servo, start map[robot.Joint]int) calibrationModel {
	m := calibrationModel{
		joints:       joints,
		servoMap:     servoMap,
		curPositions: make(map[robot.Joint]int),
		minPositions: make(map[robot.Joint]int),
		maxPositions: make(map[robot.Joint]int),
	}
	for _, j := range joints {
		m.curPositions[j] = start[j]
		m.minPositions[j] = start[j]
		m.maxPositions[j] = start[j]
	}
	return m
}

func (m calibrationModel) Init() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			m.quitting = true
			return m, tea.Quit
		case "q", "ctrl+c":
			m.quitting = true
			m.cancelled = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for _, j := range m.joints {
			pos, err := m.servoMap[servoID(j)].Position(ctx)
			if err != nil {
				continue
			}
			m.curPositions[j] = pos
			m.minPositions[j] = min(m.minPositions[j], pos)
			m.maxPositions[j] = max(m.maxPositions[j], pos)
		}
		return m, tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	// Table styles
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]int, 0, len(m.joints))
	for _, j := range m.joints {
		rangeSize := m.maxPositions[j] - m.minPositions[j]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			j.String(),
			fmt.Sprintf("%d", servoID(j)),
			fmt.Sprintf("%d", m.curPositions[j]),
			fmt.Sprintf("%d", m.minPositions[j]),
			fmt.Sprintf("%d", m.maxPositions[j]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Servo", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableJointStyle
			case 2:
				return tableCurrentStyle
			case 5:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done, q to cancel"))

	return sb.String()
}
