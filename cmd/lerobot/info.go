package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/lerobot-bimanual/pkg/bimanual"
	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

type InfoCommand struct {
	Connect bool   `long:"connect" description:"Connect to every device and report its status"`
	Role    string `long:"role" choice:"leader" choice:"follower" description:"Only show one robot"`
}

func (c *InfoCommand) Execute(args []string) error {
	ws, err := loadWorkspace(opts.Config)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(false)
	if err != nil {
		return err
	}
	defer closeLog()

	roles := []string{RoleLeader, RoleFollower}
	if c.Role != "" {
		roles = []string{c.Role}
	}

	for _, role := range roles {
		coord, err := newCoordinator(ws, role, nil, log)
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%s: %s", role, coord.Name())))
		fmt.Println()

		obs, err := coord.ObservationFeatures()
		if err != nil {
			return err
		}
		act, err := coord.ActionFeatures()
		if err != nil {
			return err
		}
		fmt.Println(featureTable(obs, act).Render())
		fmt.Println()

		if c.Connect {
			ctx := context.Background()
			connErr := coord.Connect(ctx, false)
			rep, _ := coord.LastConnect()
			fmt.Println(statusTable(coord.Status(), rep).Render())
			if connErr != nil {
				fmt.Println(dimStyle.Render("connect: " + connErr.Error()))
				_ = coord.Rollback(ctx)
			} else if err := coord.Disconnect(ctx); err != nil {
				fmt.Println(dimStyle.Render("disconnect: " + err.Error()))
			}
			fmt.Println()
		}
	}
	return nil
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableBadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
)

// featureRows lists every observation key, sorted, with its type, shape and
// whether it is also an action.
func featureRows(obs, act robot.Features) [][]string {
	keys := make([]string, 0, len(obs)+len(act))
	for k := range obs {
		keys = append(keys, k)
	}
	for k := range act {
		if _, ok := obs[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		f, inObs := obs[k]
		if !inObs {
			f = act[k]
		}
		_, inAct := act[k]
		rows = append(rows, []string{k, f.DType, shapeString(f.Shape), yesNo(inObs), yesNo(inAct)})
	}
	return rows
}

func shapeString(shape []int) string {
	if len(shape) == 0 {
		return "-"
	}
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(dims, ", ") + ")"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func featureTable(obs, act robot.Features) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Key", "Type", "Shape", "Observation", "Action").
		Rows(featureRows(obs, act)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
}

// statusRows reports each device with its connection state and the outcome
// of its connect step.
func statusRows(status []bimanual.DeviceStatus, rep bimanual.Report) [][]string {
	rows := make([][]string, 0, len(status))
	for _, s := range status {
		step := "-"
		if r, ok := rep.Step(s.Kind + " " + s.Name); ok {
			step = r.Status.String()
			if r.Err != nil {
				step += ": " + r.Err.Error()
			}
		}
		rows = append(rows, []string{s.Name, s.Kind, yesNo(s.Connected), step})
	}
	return rows
}

func statusTable(status []bimanual.DeviceStatus, rep bimanual.Report) *table.Table {
	rows := statusRows(status, rep)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Device", "Kind", "Connected", "Connect").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 2 && row >= 0 && row < len(rows) {
				if rows[row][2] == "yes" {
					return tableOKStyle
				}
				return tableBadStyle
			}
			return tableCellStyle
		})
}
