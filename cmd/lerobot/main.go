package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"lerobot.json" description:"Workspace configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug messages"`
	LogFile string `long:"log-file" description:"Write logs to this file instead of stderr"`

	Setup       SetupCommand       `command:"setup" description:"Scan for arms and assign them to leader/follower left/right"`
	Calibrate   CalibrateCommand   `command:"calibrate" description:"Record the range of motion of every arm"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Start bimanual teleoperation (leader-follower control)"`
	Info        InfoCommand        `command:"info" description:"Show the observation and action features of the configured robots"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "LeRobot - Robot arm control CLI for bimanual SO-101 setups"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// newLogger builds the logger for a command. Full-screen commands pass
// quiet so nothing is written to the terminal unless --log-file is set.
func newLogger(quiet bool) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closer := func() error { return nil }
	switch {
	case opts.LogFile != "":
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f.Close
	case quiet:
		return slog.New(slog.DiscardHandler), closer, nil
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}
