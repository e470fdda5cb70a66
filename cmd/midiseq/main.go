// Package main is the entry point for the midiseq CLI
package main

import (
	"context"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register the MIDI driver

	"github.com/james-see/midiseq/pkg/api"
	"github.com/james-see/midiseq/pkg/config"
	"github.com/james-see/midiseq/pkg/midifile"
	"github.com/james-see/midiseq/pkg/playback"
	"github.com/james-see/midiseq/pkg/transport"
	"github.com/james-see/midiseq/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath   string
	bufferSize   int
	logLevel     string
	reuseEvents  bool
	trackIndex   int
	eventLimit   int
	outputPort   string
	serialDevice string
	noReset      bool
	serverPort   int

	cfg    *config.Config
	logger *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "midiseq",
	Short: "Read and play Standard MIDI Files",
	Long: `midiseq reads Standard MIDI Files as a stream of timed events.

Large files are decoded on the fly through a small buffer per track, and
events can be played in real time to a MIDI port or a serial device.

Examples:
  midiseq info song.mid
  midiseq dump song.mid --track 1
  midiseq play song.mid --port "IAC Driver Bus 1"
  midiseq play song.mid --serial /dev/ttyAMA0
  midiseq tui
  midiseq serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: setup,
	SilenceUsage:      true,
}

var infoCmd = &cobra.Command{
	Use:   "info <file.mid>",
	Short: "Show the header and tracks of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file.mid>",
	Short: "Print every event of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

var lengthCmd = &cobra.Command{
	Use:   "length <file.mid>",
	Short: "Print the playing time of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLength,
}

var playCmd = &cobra.Command{
	Use:   "play <file.mid>",
	Short: "Play a MIDI file in real time",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.config/midiseq/config.json)")
	rootCmd.PersistentFlags().IntVarP(&bufferSize, "buffer-size", "b", -1, "Bytes buffered per track, 0 loads tracks in memory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&reuseEvents, "reuse", false, "Reuse one event object while iterating")

	// dump command
	dumpCmd.Flags().IntVarP(&trackIndex, "track", "t", -1, "Only dump this track")
	dumpCmd.Flags().IntVarP(&eventLimit, "limit", "n", 0, "Stop after this many events")

	// play command
	playCmd.Flags().IntVarP(&trackIndex, "track", "t", -1, "Only play this track (required for format 2 files)")
	playCmd.Flags().StringVarP(&outputPort, "port", "p", "", "MIDI output port name or number")
	playCmd.Flags().StringVarP(&serialDevice, "serial", "s", "", "Serial device to write MIDI bytes to")
	playCmd.Flags().BoolVar(&noReset, "no-reset", false, "Do not send all notes off before and after playing")
	tuiCmd.Flags().StringVarP(&outputPort, "port", "p", "", "MIDI output port name or number")
	tuiCmd.Flags().StringVarP(&serialDevice, "serial", "s", "", "Serial device to write MIDI bytes to")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default from config, 8080)")

	// Add commands
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(lengthCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// setup loads the config file and lets flags override it.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if bufferSize >= 0 {
		cfg.BufferSize = bufferSize
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("reuse") {
		cfg.ReuseEvents = reuseEvents
	}
	if outputPort != "" {
		cfg.OutputPort = outputPort
	}
	if serialDevice != "" {
		cfg.SerialDevice = serialDevice
	}
	if noReset {
		cfg.ResetOnPlay = false
	}
	if serverPort > 0 {
		cfg.ServerPort = serverPort
	}

	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "midiseq",
		Level:           cfg.Level(),
	})
	return nil
}

func open(path string) (*midifile.File, error) {
	f, err := midifile.Open(path, cfg.FileOptions(logger))
	if err != nil {
		return nil, err
	}
	logger.Debug("opened midi file", "path", f.Path(), "format", f.Format,
		"tracks", len(f.Tracks()), "ticks", f.TicksPerQuarter)
	return f, nil
}

// events picks the track or the whole file, borrowed or copied, as set by
// flags and config.
func events(f *midifile.File, track int) (iter.Seq2[*midifile.Event, error], error) {
	if track >= 0 {
		t, err := f.Track(track)
		if err != nil {
			return nil, err
		}
		if cfg.ReuseEvents {
			return t.Borrow(), nil
		}
		return playback.Copies(t.Events()), nil
	}
	if cfg.ReuseEvents {
		return f.Borrow(), nil
	}
	return playback.Copies(f.Events()), nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	f, err := open(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "File:    %s\n", filepath.Base(f.Path()))
	fmt.Fprintf(out, "Format:  %d\n", f.Format)
	fmt.Fprintf(out, "Ticks:   %d per quarter note\n", f.TicksPerQuarter)
	fmt.Fprintf(out, "Tracks:  %d\n", len(f.Tracks()))
	if d, err := f.Duration(); err == nil {
		fmt.Fprintf(out, "Length:  %s\n", d)
	}

	for _, t := range f.Tracks() {
		count := 0
		name := ""
		for ev, err := range t.Borrow() {
			if err != nil {
				return err
			}
			count++
			if ev.Status == midifile.TrackName && name == "" {
				if msg, err := ev.Message(); err == nil {
					name = msg.String()
				}
			}
		}
		fmt.Fprintf(out, "  track %2d  %8d bytes  %6d events  %s\n", t.Index(), t.Len(), count, name)
	}
	return nil
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := open(args[0])
	if err != nil {
		return err
	}
	seq, err := events(f, trackIndex)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	n := 0
	for ev, err := range seq {
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ev)
		n++
		if eventLimit > 0 && n == eventLimit {
			break
		}
	}
	return nil
}

func runLength(cmd *cobra.Command, args []string) error {
	f, err := open(args[0])
	if err != nil {
		return err
	}
	d, err := f.Duration()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d us\n", d, d.Microseconds())
	return nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports := transport.ListPorts()
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No MIDI output ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", p.Number, p.Name)
	}
	return nil
}

// openSink opens the serial device or the output port from config. The
// returned sink is nil when neither is set.
func openSink() (transport.Sink, func() error, error) {
	switch {
	case cfg.SerialDevice != "":
		w, err := transport.OpenSerial(cfg.SerialDevice)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("writing to serial device", "device", cfg.SerialDevice)
		return w, w.Close, nil
	case cfg.OutputPort != "":
		out, err := transport.OpenPort(cfg.OutputPort)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("writing to midi port", "port", out.String())
		return out, out.Close, nil
	}
	return nil, func() error { return nil }, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	f, err := open(args[0])
	if err != nil {
		return err
	}
	seq, err := events(f, trackIndex)
	if err != nil {
		return err
	}
	sink, closeSink, err := openSink()
	if err != nil {
		return err
	}
	defer func() { _ = closeSink() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = log.WithContext(ctx, logger)

	if sink != nil && cfg.ResetOnPlay {
		if err := transport.Reset(sink); err != nil {
			return err
		}
		defer func() { _ = transport.Reset(sink) }()
	}

	s := playback.New(nil)
	s.Logger = logger
	sent := 0
	err = s.Run(ctx, seq, func(ev *midifile.Event) error {
		if sink == nil {
			fmt.Fprintln(cmd.OutOrStdout(), ev)
			return nil
		}
		ok, err := transport.Send(sink, ev)
		if ok {
			sent++
		}
		return err
	})
	if errors.Is(err, context.Canceled) {
		logger.Info("playback interrupted", "sent", sent)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("playback finished", "sent", sent)
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	sink, closeSink, err := openSink()
	if err != nil {
		return err
	}
	defer func() { _ = closeSink() }()

	return tui.Run(tui.Options{
		File:   cfg.FileOptions(logger),
		Sink:   sink,
		Reuse:  cfg.ReuseEvents,
		Reset:  cfg.ResetOnPlay,
		Logger: logger,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("starting API server", "port", cfg.ServerPort)
	logger.Info("swagger docs", "url", fmt.Sprintf("http://localhost:%d/swagger/index.html", cfg.ServerPort))
	return api.StartServer(cfg.ServerPort)
}
