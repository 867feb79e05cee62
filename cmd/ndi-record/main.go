package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"ndilive/internal/core/domain"
	"ndilive/internal/infrastructure/recording"
	"ndilive/pkg/config"
	"ndilive/pkg/logger"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagConfig      string
	flagSource      string
	flagOutputDir   string
	flagExecutable  string
	flagNoThumbnail bool
	flagNoAutoChop  bool
	flagNoAutoStart bool
	flagHelp        bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "Configuration file")
	flag.StringVarP(&flagSource, "input", "i", "", "NDI source name to record")
	flag.StringVarP(&flagOutputDir, "output-dir", "o", "", "Directory for recordings (default: recording.output_dir)")
	flag.StringVarP(&flagExecutable, "executable", "e", "", "NDI recording tool (default: recording.executable)")
	flag.BoolVarP(&flagNoThumbnail, "no-thumbnail", "", false, "Do not write a preview file")
	flag.BoolVarP(&flagNoAutoChop, "no-autochop", "", false, "Exit when the video format changes")
	flag.BoolVarP(&flagNoAutoStart, "no-autostart", "", false, "Connect but wait for the start command")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

const commandHelp = `Commands:
  start           start recording (with --no-autostart)
  chop [FILE]     continue in a new file
  gain DB         apply audio gain in dB
  agc on|off      toggle automatic gain control
  stop            finish the recording and exit`

func main() {
	flag.Parse()
	if flagHelp || flagSource == "" {
		fmt.Fprintln(os.Stderr, "Usage: ndi-record --input SOURCE [OPTION]...")
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\n"+commandHelp)
		if !flagHelp {
			os.Exit(2)
		}
		return
	}
	if err := run(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "ndi-record: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	zapLogger, err := logger.New(cfg.Logging.Level, "console")
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	opts := recording.Options{
		Executable:     cfg.Recording.Executable,
		OutputDir:      cfg.Recording.OutputDir,
		WriteThumbnail: !(cfg.Recording.NoThumbnail || flagNoThumbnail),
		AutoChop:       !(cfg.Recording.NoAutoChop || flagNoAutoChop),
		AutoStart:      !(cfg.Recording.NoAutoStart || flagNoAutoStart),
		Logger:         zapLogger.Sugar(),
	}
	if flagExecutable != "" {
		opts.Executable = flagExecutable
	}
	if flagOutputDir != "" {
		opts.OutputDir = flagOutputDir
	}

	rec := recording.NewRecorder(flagSource, opts)
	messages, err := rec.Launch(context.Background())
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		color.New(color.FgYellow).Fprintln(os.Stderr, "stopping recording")
		if err := rec.Stop(); err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "stop: %v\n", err)
		}
	}()

	go readCommands(rec)

	for msg := range messages {
		printMessage(msg)
	}
	return rec.Wait(context.Background())
}

func readCommands(rec *recording.Recorder) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if err := runCommand(rec, fields); err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "%s: %v\n", fields[0], err)
		}
	}
}

func runCommand(rec *recording.Recorder, fields []string) error {
	switch fields[0] {
	case "start":
		return rec.Start()
	case "stop", "exit":
		return rec.Stop()
	case "chop":
		if len(fields) > 1 {
			return rec.ChopTo(strings.Join(fields[1:], " "))
		}
		return rec.Chop()
	case "gain":
		if len(fields) != 2 {
			return fmt.Errorf("usage: gain DB")
		}
		gain, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			return err
		}
		return rec.SetRecordLevelGain(float32(gain))
	case "agc":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return fmt.Errorf("usage: agc on|off")
		}
		return rec.SetAutomaticGainControl(fields[1] == "on")
	case "help":
		fmt.Println(commandHelp)
		return nil
	default:
		return fmt.Errorf("unknown command, try help")
	}
}

func printMessage(msg recording.Message) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	switch m := msg.(type) {
	case recording.RecordStarted:
		green.Printf("recording to %s", m.Filename)
		if w, h, ok := m.Resolution(); ok {
			fmt.Printf(" (%dx%d @ %.2f fps)", w, h, m.FrameRate())
		} else {
			fmt.Printf(" (%.2f fps)", m.FrameRate())
		}
		fmt.Println()
	case recording.Recording:
		level := "silent"
		if !math.IsInf(m.VUdB, -1) {
			level = fmt.Sprintf("%.1f dB", m.VUdB)
		}
		cyan.Printf("\r%8d frames", m.Frames)
		fmt.Printf("  %s  audio %s   ", timecode(m.Timecode), level)
	case recording.RecordStopped:
		fmt.Println()
		green.Printf("stopped after %d frames at %s\n", m.Frames, timecode(m.LastTimecode))
	}
}

// timecode shows a 100ns timecode as a time of day.
func timecode(tc domain.Timecode) string {
	t, ok := tc.Time()
	if !ok {
		return "--:--:--"
	}
	return t.UTC().Format("15:04:05.000")
}
