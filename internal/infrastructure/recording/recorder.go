package recording

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNotLaunched = errors.New("recorder not launched")

type Options struct {
	// Executable is the path of the NDI recording tool.
	Executable string
	// OutputDir receives "<source> <date>" recordings. Empty uses the
	// working directory.
	OutputDir string

	WriteThumbnail bool
	// AutoChop starts a new file when the video format changes instead of
	// exiting.
	AutoChop bool
	// AutoStart records as soon as the source connects. Without it the
	// tool waits for Start.
	AutoStart bool

	Logger *zap.SugaredLogger
}

func DefaultOptions() Options {
	return Options{
		Executable:     "NDI Record",
		WriteThumbnail: true,
		AutoChop:       true,
		AutoStart:      true,
	}
}

// Recorder drives one run of the NDI recording tool for a source.
type Recorder struct {
	source string
	opts   Options
	logger *zap.SugaredLogger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
	err   error
}

func NewRecorder(source string, opts Options) *Recorder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Recorder{
		source: source,
		opts:   opts,
		logger: opts.Logger.With("source", source),
	}
}

// OutputPath returns the output name used for a recording started at t.
func (r *Recorder) OutputPath(t time.Time) string {
	return filepath.Join(r.opts.OutputDir, r.source+" "+t.Format("2006-01-02 03.04.05 PM"))
}

// Arguments returns the tool arguments for an output path.
func (r *Recorder) Arguments(output string) []string {
	args := []string{"-i", r.source, "-o", output}
	if !r.opts.WriteThumbnail {
		args = append(args, "-nothumbnail")
	}
	if !r.opts.AutoChop {
		args = append(args, "-noautochop")
	}
	if !r.opts.AutoStart {
		args = append(args, "-noautostart")
	}
	return args
}

// Launch starts the tool and returns its parsed status messages. The
// channel closes when the tool's output ends. Lines that do not parse are
// logged and skipped. Cancelling ctx kills the process.
func (r *Recorder) Launch(ctx context.Context) (<-chan Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return nil, fmt.Errorf("recorder for %q already launched", r.source)
	}

	output := r.OutputPath(time.Now())
	cmd := exec.CommandContext(ctx, r.opts.Executable, r.Arguments(output)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stderr: %w", err)
	}

	r.logger.Infow("starting recording", "output", output, "executable", r.opts.Executable)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}
	r.cmd = cmd
	r.stdin = stdin
	r.done = make(chan struct{})

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		r.logStderr(stderr)
	}()

	messages := make(chan Message, 16)
	go func() {
		defer pipes.Done()
		defer close(messages)
		r.readMessages(stdout, messages)
	}()

	go func() {
		// Wait closes the pipes, so both readers must finish first
		pipes.Wait()
		err := cmd.Wait()
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		if err != nil {
			r.logger.Warnw("recorder exited", "error", err)
		} else {
			r.logger.Infow("recorder exited")
		}
		close(r.done)
	}()

	return messages, nil
}

func (r *Recorder) logStderr(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		r.logger.Infow("recorder", "line", sc.Text())
	}
}

func (r *Recorder) readMessages(stdout io.Reader, out chan<- Message) {
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := ParseMessage(string(line))
		if err != nil {
			r.logger.Errorw("failed to decode recorder message", "line", string(line), "error", err)
			continue
		}
		out <- msg
	}
	if err := sc.Err(); err != nil {
		r.logger.Warnw("recorder output read failed", "error", err)
	}
}

// Wait blocks until the tool exits and returns its exit error.
func (r *Recorder) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return ErrNotLaunched
	}

	select {
	case <-done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) send(command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stdin == nil {
		return ErrNotLaunched
	}
	if _, err := io.WriteString(r.stdin, command+"\n"); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}
	return nil
}

// Start begins recording when launched without AutoStart.
func (r *Recorder) Start() error {
	return r.send("<start/>")
}

// Stop ends the recording. The tool exits once the file is on disk.
func (r *Recorder) Stop() error {
	return r.send("<exit/>")
}

// Chop closes the current file and continues in a new one without
// dropping frames.
func (r *Recorder) Chop() error {
	return r.send("<record_chop/>")
}

// ChopTo is Chop with the new file written to filename.
func (r *Recorder) ChopTo(filename string) error {
	return r.send(`<record_chop filename="` + escapeAttr(filename) + `"/>`)
}

// SetRecordLevelGain applies gain in dB to the recorded audio.
func (r *Recorder) SetRecordLevelGain(gain float32) error {
	return r.send(`<record_level gain="` + strconv.FormatFloat(float64(gain), 'g', -1, 32) + `"/>`)
}

// SetAutomaticGainControl toggles audio normalisation while recording.
func (r *Recorder) SetAutomaticGainControl(enabled bool) error {
	return r.send(`<record_agc enabled="` + strconv.FormatBool(enabled) + `"/>`)
}

func escapeAttr(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
