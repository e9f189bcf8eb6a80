// Package mpv plays sounds through mpv processes driven over JSON IPC.
package mpv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"podcast-player/internal/playback"
)

const (
	defaultBinary = "mpv"
	loadTimeout   = 15 * time.Second
	quitTimeout   = 500 * time.Millisecond
	pollInterval  = 100 * time.Millisecond
)

// meterFilter exposes per-frame loudness as af-metadata/meter.
const meterFilter = "@meter:lavfi=[astats=metadata=1:reset=1]"

// Backend starts one mpv process per loaded sound.
type Backend struct {
	binary    string
	socketDir string
	logger    *log.Logger
	seq       atomic.Int64
}

// New returns a backend running binary. An empty binary means "mpv" on PATH.
func New(binary string, logger *log.Logger) *Backend {
	if binary == "" {
		binary = defaultBinary
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Backend{
		binary:    binary,
		socketDir: os.TempDir(),
		logger:    logger,
	}
}

func (b *Backend) args(source, socket string) []string {
	return []string{
		"--no-video",
		"--no-terminal",
		"--really-quiet",
		"--idle=no",
		"--keep-open=yes",
		"--pause",
		"--input-ipc-server=" + socket,
		"--af=" + meterFilter,
		"--",
		source,
	}
}

// Load starts mpv paused on source and waits until the file is open.
// Remote sources that fail to open are reported as playback.ErrNetwork.
func (b *Backend) Load(ctx context.Context, source string) (playback.Sound, error) {
	socket := filepath.Join(b.socketDir, fmt.Sprintf("podcast-player-mpv-%d-%d.sock", os.Getpid(), b.seq.Add(1)))
	os.Remove(socket)

	cmd := exec.Command(b.binary, b.args(source, socket)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()

	s := &sound{
		source: source,
		socket: socket,
		cmd:    cmd,
		exited: exited,
		logger: b.logger,
	}

	if err := s.waitLoaded(ctx); err != nil {
		s.Unload()
		if isRemote(source) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s: %v", playback.ErrNetwork, source, err)
		}
		return nil, fmt.Errorf("load %s: %w", source, err)
	}

	b.logger.Printf("mpv: loaded %s (pid %d)", source, cmd.Process.Pid)
	return s, nil
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

type sound struct {
	source string
	socket string
	cmd    *exec.Cmd
	exited <-chan struct{}
	logger *log.Logger

	mu       sync.Mutex
	finished bool

	unloadOnce sync.Once
}

// waitLoaded polls until mpv reports a duration for the file, which only
// happens once it has been opened and demuxed.
func (s *sound) waitLoaded(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exited:
			return errors.New("mpv exited before the file was opened")
		case <-ticker.C:
		}

		if _, err := os.Stat(s.socket); err != nil {
			continue
		}
		if _, ok, err := getSeconds(ctx, s.socket, "duration"); err == nil && ok {
			return nil
		}
	}
}

func (s *sound) alive() error {
	select {
	case <-s.exited:
		return errors.New("mpv process exited")
	default:
		return nil
	}
}

func (s *sound) Play(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}
	_, err := send(ctx, s.socket, "set_property", "pause", false)
	return err
}

func (s *sound) Pause(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}
	_, err := send(ctx, s.socket, "set_property", "pause", true)
	return err
}

func (s *sound) Seek(ctx context.Context, position time.Duration) error {
	if err := s.alive(); err != nil {
		return err
	}
	if _, err := send(ctx, s.socket, "seek", position.Seconds(), "absolute"); err != nil {
		return err
	}

	s.mu.Lock()
	s.finished = false
	s.mu.Unlock()
	return nil
}

// Status reads position, duration, end-of-file and loudness. DidJustFinish
// is reported once per reached end.
func (s *sound) Status(ctx context.Context) (playback.Status, error) {
	if err := s.alive(); err != nil {
		return playback.Status{}, err
	}

	pos, _, err := getSeconds(ctx, s.socket, "time-pos")
	if err != nil {
		return playback.Status{}, err
	}
	dur, _, err := getSeconds(ctx, s.socket, "duration")
	if err != nil {
		return playback.Status{}, err
	}
	eof, err := getBool(ctx, s.socket, "eof-reached")
	if err != nil {
		return playback.Status{}, err
	}

	st := playback.Status{Loaded: true, Position: pos, Duration: dur}

	if data, err := send(ctx, s.socket, "get_property", "af-metadata/meter"); err == nil {
		st.Metering, st.HasMetering = parseMetering(data)
	}

	s.mu.Lock()
	if eof && !s.finished {
		st.DidJustFinish = true
	}
	s.finished = eof
	s.mu.Unlock()

	return st, nil
}

// Unload asks mpv to quit, kills it if it lingers and removes the socket.
func (s *sound) Unload() error {
	s.unloadOnce.Do(func() {
		if s.alive() == nil {
			ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
			send(ctx, s.socket, "quit")
			cancel()

			select {
			case <-s.exited:
			case <-time.After(quitTimeout):
				s.logger.Printf("mpv: killing pid %d", s.cmd.Process.Pid)
				if err := s.cmd.Process.Kill(); err != nil {
					s.logger.Printf("mpv: kill pid %d: %v", s.cmd.Process.Pid, err)
				}
				<-s.exited
			}
		}

		if err := os.Remove(s.socket); err != nil && !os.IsNotExist(err) {
			s.logger.Printf("mpv: remove socket %s: %v", s.socket, err)
		}
	})
	return nil
}
