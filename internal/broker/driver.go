package broker

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Driver launches one transcoder child per active stream. The registry only
// depends on this interface; tests substitute a fake.
type Driver interface {
	// Spawn starts a child that republishes rtspURL into the origin under
	// key. Failure to start wraps ErrSpawnFailed.
	Spawn(rtspURL string, key StreamKey) (Process, error)
}

// Process is a handle to a running transcoder child.
type Process interface {
	// Stop requests termination and waits for the child to exit. Safe to
	// call more than once.
	Stop()
	// Exited reports whether the child has exited, either on its own or
	// after Stop.
	Exited() bool
}

const stopGracePeriod = 3 * time.Second

// FFmpegDriver spawns ffmpeg children that pull RTSP over TCP, copy the
// elementary streams without re-encoding, and push FLV-muxed RTMP into the
// origin at <originHost>:1935 under the live application.
type FFmpegDriver struct {
	ffmpegPath string
	originHost string
	log        *slog.Logger
}

// NewFFmpegDriver returns a driver that runs the ffmpeg binary at ffmpegPath
// and pushes to originHost.
func NewFFmpegDriver(ffmpegPath, originHost string, log *slog.Logger) *FFmpegDriver {
	return &FFmpegDriver{ffmpegPath: ffmpegPath, originHost: originHost, log: log}
}

// PushURL returns the RTMP endpoint a stream key is published to.
func (d *FFmpegDriver) PushURL(key StreamKey) string {
	return fmt.Sprintf("rtmp://%s:1935/live/%s", d.originHost, key)
}

// Spawn implements Driver.
func (d *FFmpegDriver) Spawn(rtspURL string, key StreamKey) (Process, error) {
	pushURL := d.PushURL(key)
	cmd := exec.Command(d.ffmpegPath,
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-c", "copy",
		"-f", "flv",
		pushURL,
	)
	// ffmpeg chatters on stderr; the broker judges liveness by exit status
	// and by the origin probe, so the output is dropped.
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailed, d.ffmpegPath, err)
	}

	d.log.Info("transcoder started",
		slog.String("key", string(key)),
		slog.String("source", rtspURL),
		slog.String("target", pushURL),
		slog.Int("pid", cmd.Process.Pid),
	)

	p := &ffmpegProcess{cmd: cmd, key: key, log: d.log, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

type ffmpegProcess struct {
	cmd  *exec.Cmd
	key  StreamKey
	log  *slog.Logger
	done chan struct{}
	stop sync.Once
}

func (p *ffmpegProcess) wait() {
	err := p.cmd.Wait()
	close(p.done)
	if err != nil {
		p.log.Warn("transcoder exited",
			slog.String("key", string(p.key)),
			slog.String("error", err.Error()),
		)
		return
	}
	p.log.Info("transcoder exited", slog.String("key", string(p.key)))
}

// Exited implements Process.
func (p *ffmpegProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stop implements Process: SIGTERM first, SIGKILL if the child has not exited
// within the grace period, then wait for the reaper goroutine.
func (p *ffmpegProcess) Stop() {
	p.stop.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-p.done:
			return
		case <-time.After(stopGracePeriod):
		}

		p.log.Warn("transcoder ignored SIGTERM, killing", slog.String("key", string(p.key)))
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.done
	})
	<-p.done
}
