package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"strconv"
	"time"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// TypeFFmpeg captures V4L2 devices through the ffmpeg binary.
const TypeFFmpeg = "ffmpeg"

const probeTimeout = 10 * time.Second

// FFmpeg grabs single JPEG frames from a V4L2 device by running ffmpeg.
type FFmpeg struct {
	device string
	width  int
	height int
	fps    int

	connected bool
	capture   func(ctx context.Context) ([]byte, error)
}

// NewFFmpegFromConfig creates an FFmpeg camera. Defaults to 640x480 at 30 fps.
func NewFFmpegFromConfig(cfg Config) (Camera, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("%w: ffmpeg camera needs a device path", robot.ErrConfiguration)
	}

	c := &FFmpeg{
		device: cfg.Device,
		width:  640,
		height: 480,
		fps:    30,
	}
	if cfg.Width > 0 {
		c.width = cfg.Width
	}
	if cfg.Height > 0 {
		c.height = cfg.Height
	}
	if cfg.FPS > 0 {
		c.fps = cfg.FPS
	}
	c.capture = c.captureJPEG
	return c, nil
}

func (c *FFmpeg) Feature() robot.Feature {
	return robot.Feature{DType: "image", Shape: []int{c.height, c.width, 3}}
}

func (c *FFmpeg) IsConnected() bool { return c.connected }

// Connect checks the device by grabbing one frame.
func (c *FFmpeg) Connect(ctx context.Context) error {
	if c.connected {
		return fmt.Errorf("camera %s: %w", c.device, robot.ErrAlreadyConnected)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := c.grab(probeCtx); err != nil {
		return fmt.Errorf("%w: camera %s: %w", robot.ErrConnection, c.device, err)
	}
	c.connected = true
	return nil
}

// Read captures and decodes one frame.
func (c *FFmpeg) Read(ctx context.Context) (image.Image, error) {
	if !c.connected {
		return nil, fmt.Errorf("camera %s: %w", c.device, robot.ErrNotConnected)
	}
	img, err := c.grab(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: camera %s: %w", robot.ErrCommunication, c.device, err)
	}
	return img, nil
}

func (c *FFmpeg) Disconnect(ctx context.Context) error {
	if !c.connected {
		return fmt.Errorf("camera %s: %w", c.device, robot.ErrNotConnected)
	}
	c.connected = false
	return nil
}

func (c *FFmpeg) grab(ctx context.Context) (image.Image, error) {
	data, err := c.capture(ctx)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode JPEG: %w", err)
	}
	return img, nil
}

func (c *FFmpeg) captureJPEG(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-framerate", strconv.Itoa(c.fps),
		"-i", c.device,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("capture frame: %w (stderr: %s)", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
