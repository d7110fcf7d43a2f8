package audio

import (
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
)

// Device is an open input stream delivering one frame per Read.
type Device interface {
	// Read blocks until a full frame is available and returns it as s16le bytes.
	Read() ([]byte, error)
	Close() error
}

// Opener opens the capture device. The producer calls it once per recording.
type Opener func() (Device, error)

// DeviceConfig selects and shapes the PortAudio input stream.
type DeviceConfig struct {
	Name         string // case-insensitive substring; empty means the host default input
	SampleRate   int
	FrameSamples int
}

// DeviceInfo describes an input-capable device.
type DeviceInfo struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	Kind              string
	Default           bool
}

// Device kinds.
const (
	KindMicrophone = "microphone"
	KindLoopback   = "loopback"
)

var (
	loopbackKeywords   = []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"}
	microphoneKeywords = []string{"microphone", "input", "mic", "built-in"}
)

// classifyDevice guesses whether a device is a loopback of system audio or a microphone.
func classifyDevice(name string) string {
	for _, kw := range loopbackKeywords {
		if containsFold(name, kw) {
			return KindLoopback
		}
	}
	for _, kw := range microphoneKeywords {
		if containsFold(name, kw) {
			return KindMicrophone
		}
	}
	return ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// selectDevice picks the first input device whose name contains want,
// preferring microphones over loopbacks when several match.
func selectDevice(devices []*portaudio.DeviceInfo, want string) *portaudio.DeviceInfo {
	var match *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev == nil || dev.MaxInputChannels < 1 || !containsFold(dev.Name, want) {
			continue
		}
		if match == nil || (classifyDevice(match.Name) != KindMicrophone && classifyDevice(dev.Name) == KindMicrophone) {
			match = dev
		}
	}
	return match
}

// InputDevices lists input-capable devices.
func InputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioDevice, "initialize portaudio")
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioDevice, "list devices")
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		info := DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			Kind:              classifyDevice(dev.Name),
			Default:           def != nil && def.Name == dev.Name,
		}
		if dev.HostApi != nil {
			info.HostAPI = dev.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// PortAudioOpener returns an Opener for a mono 16-bit PortAudio input stream.
func PortAudioOpener(cfg DeviceConfig) Opener {
	return func() (Device, error) { return OpenPortAudio(cfg) }
}

type portAudioDevice struct {
	stream    *portaudio.Stream
	buf       []int16
	closeOnce sync.Once
	closeErr  error
}

// OpenPortAudio opens and starts the configured input stream.
func OpenPortAudio(cfg DeviceConfig) (Device, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = DefaultFrameLength
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioDevice, "initialize portaudio")
	}

	dev, err := findInput(cfg.Name)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSamples,
	}

	buf := make([]int16, cfg.FrameSamples)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperrors.Wrapf(err, apperrors.CodeAudioDevice, "open input stream on %q", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, apperrors.Wrapf(err, apperrors.CodeAudioDevice, "start input stream on %q", dev.Name)
	}

	return &portAudioDevice{stream: stream, buf: buf}, nil
}

func findInput(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeAudioDevice, "no default input device")
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioDevice, "list devices")
	}
	if dev := selectDevice(devices, name); dev != nil {
		return dev, nil
	}
	return nil, apperrors.Newf(apperrors.CodeAudioDevice, "no input device matching %q", name)
}

// Read treats input overflow as a recoverable condition and still returns the frame.
func (d *portAudioDevice) Read() ([]byte, error) {
	if err := d.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioDevice, "read input stream")
	}
	return EncodePCM16(d.buf), nil
}

func (d *portAudioDevice) Close() error {
	d.closeOnce.Do(func() {
		_ = d.stream.Stop()
		d.closeErr = d.stream.Close()
		_ = portaudio.Terminate()
	})
	return d.closeErr
}
