package video

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/open-teleop/console/pkg/bridge"
	"github.com/open-teleop/console/pkg/config"
	"github.com/open-teleop/console/pkg/flatbuffers/console/frame"
	customlog "github.com/open-teleop/console/pkg/log"
	"github.com/open-teleop/console/pkg/rosmsg"
)

// ErrUnknownCamera is returned for a camera name not in the configuration.
var ErrUnknownCamera = errors.New("unknown camera")

// watcherBuffer is the number of frames queued per viewer before frames
// are dropped for that viewer.
const watcherBuffer = 4

// Subscriber opens image subscriptions on the live connection.
type Subscriber interface {
	Subscribe(topic string, handler bridge.PayloadHandler) (*bridge.Subscription, error)
}

// CameraInfo describes one configured camera feed.
type CameraInfo struct {
	Name       string     `json:"name"`
	Topic      string     `json:"topic"`
	Title      string     `json:"title"`
	Subscribed bool       `json:"subscribed"`
	Frames     uint64     `json:"frames"`
	Viewers    int        `json:"viewers"`
	LastFrame  *time.Time `json:"last_frame,omitempty"`
}

type feed struct {
	camera   config.CameraConfig
	sub      *bridge.Subscription
	sequence uint64
	latest   []byte
	image    rosmsg.CompressedImage
	lastAt   time.Time
	watchers map[chan []byte]struct{}
}

// VideoService subscribes the configured cameras while the bridge is
// connected and fans encoded frames out to viewers.
type VideoService struct {
	source Subscriber
	logger customlog.Logger

	mu    sync.Mutex
	feeds map[string]*feed
	order []string
}

// NewVideoService creates a video service for cameras fed by source.
func NewVideoService(cameras []config.CameraConfig, source Subscriber, logger customlog.Logger) *VideoService {
	if source == nil {
		panic("Subscriber cannot be nil in NewVideoService")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewVideoService")
	}

	s := &VideoService{
		source: source,
		logger: logger.WithField("component", "video"),
		feeds:  make(map[string]*feed, len(cameras)),
	}
	for _, cam := range cameras {
		s.feeds[cam.Name] = &feed{camera: cam, watchers: make(map[chan []byte]struct{})}
		s.order = append(s.order, cam.Name)
	}
	return s
}

// OnStatus starts every camera subscription when the connection comes up
// and drops them when it goes away.
func (s *VideoService) OnStatus(st bridge.Status) {
	if st.Connected() {
		s.StartStreams()
		return
	}
	s.StopStreams()
}

// StartStreams subscribes every configured camera on the live connection.
func (s *VideoService) StartStreams() {
	for _, name := range s.order {
		if err := s.StartStream(name); err != nil {
			s.logger.Warnf("Failed to subscribe camera %s: %v", name, err)
		}
	}
}

// StartStream subscribes one camera, replacing any prior subscription.
func (s *VideoService) StartStream(name string) error {
	s.mu.Lock()
	f, ok := s.feeds[name]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownCamera
	}

	sub, err := s.source.Subscribe(f.camera.Topic, func(img rosmsg.CompressedImage) {
		s.handleFrame(name, img)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	f.sub = sub
	s.mu.Unlock()
	s.logger.Debugf("Camera %s subscribed to %s", name, f.camera.Topic)
	return nil
}

// StopStream disposes the subscription of one camera.
func (s *VideoService) StopStream(name string) error {
	s.mu.Lock()
	f, ok := s.feeds[name]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownCamera
	}
	sub := f.sub
	f.sub = nil
	s.mu.Unlock()

	sub.Dispose()
	return nil
}

// StopStreams disposes every camera subscription. Cached frames are kept.
func (s *VideoService) StopStreams() {
	for _, name := range s.order {
		s.StopStream(name)
	}
}

// GetActiveStreams returns the cameras with a live subscription.
func (s *VideoService) GetActiveStreams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := []string{}
	for _, name := range s.order {
		if s.feeds[name].sub != nil {
			active = append(active, name)
		}
	}
	return active
}

// Cameras lists the configured feeds in configuration order.
func (s *VideoService) Cameras() []CameraInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]CameraInfo, 0, len(s.order))
	for _, name := range s.order {
		f := s.feeds[name]
		info := CameraInfo{
			Name:       f.camera.Name,
			Topic:      f.camera.Topic,
			Title:      f.camera.Title,
			Subscribed: f.sub != nil,
			Frames:     f.sequence,
			Viewers:    len(f.watchers),
		}
		if !f.lastAt.IsZero() {
			last := f.lastAt
			info.LastFrame = &last
		}
		infos = append(infos, info)
	}
	return infos
}

// Latest returns the most recent image of a camera.
func (s *VideoService) Latest(name string) (rosmsg.CompressedImage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[name]
	if !ok {
		return rosmsg.CompressedImage{}, false, ErrUnknownCamera
	}
	return f.image, f.sequence > 0, nil
}

// Watch registers a viewer for a camera. The latest encoded frame, if any,
// is queued immediately. The returned func unregisters the viewer.
func (s *VideoService) Watch(name string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[name]
	if !ok {
		return nil, nil, ErrUnknownCamera
	}

	ch := make(chan []byte, watcherBuffer)
	if f.latest != nil {
		ch <- f.latest
	}
	f.watchers[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(f.watchers, ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (s *VideoService) handleFrame(name string, img rosmsg.CompressedImage) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[name]
	if !ok {
		return
	}
	f.sequence++
	f.image = img
	f.lastAt = now

	stamp := now
	if img.Header.Stamp.Sec != 0 || img.Header.Stamp.Nanosec != 0 {
		stamp = time.Unix(int64(img.Header.Stamp.Sec), int64(img.Header.Stamp.Nanosec))
	}
	f.latest = EncodeFrame(f.camera, img, f.sequence, stamp)

	for ch := range f.watchers {
		select {
		case ch <- f.latest:
		default:
			// Slow viewer, it gets the next frame
		}
	}
}

// EncodeFrame wraps an image into a FlatBuffers Frame.
func EncodeFrame(cam config.CameraConfig, img rosmsg.CompressedImage, sequence uint64, stamp time.Time) []byte {
	builder := flatbuffers.NewBuilder(len(img.Data) + 128)
	topicOffset := builder.CreateString(cam.Topic)
	cameraOffset := builder.CreateString(cam.Name)
	formatOffset := builder.CreateString(img.Format)
	payloadOffset := builder.CreateByteVector(img.Data)

	frame.FrameStart(builder)
	frame.FrameAddTopic(builder, topicOffset)
	frame.FrameAddCamera(builder, cameraOffset)
	frame.FrameAddTimestampNs(builder, stamp.UnixNano())
	frame.FrameAddFormat(builder, formatOffset)
	frame.FrameAddPayload(builder, payloadOffset)
	frame.FrameAddSequence(builder, sequence)
	frameOffset := frame.FrameEnd(builder)
	frame.FinishFrameBuffer(builder, frameOffset)

	return builder.FinishedBytes()
}

// StreamHandler pushes binary frames of the camera named in the route to a
// websocket viewer until either side goes away.
func (s *VideoService) StreamHandler(conn *websocket.Conn) {
	name := conn.Params("camera")
	frames, cancel, err := s.Watch(name)
	if err != nil {
		s.logger.Warnf("Video WS rejected for camera '%s': %v", name, err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	defer cancel()
	s.logger.Infof("Video WS connected for camera %s: %s", name, conn.RemoteAddr())

	// Viewers send nothing; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			s.logger.Infof("Video WS disconnected for camera %s", name)
			return
		case data := <-frames:
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				s.logger.Infof("Video WS write failed for camera %s: %v", name, err)
				return
			}
		}
	}
}

// CamerasHandler lists the configured cameras.
func (s *VideoService) CamerasHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"cameras": s.Cameras(),
	})
}

// SnapshotHandler returns the latest image of a camera as-is.
func (s *VideoService) SnapshotHandler(c *fiber.Ctx) error {
	img, ok, err := s.Latest(c.Params("camera"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	c.Set(fiber.HeaderContentType, contentType(img.Format))
	return c.Send(img.Data)
}

// contentType maps a CompressedImage format such as "rgb8; jpeg compressed
// bgr8" to a MIME type.
func contentType(format string) string {
	if strings.Contains(strings.ToLower(format), "png") {
		return "image/png"
	}
	return "image/jpeg"
}
