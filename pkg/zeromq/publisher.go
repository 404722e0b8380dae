package zeromq

import (
	"github.com/open-teleop/groundstation/pkg/linkframe"
	customlog "github.com/open-teleop/groundstation/pkg/log"
)

// TopicLinkFrame carries LinkFrame flatbuffers for every HM30 datagram.
const TopicLinkFrame = "hm30.frame"

// Publisher is the publishing half of ZeroMQService.
type Publisher interface {
	PublishMessage(topic string, message []byte) error
}

// FramePublisher mirrors link traffic onto the PUB socket.
type FramePublisher struct {
	service Publisher
	logger  customlog.Logger
}

// NewFramePublisher creates a publisher for link frames.
func NewFramePublisher(service Publisher, logger customlog.Logger) *FramePublisher {
	return &FramePublisher{
		service: service,
		logger:  logger,
	}
}

// PublishFrame encodes f and publishes it on TopicLinkFrame.
func (p *FramePublisher) PublishFrame(f linkframe.Frame) error {
	return p.service.PublishMessage(TopicLinkFrame, linkframe.Encode(f))
}

// Observe publishes f, logging failures. It has the bridge.FrameObserver shape.
func (p *FramePublisher) Observe(f linkframe.Frame) {
	if err := p.PublishFrame(f); err != nil {
		p.logger.Warnf("Failed to publish link frame %s: %v", f.ID, err)
	}
}
