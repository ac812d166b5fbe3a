package realtime

import (
	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
)

// Handlers receive decoded frames. Nil fields are skipped.
// Handlers run on the socket's read goroutine, one frame at a time.
type Handlers struct {
	Welcome               func(Welcome)
	CurrentProductions    func(CurrentProductions)
	ProductionUpdated     func(ProductionUpdated)
	ProductionTransferred func(ProductionTransferred)
	HistoryUpdated        func(HistoryUpdated)
	Notification          func(Notification)
	GeneralNotification   func(Notification)
	Pong                  func(Pong)
	Unknown               func(Unknown)
}

// dispatch routes frame to its handler. A panicking handler is recovered and
// published as a script fault; the read loop keeps running.
func (c *Client) dispatch(frame Frame) {
	defer func() {
		if err := errors.Recovered("socket:"+frame.FrameType(), recover()); err != nil {
			c.logger.Error().Err(err).Str("frame_type", frame.FrameType()).Msg("Socket handler failed")
			c.bus.Publish(events.ScriptFault, err)
		}
	}()

	h := c.cfg.handlers
	switch f := frame.(type) {
	case Welcome:
		if h.Welcome != nil {
			h.Welcome(f)
		}
	case CurrentProductions:
		if h.CurrentProductions != nil {
			h.CurrentProductions(f)
		}
	case ProductionUpdated:
		if h.ProductionUpdated != nil {
			h.ProductionUpdated(f)
		}
	case ProductionTransferred:
		if h.ProductionTransferred != nil {
			h.ProductionTransferred(f)
		}
	case HistoryUpdated:
		if h.HistoryUpdated != nil {
			h.HistoryUpdated(f)
		}
	case Notification:
		if f.General {
			if h.GeneralNotification != nil {
				h.GeneralNotification(f)
			}
		} else if h.Notification != nil {
			h.Notification(f)
		}
	case Pong:
		if h.Pong != nil {
			h.Pong(f)
		}
	case Unknown:
		c.logger.Debug().Str("frame_type", f.Type).Msg("Unhandled socket frame")
		if h.Unknown != nil {
			h.Unknown(f)
		}
	}
}
