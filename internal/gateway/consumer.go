package gateway

import (
	"github.com/nerrad567/buttrest/internal/buttplug"
	"github.com/nerrad567/buttrest/internal/device"
	"github.com/nerrad567/buttrest/internal/session"
)

// consume is the single reader of the session event stream. It is the only
// goroutine that writes the registry or resolves responses.
func (g *Gateway) consume() {
	defer g.wg.Done()

	events := g.session.Events()
	for {
		select {
		case <-g.done.Done():
			return
		case ev := <-events:
			g.handleEvent(ev)
		}
	}
}

func (g *Gateway) handleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventResponse:
		g.correlator.Resolve(ev.Message)

	case session.EventDeviceAdded:
		added, ok := ev.Message.(*buttplug.DeviceAdded)
		if !ok {
			return
		}
		g.deviceAdded(device.FromInfo(added.DeviceInfo))

	case session.EventDeviceRemoved:
		removed, ok := ev.Message.(*buttplug.DeviceRemoved)
		if !ok {
			return
		}
		g.deviceRemoved(removed.DeviceIndex)

	case session.EventScanningFinished:
		g.scanning.Store(false)
		g.logger.Info("device scan finished", "devices", g.registry.Count())

	case session.EventServerError:
		if e, ok := ev.Message.(*buttplug.Error); ok {
			g.logger.Warn("control server error",
				"code", e.ErrorCode,
				"message", e.ErrorMessage,
			)
		}

	case session.EventConnectionLost:
		if gen := g.session.Generation(); ev.Generation != gen {
			g.logger.Debug("ignoring loss of an earlier connection",
				"event_generation", ev.Generation,
				"generation", gen,
			)
			return
		}
		g.connectionLost(ev.Err)
	}
}

func (g *Gateway) deviceAdded(d device.Device) {
	g.registry.Add(d)
	g.metrics.deviceEvent("added")

	idx := d.Index
	g.feed.publish(Activity{
		Kind:        ActivityDeviceAdded,
		DeviceIndex: &idx,
		DeviceName:  d.Label(),
	})
}

func (g *Gateway) deviceRemoved(index uint32) {
	var name string
	if d, ok := g.registry.Snapshot().Get(index); ok {
		name = d.Label()
	}

	// Remove first so the index is already unknown when waiters wake up.
	g.registry.Remove(index)
	failed := g.correlator.FailDevice(index, ErrDeviceGone)
	g.metrics.deviceEvent("removed")

	if failed > 0 {
		g.logger.Warn("failed commands for removed device", "index", index, "count", failed)
	}

	g.feed.publish(Activity{
		Kind:        ActivityDeviceRemoved,
		DeviceIndex: &index,
		DeviceName:  name,
	})
}

func (g *Gateway) connectionLost(cause error) {
	cleared := g.registry.Clear()
	failed := g.correlator.FailAll(ErrConnection)
	g.scanning.Store(false)
	g.metrics.connectionLost()

	g.logger.Warn("control server connection lost",
		"error", cause,
		"devices_cleared", cleared,
		"commands_failed", failed,
	)

	activity := Activity{Kind: ActivityConnectionLost}
	if cause != nil {
		activity.Error = cause.Error()
	}
	g.feed.publish(activity)

	g.markLost()
}
