package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// runDispatcher records emitted gestures, runs their bound actions and
// feeds captured baselines back to the frame loop.
func (a *App) runDispatcher(done <-chan struct{}) {
	defer a.wg.Done()

	for {
		select {
		case <-done:
			return
		case m := <-a.outbound:
			a.handle(m)
		}
	}
}

func (a *App) drainOutbound() {
	for {
		select {
		case m := <-a.outbound:
			a.handle(m)
		default:
			return
		}
	}
}

func (a *App) handle(m outboundMsg) {
	switch m := m.(type) {
	case gestureMsg:
		a.handleGesture(m.event)
	case baselineMsg:
		a.handleBaseline(m.tilt)
	}
}

func (a *App) handleGesture(ev gesture.Event) {
	a.logger.Info("gesture", "type", ev.Type, "openness_ratio", ev.OpennessRatio, "tilt_delta", ev.TiltDelta)

	a.mu.Lock()
	a.last = &ev
	a.mu.Unlock()

	actionID := a.runAction(ev)

	if a.config.Store != nil {
		err := a.config.Store.Events().Create(&store.Event{
			ID:            uuid.NewString(),
			Type:          string(ev.Type),
			OpennessRatio: ev.OpennessRatio,
			TiltDelta:     ev.TiltDelta,
			ActionID:      actionID,
			CreatedAt:     ev.At,
		})
		if err != nil {
			a.logger.Warn("failed to record gesture", "type", ev.Type, "error", err)
		}
	}

	a.publish(ev)
}

// runAction executes the enabled action bound to ev's type and returns its
// ID, or "" if nothing ran successfully.
func (a *App) runAction(ev gesture.Event) string {
	if a.config.Store == nil || a.config.Plugins == nil || a.config.Executor == nil {
		return ""
	}

	act, err := a.config.Store.Actions().GetByGesture(string(ev.Type))
	if err != nil {
		a.logger.Warn("failed to look up action", "type", ev.Type, "error", err)
		return ""
	}
	if act == nil || !act.Enabled {
		return ""
	}

	p, err := a.config.Plugins.Get(act.PluginName)
	if err != nil {
		a.logger.Warn("action plugin unavailable", "action_id", act.ID, "error", err)
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.dispatchTimeout())
	defer cancel()

	resp, err := a.config.Executor.Execute(ctx, p, &plugin.Request{
		Action: act.ActionName,
		Gesture: plugin.GestureInfo{
			Type:          string(ev.Type),
			OpennessRatio: ev.OpennessRatio,
			TiltDelta:     ev.TiltDelta,
			At:            ev.At,
		},
		Config: act.Config,
	})
	if err != nil {
		a.logger.Warn("action failed", "action_id", act.ID, "plugin", act.PluginName, "action", act.ActionName, "error", err)
		return ""
	}
	if !resp.Success {
		a.logger.Warn("action reported failure", "action_id", act.ID, "plugin", act.PluginName, "error", resp.Error)
		return ""
	}

	a.logger.Debug("action executed", "action_id", act.ID, "plugin", act.PluginName, "action", act.ActionName)
	return act.ID
}

func (a *App) handleBaseline(tilt float64) {
	a.logger.Info("baseline captured", "tilt", tilt)

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetTiltBaseline(&tilt); err != nil {
			a.logger.Warn("failed to persist baseline", "error", err)
		}
	}
	a.send(baselineUpdate{value: &tilt})
}
