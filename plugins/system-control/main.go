// Command system-control is a mudra plugin that maps gestures to display
// brightness and media playback. It reads one request on stdin and writes
// one response on stdout.
//
// macOS is driven through AppleScript key codes; Linux through brightnessctl
// and playerctl.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"
)

type gestureInfo struct {
	Type          string    `json:"type"`
	OpennessRatio float64   `json:"opennessRatio,omitempty"`
	TiltDelta     float64   `json:"tiltDelta,omitempty"`
	At            time.Time `json:"at"`
}

type request struct {
	Action  string          `json:"action"`
	Gesture gestureInfo     `json:"gesture"`
	Config  json.RawMessage `json:"config,omitempty"`
}

type response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// actionConfig is the per-binding configuration stored with the action.
type actionConfig struct {
	// Steps repeats the key press; brightness moves one notch per step.
	Steps int `json:"steps"`
}

type runner func(name string, args ...string) error

type platform struct {
	brightnessUp   func(run runner) error
	brightnessDown func(run runner) error
	playPause      func(run runner) error
	volumeUp       func(run runner) error
	volumeDown     func(run runner) error
}

var platforms = map[string]platform{
	"darwin": {
		brightnessUp:   keyCode(144),
		brightnessDown: keyCode(145),
		playPause:      keyCode(100),
		volumeUp:       appleScript(`set volume output volume ((output volume of (get volume settings)) + 6)`),
		volumeDown:     appleScript(`set volume output volume ((output volume of (get volume settings)) - 6)`),
	},
	"linux": {
		brightnessUp:   command("brightnessctl", "set", "+5%"),
		brightnessDown: command("brightnessctl", "set", "5%-"),
		playPause:      command("playerctl", "play-pause"),
		volumeUp:       command("pactl", "set-sink-volume", "@DEFAULT_SINK@", "+6%"),
		volumeDown:     command("pactl", "set-sink-volume", "@DEFAULT_SINK@", "-6%"),
	},
}

func main() {
	resp := handle(os.Stdin, runtime.GOOS, execRunner)
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(in io.Reader, goos string, run runner) response {
	var req request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return failure(fmt.Sprintf("failed to decode request: %v", err))
	}

	cfg := actionConfig{Steps: 1}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return failure(fmt.Sprintf("invalid config: %v", err))
		}
		if cfg.Steps < 1 {
			cfg.Steps = 1
		}
	}

	p, ok := platforms[goos]
	if !ok {
		return failure(fmt.Sprintf("unsupported platform: %s", goos))
	}

	action, err := p.lookup(req.Action)
	if err != nil {
		return failure(err.Error())
	}

	for i := 0; i < cfg.Steps; i++ {
		if err := action(run); err != nil {
			return failure(fmt.Sprintf("action %s failed: %v", req.Action, err))
		}
	}

	data, _ := json.Marshal(map[string]any{
		"action":  req.Action,
		"gesture": req.Gesture.Type,
		"steps":   cfg.Steps,
	})
	return response{Success: true, Data: data}
}

func (p platform) lookup(action string) (func(runner) error, error) {
	var fn func(runner) error
	switch action {
	case "brightness-up":
		fn = p.brightnessUp
	case "brightness-down":
		fn = p.brightnessDown
	case "media-play-pause":
		fn = p.playPause
	case "volume-up":
		fn = p.volumeUp
	case "volume-down":
		fn = p.volumeDown
	}
	if fn == nil {
		return nil, errors.New("unknown action: " + action)
	}
	return fn, nil
}

func failure(msg string) response {
	return response{Success: false, Error: msg}
}

func keyCode(code int) func(runner) error {
	return appleScript(fmt.Sprintf("tell application \"System Events\"\n\tkey code %d\nend tell", code))
}

func appleScript(script string) func(runner) error {
	return command("osascript", "-e", script)
}

func command(name string, args ...string) func(runner) error {
	return func(run runner) error {
		return run(name, args...)
	}
}

func execRunner(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}
