// Command keyboard is a mudra plugin that sends a keyboard shortcut when a
// gesture fires. The shortcut comes from the binding's config:
//
//	{"key": "space", "modifiers": ["cmd", "shift"]}
//
// macOS uses AppleScript; Linux uses xdotool.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type request struct {
	Action  string `json:"action"`
	Gesture struct {
		Type string `json:"type"`
	} `json:"gesture"`
	Config json.RawMessage `json:"config,omitempty"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type shortcut struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"`
}

// modifier names accepted in config, by canonical name
var modifierAliases = map[string]string{
	"command": "command",
	"cmd":     "command",
	"super":   "command",
	"option":  "option",
	"alt":     "option",
	"control": "control",
	"ctrl":    "control",
	"shift":   "shift",
}

var appleModifiers = map[string]string{
	"command": "command down",
	"option":  "option down",
	"control": "control down",
	"shift":   "shift down",
}

var xdotoolModifiers = map[string]string{
	"command": "super",
	"option":  "alt",
	"control": "ctrl",
	"shift":   "shift",
}

func main() {
	resp := handle(os.Stdin, runtime.GOOS, func(name string, args ...string) error {
		out, err := exec.Command(name, args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: %s", err, out)
		}
		return nil
	})
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(in io.Reader, goos string, run func(string, ...string) error) response {
	var req request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return response{Error: fmt.Sprintf("failed to decode request: %v", err)}
	}
	if req.Action != "shortcut" {
		return response{Error: "unknown action: " + req.Action}
	}

	var sc shortcut
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &sc); err != nil {
			return response{Error: fmt.Sprintf("invalid config: %v", err)}
		}
	}

	name, args, err := command(goos, sc)
	if err != nil {
		return response{Error: err.Error()}
	}
	if err := run(name, args...); err != nil {
		return response{Error: fmt.Sprintf("shortcut for %s failed: %v", req.Gesture.Type, err)}
	}
	return response{Success: true}
}

// command builds the platform command that presses sc.
func command(goos string, sc shortcut) (string, []string, error) {
	if sc.Key == "" {
		return "", nil, errors.New("config.key is required")
	}

	var mods []string
	for _, m := range sc.Modifiers {
		canonical, ok := modifierAliases[strings.ToLower(m)]
		if !ok {
			return "", nil, fmt.Errorf("unknown modifier: %s", m)
		}
		mods = append(mods, canonical)
	}

	switch goos {
	case "darwin":
		script := fmt.Sprintf(`tell application "System Events" to keystroke %q`, sc.Key)
		if len(mods) > 0 {
			using := make([]string, len(mods))
			for i, m := range mods {
				using[i] = appleModifiers[m]
			}
			script += " using {" + strings.Join(using, ", ") + "}"
		}
		return "osascript", []string{"-e", script}, nil
	case "linux":
		combo := make([]string, 0, len(mods)+1)
		for _, m := range mods {
			combo = append(combo, xdotoolModifiers[m])
		}
		combo = append(combo, sc.Key)
		return "xdotool", []string{"key", strings.Join(combo, "+")}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
