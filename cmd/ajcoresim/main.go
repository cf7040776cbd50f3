// Command ajcoresim drives a Runtime end-to-end over the in-memory
// fakebus/fakescript pair, scripted by a small scenario file, as a
// demonstration and integration-test harness for the core independent of
// any real AllJoyn transport or script engine.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alljoynjs/ajcore/internal/busif"
	"github.com/alljoynjs/ajcore/internal/config"
	"github.com/alljoynjs/ajcore/internal/fakebus"
	"github.com/alljoynjs/ajcore/internal/fakescript"
	"github.com/alljoynjs/ajcore/internal/logging"
	"github.com/alljoynjs/ajcore/internal/runtime"
)

// step is one scenario line: "class field=value field=value ...".
type step struct {
	class  busif.MessageClass
	fields map[string]string
}

func main() {
	if err := logging.Init("info", ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var scenarioPath string
	if len(os.Args) > 1 {
		scenarioPath = os.Args[1]
	}

	cfg := config.Default()
	cfg.NVRAMPath = ":memory:"

	bus := fakebus.New("ajcoresim-guid")
	engine := fakescript.New()

	r, err := runtime.New(cfg, bus, engine, nil)
	if err != nil {
		logging.Error("ajcoresim: failed to build runtime", "err", err)
		os.Exit(1)
	}
	defer r.Close()

	steps, err := loadScenario(scenarioPath)
	if err != nil {
		logging.Error("ajcoresim: failed to load scenario", "err", err)
		os.Exit(1)
	}
	for _, s := range steps {
		bus.Enqueue(toMessage(s))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.Run(ctx); err != nil {
		logging.Error("ajcoresim: runtime exited with error", "err", err)
		os.Exit(1)
	}
	logging.Info("ajcoresim: scenario complete", "announced", bus.Announced, "replies", len(bus.Replies))
}

func toMessage(s step) *busif.Message {
	m := &busif.Message{Class: s.class}
	if v, ok := s.fields["sender"]; ok {
		m.Sender = v
	}
	if v, ok := s.fields["path"]; ok {
		m.Path = v
	}
	if v, ok := s.fields["interface"]; ok {
		m.Interface = v
	}
	if v, ok := s.fields["member"]; ok {
		m.Member = v
	}
	if v, ok := s.fields["port"]; ok {
		n, _ := strconv.Atoi(v)
		m.Port = uint16(n)
	}
	if v, ok := s.fields["serial"]; ok {
		n, _ := strconv.Atoi(v)
		m.Serial = uint32(n)
	}
	return m
}

var classNames = map[string]busif.MessageClass{
	"infra":            busif.ClassInfra,
	"accept_session":   busif.ClassAcceptSession,
	"join_reply":       busif.ClassJoinReply,
	"session_lost":     busif.ClassSessionLost,
	"found_advertised": busif.ClassFoundAdvertisedName,
	"about_announce":   busif.ClassAboutAnnounce,
	"console":          busif.ClassConsole,
	"debugger":         busif.ClassDebugger,
	"control_panel":    busif.ClassControlPanel,
	"script_call":      busif.ClassScriptCall,
}

// loadScenario parses a minimal line-oriented scenario file: one step per
// line, "class key=value key=value ...". Blank lines and lines starting
// with '#' are skipped. An empty path returns no steps.
func loadScenario(path string) ([]step, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var steps []step
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		class, ok := classNames[parts[0]]
		if !ok {
			return nil, fmt.Errorf("ajcoresim: unknown scenario class %q", parts[0])
		}
		s := step{class: class, fields: map[string]string{}}
		for _, kv := range parts[1:] {
			eq := strings.IndexByte(kv, '=')
			if eq < 0 {
				continue
			}
			s.fields[kv[:eq]] = kv[eq+1:]
		}
		steps = append(steps, s)
	}
	return steps, nil
}
