// Package console implements the console/debug service from spec §4.I:
// script install/eval/reset/reboot/lockdown over org.allseen.scriptConsole,
// and the debugger's streaming dvalue state machine over
// org.allseen.scriptDebugger, grounded on the teacher's transport
// request/response shape and auth package.
package console

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/nvram"
	"github.com/alljoynjs/ajcore/internal/scriptif"
)

// EngineState mirrors the script engine's lifecycle state as seen by the
// console, per spec §4.I/§9.
type EngineState int

const (
	StateClean EngineState = iota
	StateDirty
	StatePaused
)

// EvalStatus is the status_code reported by evalResult, per spec §4.I.
type EvalStatus int

const (
	EvalOK EvalStatus = iota
	EvalSyntaxError
	EvalEvalError
	EvalResourceError
	EvalNeedReset
	EvalInternal
)

// runningCommands is the debugger command whitelist while the engine is
// not paused; anything else gets ERR_BUSY (spec §4.I).
var runningCommands = map[string]bool{
	"pause": true, "listBreak": true, "addBreak": true, "delBreak": true,
	"getVar": true, "putVar": true, "eval": true, "detach": true,
}

// RestartRequest is returned by Install when the loop must restart with a
// newly installed script.
type RestartRequest struct{}

// Service is the console/debug service. One console session at a time,
// per spec §4.I's port rule.
type Service struct {
	nv     *nvram.Store
	engine scriptif.Engine

	maxScriptLen int
	maxEvalLen   int

	sessionActive bool
	state         EngineState
	quiet         bool

	lastRequestKind uint8
	scanner         *Scanner

	evalLimiter  *rate.Limiter
	installLimiter *rate.Limiter

	authSecret []byte // nil disables JWT auth requirement
}

// New builds a console Service.
func New(nv *nvram.Store, engine scriptif.Engine, maxScriptLen, maxEvalLen int, evalRatePerSec float64, evalBurst int, authSecret []byte) *Service {
	return &Service{
		nv:             nv,
		engine:         engine,
		maxScriptLen:   maxScriptLen,
		maxEvalLen:     maxEvalLen,
		state:          StateDirty,
		scanner:        NewScanner(),
		evalLimiter:    rate.NewLimiter(rate.Limit(evalRatePerSec), evalBurst),
		installLimiter: rate.NewLimiter(rate.Limit(evalRatePerSec), evalBurst),
		authSecret:     authSecret,
	}
}

// AcceptSession accepts a console session if none is active, per spec
// §4.I's "only one console at a time" rule.
func (s *Service) AcceptSession() bool {
	if s.sessionActive {
		return false
	}
	if s.Locked() {
		return false
	}
	s.sessionActive = true
	return true
}

// SessionLost stops the debugger and returns the engine to ENGINE_DIRTY.
func (s *Service) SessionLost() {
	s.sessionActive = false
	s.engine.DebugDetach()
	s.state = StateDirty
}

// Locked reports the permanent lockdown bit.
func (s *Service) Locked() bool {
	return s.nv.Exist(nvram.KeyLockdown)
}

// Lockdown permanently sets the lockdown bit and ends the console session,
// per spec §4.I. It returns only a write error; it does not restart the
// runtime or signal the loop to restart.
func (s *Service) Lockdown() error {
	if err := s.nv.Write(nvram.KeyLockdown, []byte{1}); err != nil {
		return corerr.Wrap(corerr.KindWrite, "console.Lockdown", err)
	}
	s.sessionActive = false
	return nil
}

// Install receives (name, length, bytes) and writes them to NVRAM
// atomically; any failure mid-stream deletes both script and name, per
// spec §4.I.
func (s *Service) Install(name string, body []byte) (*RestartRequest, EvalStatus) {
	if !s.installLimiter.Allow() {
		return nil, EvalResourceError
	}
	if len(body) > s.maxScriptLen {
		return nil, EvalResourceError
	}
	if err := s.nv.WriteScript(body, name); err != nil {
		s.nv.DeleteScript()
		return nil, EvalInternal
	}
	return &RestartRequest{}, EvalOK
}

// Eval compiles and calls an expression within the script engine, under
// watchdog (the caller arms/disarms it), and leaves the engine dirty.
func (s *Service) Eval(ctx context.Context, expr string) (EvalStatus, string) {
	if !s.evalLimiter.Allow() {
		return EvalResourceError, "rate limit exceeded"
	}
	if len(expr) > s.maxEvalLen {
		return EvalResourceError, fmt.Sprintf("expression exceeds %d bytes", s.maxEvalLen)
	}
	result := s.engine.Eval(ctx, expr, "<console>")
	s.state = StateDirty
	if !result.OK {
		return EvalEvalError, result.Err
	}
	text, err := s.engine.JSONEncode(result.Value)
	if err != nil {
		return EvalInternal, err.Error()
	}
	return EvalOK, text
}

// Reset marks the engine state dirty. It does not itself restart the
// script engine or reload the installed script.
func (s *Service) Reset() {
	s.state = StateDirty
}

// BeginDebug records the quiet-mode setting, which says whether
// print/alert/throw signals should be suppressed and routed to the platform
// log instead, per spec §4.I's "begin(quiet)" rule. Quiet reads it back.
func (s *Service) BeginDebug(quiet bool) {
	s.quiet = quiet
}

// Quiet reports the current quiet-mode setting.
func (s *Service) Quiet() bool { return s.quiet }

// DispatchCommand checks the running-command whitelist (spec §4.I): while
// the engine is not paused, only the listed debugger commands are
// accepted; everything else is ERR_BUSY.
func (s *Service) DispatchCommand(cmd string) error {
	if s.state == StatePaused {
		return nil
	}
	if !runningCommands[cmd] {
		return corerr.New(corerr.KindBusy, "console.DispatchCommand")
	}
	return nil
}

// AuthClaims is the debug-session JWT payload, when auth is required.
type AuthClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// IssueToken mints a debug-session auth token, when the runtime requires
// console authentication (SPEC_FULL expansion: debug-session auth).
func (s *Service) IssueToken(subject string, ttl time.Duration) (string, error) {
	if s.authSecret == nil {
		return "", corerr.New(corerr.KindInvalid, "console.IssueToken")
	}
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Scope: "console",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.authSecret)
}

// VerifyToken validates a bearer token against the service's secret. A nil
// secret disables the check entirely. The session-accept path does not
// call it.
func (s *Service) VerifyToken(tokenStr string) error {
	if s.authSecret == nil {
		return nil
	}
	tok, err := jwt.ParseWithClaims(tokenStr, &AuthClaims{}, func(t *jwt.Token) (any, error) {
		return s.authSecret, nil
	})
	if err != nil || !tok.Valid {
		return corerr.Wrap(corerr.KindInvalid, "console.VerifyToken", err)
	}
	return nil
}
