package console

import (
	"context"
	"testing"
	"time"

	"github.com/alljoynjs/ajcore/internal/fakescript"
	"github.com/alljoynjs/ajcore/internal/nvram"
	"github.com/alljoynjs/ajcore/internal/scriptif"
)

func newTestService(t *testing.T) (*Service, *nvram.Store) {
	t.Helper()
	nv, err := nvram.Open(":memory:")
	if err != nil {
		t.Fatalf("nvram.Open: %v", err)
	}
	t.Cleanup(func() { nv.Close() })
	eng := fakescript.New()
	return New(nv, eng, 4096, 1024, 1000, 10, nil), nv
}

func TestAcceptSessionRejectsSecondConcurrentSession(t *testing.T) {
	s, _ := newTestService(t)
	if !s.AcceptSession() {
		t.Fatalf("expected first session accepted")
	}
	if s.AcceptSession() {
		t.Fatalf("expected second concurrent session rejected")
	}
}

func TestSessionLostReturnsEngineToDirty(t *testing.T) {
	s, _ := newTestService(t)
	s.AcceptSession()
	s.state = StatePaused
	s.SessionLost()
	if s.state != StateDirty {
		t.Fatalf("expected dirty state after session lost")
	}
	if s.sessionActive {
		t.Fatalf("expected session cleared")
	}
}

func TestInstallRejectsOversizedScript(t *testing.T) {
	s, _ := newTestService(t)
	big := make([]byte, 5000)
	_, status := s.Install("big.js", big)
	if status != EvalResourceError {
		t.Fatalf("expected resource error for oversized script, got %v", status)
	}
}

func TestInstallWritesScriptAndRequestsRestart(t *testing.T) {
	s, nv := newTestService(t)
	req, status := s.Install("demo.js", []byte("print('hi')"))
	if status != EvalOK || req == nil {
		t.Fatalf("expected ok + restart request, got %v %v", status, req)
	}
	if !nv.Exist(nvram.KeyScript) {
		t.Fatalf("expected script persisted to nvram")
	}
}

func TestLockdownPreventsFurtherSessions(t *testing.T) {
	s, _ := newTestService(t)
	if err := s.Lockdown(); err != nil {
		t.Fatalf("Lockdown: %v", err)
	}
	if s.AcceptSession() {
		t.Fatalf("expected no sessions accepted once locked down")
	}
}

func TestEvalRejectsOverlongExpression(t *testing.T) {
	s, _ := newTestService(t)
	expr := make([]byte, 2000)
	status, _ := s.Eval(context.Background(), string(expr))
	if status != EvalResourceError {
		t.Fatalf("expected resource error for overlong eval, got %v", status)
	}
}

func TestEvalReturnsOKAndLeavesEngineDirty(t *testing.T) {
	s, _ := newTestService(t)
	eng := s.engine.(*fakescript.Engine)
	eng.EvalFunc = func(ctx context.Context, src, name string) scriptif.PcallResult {
		return scriptif.PcallResult{OK: true, Value: scriptif.Int(7)}
	}
	status, _ := s.Eval(context.Background(), "1+1")
	if status != EvalOK {
		t.Fatalf("expected ok status, got %v", status)
	}
	if s.state != StateDirty {
		t.Fatalf("expected engine left dirty after eval")
	}
}

func TestDispatchCommandAllowsWhitelistWhileRunning(t *testing.T) {
	s, _ := newTestService(t)
	if err := s.DispatchCommand("eval"); err != nil {
		t.Fatalf("expected eval allowed while running: %v", err)
	}
	if err := s.DispatchCommand("stepOver"); err == nil {
		t.Fatalf("expected non-whitelisted command to be busy while running")
	}
}

func TestIssueAndVerifyTokenRoundTrip(t *testing.T) {
	nv, _ := nvram.Open(":memory:")
	defer nv.Close()
	eng := fakescript.New()
	s := New(nv, eng, 4096, 1024, 1000, 10, []byte("test-secret"))
	tok, err := s.IssueToken("debugger-client", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := s.VerifyToken(tok); err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	nv, _ := nvram.Open(":memory:")
	defer nv.Close()
	eng := fakescript.New()
	s := New(nv, eng, 4096, 1024, 1000, 10, []byte("test-secret"))
	if err := s.VerifyToken("not-a-jwt"); err == nil {
		t.Fatalf("expected error for garbage token")
	}
}
