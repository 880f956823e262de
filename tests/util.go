package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
	sessionsvc "github.com/campusdesk/portal/services/session"
)

// NewConfig returns a test config with tight portal poll windows so
// settle/propagation waits stay fast. WorkDir points at the repository
// root so email templates resolve from any test package.
func NewConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		Debug:    true,
		TestMode: true,
		AppName:  "CampusDesk",
		WorkDir:  rootDir(),
		Portal: core.PortalConfig{
			SettleTimeout:   500 * time.Millisecond,
			SettleInterval:  10 * time.Millisecond,
			ProfileTimeout:  500 * time.Millisecond,
			ProfileInterval: 10 * time.Millisecond,
		},
	}
}

// rootDir walks up from the test's working directory to the module root.
func rootDir() string {
	dir := core.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return core.Getwd()
		}
		dir = parent
	}
}

// Logger is a no-op core.Logger for tests.
type Logger struct{}

var _ core.Logger = Logger{}

func (Logger) Enable(bool)                        {}
func (Logger) Debug(string, ...interface{})       {}
func (Logger) Info(string, ...interface{})        {}
func (Logger) Warn(string, ...interface{})        {}
func (Logger) Error(string, ...interface{})       {}
func (Logger) Fatal(msg string, _ ...interface{}) { panic(msg) }

// CreateAccount seeds a confirmed account in the in-memory session store.
func CreateAccount(t *testing.T, backend *sessionsvc.Backend, email, pwd string, meta auth.ProfileMeta) *auth.User {
	t.Helper()
	usr, err := backend.CreateAccount(email, pwd, meta)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return usr
}

// StartManager builds and starts a Manager on a fresh session from the
// backend.
func StartManager(t *testing.T, backend *sessionsvc.Backend) *auth.Manager {
	t.Helper()
	mgr := auth.NewManager(backend.NewSession(), Logger{})
	mgr.Start(context.Background())
	return mgr
}
