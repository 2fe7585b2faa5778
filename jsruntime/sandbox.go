// Package jsruntime evaluates JavaScript in an environment that agrees with
// an emulated profile.
//
// Challenge and cookie-seeding scripts often read navigator and screen
// before computing their answer.  A Sandbox seeds an otto VM with the
// profile's JS data (see fingerprint.Profile.JSData), so the values a
// script sees match the User-Agent and client hints the emulated headers
// carry.
//
// A Sandbox is safe for concurrent use: a mutex serialises access to the
// VM.  For parallel evaluation create one Sandbox per worker.
package jsruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/robertkrimen/otto"

	"github.com/firasghr/uaemulate/fingerprint"
)

// Evaluator is the interface implemented by script runtimes.
type Evaluator interface {
	// Eval executes script and returns the string representation of the
	// final expression value.
	Eval(ctx context.Context, script string) (string, error)
}

// Sandbox implements Evaluator with the otto pure-Go interpreter.
type Sandbox struct {
	mu      sync.Mutex
	vm      *otto.Otto
	profile string
}

var _ Evaluator = (*Sandbox)(nil)

// errHalt is raised inside the VM to abort a script whose context ended.
var errHalt = errors.New("jsruntime: script halted")

const bootstrap = `
var window = this;
var self = this;
var navigator, screen;
(function (data) {
	navigator = data.navigator;
	screen = data.screen;
})(JSON.parse(__profile));
var document = { cookie: "" };
delete __profile;
`

// NewSandbox returns a Sandbox seeded with p's JS data.  Missing navigator
// or screen data is randomised with rng, which may be nil.
func NewSandbox(p *fingerprint.Profile, rng *rand.Rand) (*Sandbox, error) {
	if p == nil {
		return nil, errors.New("jsruntime: nil profile")
	}
	data, err := json.Marshal(p.JSData(rng))
	if err != nil {
		return nil, fmt.Errorf("jsruntime: encode %s js data: %w", p, err)
	}

	vm := otto.New()
	if err := vm.Set("__profile", string(data)); err != nil {
		return nil, fmt.Errorf("jsruntime: seed globals: %w", err)
	}
	if _, err := vm.Run(bootstrap); err != nil {
		return nil, fmt.Errorf("jsruntime: bootstrap JS globals: %w", err)
	}
	vm.Interrupt = make(chan func(), 1)
	return &Sandbox{vm: vm, profile: p.String()}, nil
}

// Profile returns the name of the profile the sandbox was seeded from.
func (s *Sandbox) Profile() string { return s.profile }

// Eval runs script and returns its completion value as a string.  When ctx
// ends first the script is halted and ctx.Err() is returned.
func (s *Sandbox) Eval(ctx context.Context, script string) (result string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			s.vm.Interrupt <- func() { panic(errHalt) }
		case <-stop:
		}
	}()
	defer func() {
		caught := recover()
		close(stop)
		<-exited
		s.drainInterrupt()
		if caught != nil {
			if caught != errHalt {
				panic(caught)
			}
			result, err = "", ctx.Err()
		}
	}()

	val, err := s.vm.Run(script)
	if err != nil {
		return "", fmt.Errorf("jsruntime: eval: %w", err)
	}
	str, err := val.ToString()
	if err != nil {
		return "", fmt.Errorf("jsruntime: convert result to string: %w", err)
	}
	return str, nil
}

// drainInterrupt drops an interrupt queued after the script had already
// finished, so it cannot halt the next Eval.
func (s *Sandbox) drainInterrupt() {
	select {
	case <-s.vm.Interrupt:
	default:
	}
}

// Cookie returns document.cookie.  Scripts that seed cookies leave them
// here; callers copy the value into their cookie jar.
func (s *Sandbox) Cookie() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.vm.Get("document")
	if err != nil {
		return "", fmt.Errorf("jsruntime: get document: %w", err)
	}
	if !val.IsObject() {
		return "", errors.New("jsruntime: document is not an object")
	}
	cookie, err := val.Object().Get("cookie")
	if err != nil {
		return "", fmt.Errorf("jsruntime: get document.cookie: %w", err)
	}
	return cookie.String(), nil
}

// SetCookie sets document.cookie before running a script that expects
// existing cookies.
func (s *Sandbox) SetCookie(cookie string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.vm.Get("document")
	if err != nil || !doc.IsObject() {
		return fmt.Errorf("jsruntime: set document.cookie: no document object")
	}
	if err := doc.Object().Set("cookie", cookie); err != nil {
		return fmt.Errorf("jsruntime: set document.cookie: %w", err)
	}
	return nil
}
