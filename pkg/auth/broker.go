package auth

import (
	"context"
	"errors"
	"fmt"

	"ecrmirror/pkg/registry"

	"github.com/sirupsen/logrus"
)

var ErrLogin = errors.New("registry login failed")

// Error is a failed login for Host. Code is the login tool's exit code, or
// registry.CodeFailure when no credential could be obtained.
type Error struct {
	Host string
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrLogin, e.Host, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrLogin, e.Err}
}

func (e *Error) ExitCode() int {
	return e.Code
}

// TokenSource issues short-lived registry credentials for a host.
type TokenSource interface {
	AuthToken(ctx context.Context, host string) (username, password string, err error)
}

// Loginer installs credentials for a host.
type Loginer interface {
	Login(ctx context.Context, host, username, password string) error
}

// Broker logs into each registry host at most once per session.
type Broker struct {
	tokens  TokenSource
	loginer Loginer
	session *Session
	log     logrus.FieldLogger
}

func NewBroker(tokens TokenSource, loginer Loginer, session *Session, log logrus.FieldLogger) *Broker {
	if session == nil {
		session = NewSession()
	}
	return &Broker{tokens: tokens, loginer: loginer, session: session, log: log}
}

// Session exposes the hosts authenticated so far.
func (b *Broker) Session() *Session {
	return b.session
}

// Login authenticates host unless the session already has it. On failure the
// host is left out of the session.
func (b *Broker) Login(ctx context.Context, host string) error {
	if b.session.Has(host) {
		return nil
	}

	log := b.log.WithFields(logrus.Fields{"host": host})

	username, password, err := b.tokens.AuthToken(ctx, host)
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Failure fetching authorization token")
		return &Error{Host: host, Code: registry.CodeFailure, Err: err}
	}

	if err := b.loginer.Login(ctx, host, username, password); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Failure logging in")
		return &Error{Host: host, Code: registry.ExitCode(err), Err: err}
	}

	b.session.Add(host)
	log.Info("Logged in")
	return nil
}

// LoginAll logs into hosts in order and stops at the first failure.
func (b *Broker) LoginAll(ctx context.Context, hosts []string) error {
	for _, host := range hosts {
		if err := b.Login(ctx, host); err != nil {
			return err
		}
	}
	return nil
}
