package prompt

import (
	"errors"
	"testing"
)

func TestScriptedAsk(t *testing.T) {
	p := NewScripted('a', 'b', '-')

	r, err := p.Ask("pick one", []rune{'a', 'b', 's', '-'})
	if err != nil || r != 'a' {
		t.Fatalf("Ask() = %q, %v, want 'a', nil", r, err)
	}

	r, err = p.Ask("pick one", []rune{'a', 'b', 's', '-'})
	if err != nil || r != 'b' {
		t.Fatalf("Ask() = %q, %v, want 'b', nil", r, err)
	}

	r, err = p.Ask("pick one", []rune{'a', 'b', 's', '-'})
	if !errors.Is(err, ErrTerminate) {
		t.Fatalf("Ask() err = %v, want ErrTerminate", err)
	}
	if r != '-' {
		t.Fatalf("Ask() rune = %q, want '-'", r)
	}
}

func TestScriptedExhausted(t *testing.T) {
	p := NewScripted('a')
	if _, err := p.Ask("first", []rune{'a'}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Ask("second", []rune{'a'}); err == nil {
		t.Fatal("expected error on exhausted queue")
	}
}

func TestScriptedRejectsDisallowed(t *testing.T) {
	p := NewScripted('z')
	if _, err := p.Ask("pick", []rune{'a', 'b'}); err == nil {
		t.Fatal("expected error for disallowed response")
	}
}
