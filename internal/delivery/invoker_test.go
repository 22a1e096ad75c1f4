package delivery

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"azkarbot/internal/transport"
	"azkarbot/pkg/logx"
)

func TestClickDirectSucceeds(t *testing.T) {
	t.Parallel()
	h := &fakeHandle{}
	v := NewInvoker(logx.Nop())
	if err := v.Click(context.Background(), h, "send button"); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if want := []transport.ClickMethod{transport.ClickDirect}; !reflect.DeepEqual(h.clicks, want) {
		t.Fatalf("clicks = %v, want %v", h.clicks, want)
	}
}

func TestClickFallsBackThroughChain(t *testing.T) {
	t.Parallel()
	h := &fakeHandle{clickErrs: map[transport.ClickMethod]error{
		transport.ClickDirect:   errors.New("not interactable"),
		transport.ClickScripted: errors.New("eval rejected"),
	}}
	v := NewInvoker(logx.Nop())
	if err := v.Click(context.Background(), h, "send button"); err != nil {
		t.Fatalf("Click: %v", err)
	}
	want := []transport.ClickMethod{
		transport.ClickDirect,
		transport.ClickScripted,
		transport.ClickPointer,
	}
	if !reflect.DeepEqual(h.clicks, want) {
		t.Fatalf("clicks = %v, want %v", h.clicks, want)
	}
}

func TestClickAllTechniquesFail(t *testing.T) {
	t.Parallel()
	last := errors.New("pointer blocked")
	h := &fakeHandle{clickErrs: map[transport.ClickMethod]error{
		transport.ClickDirect:   errors.New("no"),
		transport.ClickScripted: errors.New("no"),
		transport.ClickPointer:  last,
	}}
	v := NewInvoker(logx.Nop())
	err := v.Click(context.Background(), h, "attachment button")
	if err == nil {
		t.Fatal("expected error when every technique fails")
	}
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want wrap of last failure", err)
	}
	if len(h.clicks) != 3 {
		t.Fatalf("clicks = %d, want 3 attempts", len(h.clicks))
	}
}

func TestTypeWrapsError(t *testing.T) {
	t.Parallel()
	h := &fakeHandle{typeErr: errors.New("input dropped")}
	v := NewInvoker(logx.Nop())
	if err := v.Type(context.Background(), h, "caption field", "hi", transport.TypePerRune); err == nil {
		t.Fatal("expected type error to propagate")
	}

	ok := &fakeHandle{}
	if err := v.Type(context.Background(), ok, "caption field", "hi", transport.TypePerRune); err != nil {
		t.Fatalf("Type: %v", err)
	}
	if ok.typeMode != transport.TypePerRune {
		t.Fatalf("mode = %v, want per-rune", ok.typeMode)
	}
}
