package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"azkarbot/internal/transport"
	"azkarbot/pkg/logx"
)

// fakeHandle records interactions; per-method errors are injectable.
type fakeHandle struct {
	clickErrs map[transport.ClickMethod]error
	clicks    []transport.ClickMethod
	typed     []string
	typeMode  transport.TypeMode
	typeErr   error
	uploads   []string
	uploadErr error
}

func (h *fakeHandle) Click(_ context.Context, m transport.ClickMethod) error {
	h.clicks = append(h.clicks, m)
	if h.clickErrs != nil {
		return h.clickErrs[m]
	}
	return nil
}

func (h *fakeHandle) Type(_ context.Context, text string, mode transport.TypeMode) error {
	if h.typeErr != nil {
		return h.typeErr
	}
	h.typed = append(h.typed, text)
	h.typeMode = mode
	return nil
}

func (h *fakeHandle) Upload(_ context.Context, path string) error {
	if h.uploadErr != nil {
		return h.uploadErr
	}
	h.uploads = append(h.uploads, path)
	return nil
}

// fakeSession routes Find through a configurable matcher and records
// every interaction the batch machine performs.
type fakeSession struct {
	opens       []string
	openErr     func(url string) error
	find        func(loc transport.Locator, opt transport.FindOptions) (transport.Handle, error)
	pressed     int
	pressErr    error
	screenshots []string
	closed      int
	closeErr    error
}

func (s *fakeSession) Open(_ context.Context, url string) error {
	s.opens = append(s.opens, url)
	if s.openErr != nil {
		return s.openErr(url)
	}
	return nil
}

func (s *fakeSession) Find(_ context.Context, loc transport.Locator, opt transport.FindOptions) (transport.Handle, error) {
	if s.find == nil {
		return nil, transport.ErrNotFound
	}
	return s.find(loc, opt)
}

func (s *fakeSession) PressSubmitKey(context.Context) error {
	s.pressed++
	return s.pressErr
}

func (s *fakeSession) Screenshot(_ context.Context, tag string) (string, error) {
	s.screenshots = append(s.screenshots, tag)
	return "/tmp/diag/" + tag + ".png", nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return s.closeErr
}

func TestResolveFirstStrategyWins(t *testing.T) {
	t.Parallel()
	want := &fakeHandle{}
	var tried []string
	sess := &fakeSession{
		find: func(loc transport.Locator, _ transport.FindOptions) (transport.Handle, error) {
			tried = append(tried, loc.Expr)
			return want, nil
		},
	}
	ctl := Control{Name: "thing", Locators: []transport.Locator{
		transport.CSS("#one"), transport.CSS("#two"),
	}}

	r := NewResolver(logx.Nop(), time.Second, time.Second)
	h, err := r.Resolve(context.Background(), sess, ctl, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h != transport.Handle(want) {
		t.Fatal("Resolve returned a different handle")
	}
	if len(tried) != 1 || tried[0] != "#one" {
		t.Fatalf("tried = %v, want only #one", tried)
	}
}

func TestResolveFallsThroughInOrder(t *testing.T) {
	t.Parallel()
	want := &fakeHandle{}
	var tried []string
	sess := &fakeSession{
		find: func(loc transport.Locator, _ transport.FindOptions) (transport.Handle, error) {
			tried = append(tried, loc.Expr)
			if loc.Expr == "#three" {
				return want, nil
			}
			return nil, transport.ErrNotFound
		},
	}
	ctl := Control{Name: "thing", Locators: []transport.Locator{
		transport.CSS("#one"), transport.CSS("#two"), transport.CSS("#three"), transport.CSS("#four"),
	}}

	r := NewResolver(logx.Nop(), time.Second, time.Second)
	h, err := r.Resolve(context.Background(), sess, ctl, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h == nil {
		t.Fatal("Resolve returned nil handle")
	}
	// Each earlier strategy attempted exactly once, later ones never.
	wantTried := []string{"#one", "#two", "#three"}
	if len(tried) != len(wantTried) {
		t.Fatalf("tried = %v, want %v", tried, wantTried)
	}
	for i := range wantTried {
		if tried[i] != wantTried[i] {
			t.Fatalf("tried = %v, want %v", tried, wantTried)
		}
	}
}

func TestResolveExhaustedWrapsNotFound(t *testing.T) {
	t.Parallel()
	sess := &fakeSession{}
	ctl := Control{Name: "send button", Locators: []transport.Locator{
		transport.CSS("#one"), transport.CSS("#two"),
	}}

	r := NewResolver(logx.Nop(), time.Second, time.Second)
	_, err := r.Resolve(context.Background(), sess, ctl, true)
	if !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound wrap", err)
	}
}

func TestResolveStopsOnCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	sess := &fakeSession{
		find: func(transport.Locator, transport.FindOptions) (transport.Handle, error) {
			calls++
			cancel()
			return nil, transport.ErrNotFound
		},
	}
	ctl := Control{Name: "thing", Locators: []transport.Locator{
		transport.CSS("#one"), transport.CSS("#two"), transport.CSS("#three"),
	}}

	r := NewResolver(logx.Nop(), time.Second, time.Second)
	_, err := r.Resolve(ctx, sess, ctl, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("find calls = %d, want 1 after cancellation", calls)
	}
}
