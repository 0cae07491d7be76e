package video

import (
	"math/rand"
	"testing"
	"time"
)

var (
	idr   = []byte{0, 0, 0, 1, 0x67, 0x42, 0, 0, 0, 1, 0x68, 0xCE, 0, 0, 1, 0x65, 0x88}
	inter = []byte{0, 0, 0, 1, 0x41, 0x9A}
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFrame(data []byte, arrival time.Time) *Frame {
	return &Frame{Data: data, Keyframe: IsKeyframe(data), Arrival: arrival}
}

func TestPolicyDecide(t *testing.T) {
	base := time.Unix(1000, 0)
	tests := []struct {
		name     string
		data     []byte
		age      time.Duration
		awaiting bool
		want     Decision
	}{
		{"fresh inter frame", inter, 5 * time.Millisecond, false, Admit},
		{"inter frame at threshold", inter, 35 * time.Millisecond, false, Admit},
		{"stale inter frame", inter, 36 * time.Millisecond, false, DropStale},
		{"stale keyframe", idr, 2 * time.Second, false, Admit},
		{"inter frame while awaiting", inter, 0, true, DropAwaitingKeyframe},
		{"keyframe while awaiting", idr, 0, true, Admit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: base.Add(tt.age)}
			p := NewPolicy(35*time.Millisecond, clock.Now)
			if tt.awaiting {
				p.AwaitKeyframe()
			}
			if got := p.Decide(newFrame(tt.data, base)); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyKeyframeClearsAwaiting(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewPolicy(0, clock.Now)
	p.AwaitKeyframe()

	if got := p.Decide(newFrame(inter, clock.Now())); got != DropAwaitingKeyframe {
		t.Fatalf("Decide(inter) = %v, want %v", got, DropAwaitingKeyframe)
	}
	if got := p.Decide(newFrame(idr, clock.Now())); got != Admit {
		t.Fatalf("Decide(idr) = %v, want %v", got, Admit)
	}
	if p.AwaitingKeyframe() {
		t.Error("still awaiting after keyframe")
	}
	if got := p.Decide(newFrame(inter, clock.Now())); got != Admit {
		t.Errorf("Decide(inter) after keyframe = %v, want %v", got, Admit)
	}
}

// Randomised arrival delays: every stale non-keyframe is dropped and every
// keyframe is admitted.
func TestPolicyRandomisedAges(t *testing.T) {
	const threshold = 35 * time.Millisecond
	rng := rand.New(rand.NewSource(7))
	clock := &fakeClock{t: time.Unix(5000, 0)}
	p := NewPolicy(threshold, clock.Now)

	for i := 0; i < 5000; i++ {
		data := inter
		if rng.Intn(10) == 0 {
			data = idr
		}
		age := time.Duration(rng.Int63n(int64(100 * time.Millisecond)))
		f := newFrame(data, clock.Now().Add(-age))

		got := p.Decide(f)
		switch {
		case f.Keyframe && got != Admit:
			t.Fatalf("keyframe aged %v: %v", age, got)
		case !f.Keyframe && age > threshold && got != DropStale:
			t.Fatalf("stale inter frame aged %v: %v", age, got)
		case !f.Keyframe && age <= threshold && got != Admit:
			t.Fatalf("fresh inter frame aged %v: %v", age, got)
		}
		clock.Advance(16 * time.Millisecond)
	}
}

func TestPolicyRetainsLastAdmitted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewPolicy(35*time.Millisecond, clock.Now)
	if _, ok := p.Last(); ok {
		t.Fatal("Last() before any frame")
	}

	f := newFrame(idr, clock.Now())
	f.Header.Width, f.Header.Height, f.Header.PTS = 800, 480, 9
	p.Decide(f)

	stale := newFrame(inter, clock.Now().Add(-time.Second))
	stale.Header.PTS = 10
	p.Decide(stale)

	last, ok := p.Last()
	if !ok {
		t.Fatal("Last() missing")
	}
	if last.PTS != 9 || last.Width != 800 || !last.Keyframe {
		t.Errorf("Last() = %+v, want the admitted keyframe", last)
	}
}

func TestIsKeyframe(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"sps pps idr", idr, true},
		{"idr alone, 3-byte start code", []byte{0, 0, 1, 0x65, 0x88}, true},
		{"p slice", inter, false},
		{"aud then p slice", []byte{0, 0, 0, 1, 0x09, 0xF0, 0, 0, 0, 1, 0x41}, false},
		{"empty", nil, false},
		{"no start code", []byte{0x65, 0x88, 0x99, 0x00}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsKeyframe(tt.data); got != tt.want {
				t.Errorf("IsKeyframe() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAnnexB(t *testing.T) {
	units := ParseAnnexB(idr)
	if len(units) != 3 {
		t.Fatalf("len(units) = %d, want 3", len(units))
	}
	want := []byte{NALTypeSPS, NALTypePPS, NALTypeIDR}
	for i, u := range units {
		if u.Type != want[i] {
			t.Errorf("units[%d].Type = %d, want %d", i, u.Type, want[i])
		}
	}
}
