package control

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/teslashibe/go-fintrack/internal/log"
	"github.com/teslashibe/go-fintrack/pkg/debug"
	"github.com/teslashibe/go-fintrack/pkg/display"
	"github.com/teslashibe/go-fintrack/pkg/selection"
	"github.com/teslashibe/go-fintrack/pkg/status"
	"github.com/teslashibe/go-fintrack/pkg/tracking"
	"gocv.io/x/gocv"
)

const (
	testWidth  = 640
	testHeight = 480
)

var errNoMoreFrames = errors.New("no more frames")

// fakeSource yields `remaining` black frames, then fails.
type fakeSource struct {
	base      gocv.Mat
	remaining int
	reads     int
	closes    int
}

func newFakeSource(frames int) *fakeSource {
	return &fakeSource{
		base:      gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), testHeight, testWidth, gocv.MatTypeCV8UC3),
		remaining: frames,
	}
}

func (s *fakeSource) Read(dst *gocv.Mat) error {
	if s.remaining == 0 {
		return errNoMoreFrames
	}
	s.remaining--
	s.reads++
	s.base.CopyTo(dst)
	return nil
}

func (s *fakeSource) Close() error {
	s.closes++
	s.base.Close()
	return nil
}

// input is what the operator does during one frame.
type input struct {
	key    int
	events []selection.Event
}

type fakeDisplay struct {
	script []input
	step   int
	shown  int
	closes int
	cur    input
}

func (d *fakeDisplay) Show(frame gocv.Mat) { d.shown++ }

func (d *fakeDisplay) PollKey() int {
	d.cur = input{key: display.KeyNone}
	if d.step < len(d.script) {
		d.cur = d.script[d.step]
		if d.cur.key == 0 {
			d.cur.key = display.KeyNone
		}
	}
	d.step++
	return d.cur.key
}

func (d *fakeDisplay) Events() []selection.Event {
	return d.cur.events
}

func (d *fakeDisplay) Close() error {
	d.closes++
	return nil
}

type fakeSink struct {
	sent   []tracking.Command
	err    error
	closes int
}

func (s *fakeSink) Send(cmd tracking.Command) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *fakeSink) Close() error {
	s.closes++
	return nil
}

// fakeHandle replays results; once exhausted it keeps returning the last box.
type fakeHandle struct {
	results []Result
	updates int
	closes  int
}

func (h *fakeHandle) Update(frame gocv.Mat) (image.Rectangle, bool) {
	i := h.updates
	h.updates++
	if i >= len(h.results) {
		i = len(h.results) - 1
	}
	if i < 0 {
		return image.Rectangle{}, false
	}
	return h.results[i].Box, h.results[i].OK
}

func (h *fakeHandle) Close() error {
	h.closes++
	return nil
}

// fakeInit records init requests and hands out scripted handles.
type fakeInit struct {
	boxes   []image.Rectangle
	handles []*fakeHandle
	next    func() *fakeHandle
	err     error
	inspect func(frame gocv.Mat)
}

func (f *fakeInit) Initialize(frame gocv.Mat, box image.Rectangle) (Handle, error) {
	f.boxes = append(f.boxes, box)
	if f.inspect != nil {
		f.inspect(frame)
	}
	if f.err != nil {
		return nil, f.err
	}
	h := f.next()
	f.handles = append(f.handles, h)
	return h, nil
}

func tracksBox(box image.Rectangle) func() *fakeHandle {
	return func() *fakeHandle {
		return &fakeHandle{results: []Result{{Box: box, OK: true}}}
	}
}

func drag(from, to image.Point) []selection.Event {
	return []selection.Event{
		{Kind: selection.Press, Point: from},
		{Kind: selection.Move, Point: to},
		{Kind: selection.Release, Point: to},
	}
}

type fixture struct {
	source  *fakeSource
	display *fakeDisplay
	sink    *fakeSink
	init    *fakeInit
	loop    *Loop
}

func newFixture(t *testing.T, frames int, script []input, next func() *fakeHandle) *fixture {
	t.Helper()
	f := &fixture{
		source:  newFakeSource(frames),
		display: &fakeDisplay{script: script},
		sink:    &fakeSink{},
		init:    &fakeInit{next: next},
	}
	f.loop = New(f.source, f.display, f.sink, f.init, Options{Tracking: tracking.DefaultConfig()})
	t.Cleanup(func() { f.loop.Close() })
	return f
}

func (f *fixture) steps(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := f.loop.Step(context.Background()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestLoop_SelectThenTrack(t *testing.T) {
	box := image.Rect(420, 140, 520, 240)
	f := newFixture(t, 10, []input{
		{events: drag(image.Pt(420, 140), image.Pt(520, 240))},
	}, tracksBox(box))

	f.steps(t, 1)
	if len(f.init.boxes) != 1 || f.init.boxes[0] != box {
		t.Fatalf("init boxes = %v, want [%v]", f.init.boxes, box)
	}
	if got := f.loop.State().Phase; got != selection.Tracking {
		t.Errorf("phase = %v, want tracking", got)
	}
	if len(f.sink.sent) != 0 {
		t.Errorf("sent %d commands on the selection frame, want 0", len(f.sink.sent))
	}

	f.steps(t, 2)
	want := tracking.Command{Left: -14, Right: 14, Top: 6, Bottom: -6}
	if len(f.sink.sent) != 2 {
		t.Fatalf("sent %d commands, want 2", len(f.sink.sent))
	}
	for i, got := range f.sink.sent {
		if got != want {
			t.Errorf("command %d = %v, want %v", i, got, want)
		}
	}
	if got := string(f.sink.sent[0].Encode()); got != "<-14,14,6,-6>\n" {
		t.Errorf("encoded = %q", got)
	}
}

func TestLoop_CenteredObjectSendsZero(t *testing.T) {
	box := image.Rect(270, 190, 370, 290)
	f := newFixture(t, 5, []input{
		{events: drag(box.Min, box.Max)},
	}, tracksBox(box))

	f.steps(t, 2)
	if len(f.sink.sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(f.sink.sent))
	}
	if got := f.sink.sent[0]; got != (tracking.Command{}) {
		t.Errorf("command = %v, want <0,0,0,0>", got)
	}
}

func TestLoop_ReverseDragIsNormalized(t *testing.T) {
	f := newFixture(t, 5, []input{
		{events: drag(image.Pt(50, 50), image.Pt(10, 10))},
	}, tracksBox(image.Rect(10, 10, 50, 50)))

	f.steps(t, 1)
	want := image.Rect(10, 10, 50, 50)
	if len(f.init.boxes) != 1 || f.init.boxes[0] != want {
		t.Errorf("init boxes = %v, want [%v]", f.init.boxes, want)
	}
}

func TestLoop_SmallSelectionRejected(t *testing.T) {
	tests := []struct {
		name     string
		from, to image.Point
	}{
		{"exactly min width", image.Pt(100, 100), image.Pt(110, 130)},
		{"exactly min height", image.Pt(100, 100), image.Pt(150, 110)},
		{"click", image.Pt(100, 100), image.Pt(100, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5, []input{{events: drag(tt.from, tt.to)}}, tracksBox(image.Rect(0, 0, 1, 1)))
			f.steps(t, 3)

			if len(f.init.boxes) != 0 {
				t.Errorf("tracker initialized on %v", f.init.boxes)
			}
			if got := f.loop.State().Phase; got != selection.Idle {
				t.Errorf("phase = %v, want idle", got)
			}
			if len(f.sink.sent) != 0 {
				t.Errorf("sent %d commands, want 0", len(f.sink.sent))
			}
		})
	}
}

func TestLoop_LostStopsCommands(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	f := newFixture(t, 10, []input{
		{events: drag(box.Min, box.Max)},
	}, func() *fakeHandle {
		return &fakeHandle{results: []Result{
			{Box: box, OK: true},
			{OK: false},
		}}
	})

	f.steps(t, 3)
	if len(f.sink.sent) != 1 {
		t.Fatalf("sent %d commands, want 1 before loss", len(f.sink.sent))
	}
	st := f.loop.State()
	if st.Phase != selection.Idle || !st.Lost {
		t.Errorf("state = %+v, want idle and lost", st)
	}
	h := f.init.handles[0]
	if h.closes != 1 {
		t.Errorf("handle closed %d times, want 1", h.closes)
	}

	f.steps(t, 3)
	if len(f.sink.sent) != 1 {
		t.Errorf("sent %d commands after loss, want 1", len(f.sink.sent))
	}
	if h.updates != 2 {
		t.Errorf("handle updated %d times, want 2", h.updates)
	}
	if got := f.loop.Snapshot().TrackingLost; got != 1 {
		t.Errorf("TrackingLost = %d, want 1", got)
	}
}

func TestLoop_LostNoticeClearsOnPress(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	f := newFixture(t, 10, []input{
		{events: drag(box.Min, box.Max)},
		{},
		{},
		{events: []selection.Event{{Kind: selection.Press, Point: image.Pt(5, 5)}}},
	}, func() *fakeHandle {
		return &fakeHandle{results: []Result{{OK: false}}}
	})

	f.steps(t, 3)
	if !f.loop.State().Lost {
		t.Fatal("expected lost state")
	}
	f.steps(t, 1)
	st := f.loop.State()
	if st.Lost || st.Phase != selection.Dragging {
		t.Errorf("state = %+v, want dragging without lost notice", st)
	}
}

func TestLoop_PressWhileTrackingDiscardsTracker(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	f := newFixture(t, 10, []input{
		{events: drag(box.Min, box.Max)},
		{},
		{events: []selection.Event{{Kind: selection.Press, Point: image.Pt(300, 300)}}},
		{events: []selection.Event{{Kind: selection.Move, Point: image.Pt(320, 330)}}},
	}, tracksBox(box))

	f.steps(t, 4)
	h := f.init.handles[0]
	if h.closes != 1 {
		t.Errorf("handle closed %d times, want 1", h.closes)
	}
	if f.loop.Tracking() {
		t.Error("loop still has a tracker while dragging")
	}
	// Commands went out on frames 2 and 3 only; frame 4 is mid-drag.
	if len(f.sink.sent) != 2 {
		t.Errorf("sent %d commands, want 2", len(f.sink.sent))
	}
	if got := f.loop.State().Phase; got != selection.Dragging {
		t.Errorf("phase = %v, want dragging", got)
	}
}

func TestLoop_ReselectReplacesTracker(t *testing.T) {
	first := image.Rect(100, 100, 200, 200)
	second := image.Rect(300, 300, 400, 400)
	f := newFixture(t, 10, []input{
		{events: drag(first.Min, first.Max)},
		{events: drag(second.Min, second.Max)},
	}, tracksBox(second))

	f.steps(t, 3)
	if len(f.init.handles) != 2 {
		t.Fatalf("initialized %d trackers, want 2", len(f.init.handles))
	}
	if f.init.handles[0].closes != 1 {
		t.Errorf("first handle closed %d times, want 1", f.init.handles[0].closes)
	}
	if f.init.handles[1].closes != 0 {
		t.Errorf("second handle closed %d times, want 0", f.init.handles[1].closes)
	}
	if f.init.boxes[1] != second {
		t.Errorf("second init box = %v, want %v", f.init.boxes[1], second)
	}
}

func TestLoop_DebugSelectionLines(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		var buf bytes.Buffer
		prev := log.SetLogger(log.New(&buf, "info", false))
		debug.Enabled = enabled

		first := image.Rect(100, 100, 200, 200)
		second := image.Rect(300, 300, 400, 400)
		f := newFixture(t, 10, []input{
			{events: drag(image.Pt(5, 5), image.Pt(8, 8))},
			{events: drag(first.Min, first.Max)},
			{events: drag(second.Min, second.Max)},
		}, tracksBox(second))
		f.steps(t, 3)

		debug.Enabled = false
		log.SetLogger(prev)

		out := buf.String()
		for _, line := range []string{"selection too small", "replacing tracker"} {
			if got := strings.Contains(out, line); got != enabled {
				t.Errorf("debug=%v: %q logged = %v", enabled, line, got)
			}
		}
	}
}

func TestLoop_ResetKey(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	f := newFixture(t, 10, []input{
		{events: drag(box.Min, box.Max)},
		{key: display.KeyReset},
	}, tracksBox(box))

	f.steps(t, 4)
	if got := f.loop.State().Phase; got != selection.Idle {
		t.Errorf("phase = %v, want idle", got)
	}
	if f.init.handles[0].closes != 1 {
		t.Errorf("handle closed %d times, want 1", f.init.handles[0].closes)
	}
	// Frame 2 tracks before the reset key is read.
	if len(f.sink.sent) != 1 {
		t.Errorf("sent %d commands, want 1", len(f.sink.sent))
	}
}

func TestLoop_InitFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, 5, []input{
		{events: drag(image.Pt(100, 100), image.Pt(200, 200))},
	}, tracksBox(image.Rect(0, 0, 1, 1)))
	f.init.err = errors.New("init failed")

	f.steps(t, 2)
	if got := f.loop.State().Phase; got != selection.Idle {
		t.Errorf("phase = %v, want idle", got)
	}
	if f.loop.Tracking() {
		t.Error("tracker should not be active")
	}
	if len(f.sink.sent) != 0 {
		t.Errorf("sent %d commands, want 0", len(f.sink.sent))
	}
}

func TestLoop_SendErrorKeepsTracking(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	f := newFixture(t, 5, []input{
		{events: drag(box.Min, box.Max)},
	}, tracksBox(box))
	f.sink.err = errors.New("write failed")

	f.steps(t, 3)
	if got := f.loop.State().Phase; got != selection.Tracking {
		t.Errorf("phase = %v, want tracking", got)
	}
	if got := f.loop.Snapshot().CommandsSent; got != 0 {
		t.Errorf("CommandsSent = %d, want 0", got)
	}
}

func TestLoop_NoSink(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	src := newFakeSource(5)
	disp := &fakeDisplay{script: []input{{events: drag(box.Min, box.Max)}}}
	init := &fakeInit{next: tracksBox(box)}

	l := New(src, disp, nil, init, Options{})
	defer l.Close()

	for i := 0; i < 3; i++ {
		if _, err := l.Step(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	snap := l.Snapshot()
	if snap.SerialConnected {
		t.Error("SerialConnected = true without a sink")
	}
	if snap.Command == nil {
		t.Fatal("snapshot missing command while tracking")
	}
	want := tracking.Command{Left: 15, Right: -15, Top: 11, Bottom: -11}
	if *snap.Command != want {
		t.Errorf("command = %v, want %v", *snap.Command, want)
	}
}

func TestLoop_RunQuit(t *testing.T) {
	f := newFixture(t, 10, []input{{}, {key: display.KeyQuit}}, tracksBox(image.Rect(0, 0, 1, 1)))

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.source.reads != 2 {
		t.Errorf("read %d frames, want 2", f.source.reads)
	}
	if f.display.shown != 2 {
		t.Errorf("shown %d frames, want 2", f.display.shown)
	}
	if f.source.closes != 1 || f.display.closes != 1 || f.sink.closes != 1 {
		t.Errorf("closes: source=%d display=%d sink=%d, want 1 each",
			f.source.closes, f.display.closes, f.sink.closes)
	}

	f.loop.Close()
	if f.source.closes != 1 {
		t.Errorf("source closed %d times after second Close, want 1", f.source.closes)
	}

	// The frame buffers are freed by now; the final snapshot must not touch them.
	snap := f.loop.Snapshot()
	if snap.Frame != 2 || snap.FrameWidth != testWidth || snap.FrameHeight != testHeight {
		t.Errorf("final snapshot frame=%d size=%dx%d, want 2 and %dx%d",
			snap.Frame, snap.FrameWidth, snap.FrameHeight, testWidth, testHeight)
	}
}

func TestLoop_RunFrameFailure(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	f := newFixture(t, 3, []input{{events: drag(box.Min, box.Max)}}, tracksBox(box))

	err := f.loop.Run(context.Background())
	if !errors.Is(err, errNoMoreFrames) {
		t.Fatalf("Run error = %v, want %v", err, errNoMoreFrames)
	}
	if f.init.handles[0].closes != 1 {
		t.Errorf("tracker closed %d times, want 1", f.init.handles[0].closes)
	}
	if f.source.closes != 1 || f.display.closes != 1 || f.sink.closes != 1 {
		t.Errorf("closes: source=%d display=%d sink=%d, want 1 each",
			f.source.closes, f.display.closes, f.sink.closes)
	}

	snap := f.loop.Snapshot()
	if snap.Frame != 3 || snap.Command == nil {
		t.Errorf("final snapshot = %+v, want frame 3 with a command", snap)
	}
}

// countPainted counts non-black pixels in the band where the idle
// instructions are drawn.
func countPainted(frame gocv.Mat) int {
	n := 0
	for y := 0; y < 45; y++ {
		for x := 0; x < testWidth; x++ {
			v := frame.GetVecbAt(y, x)
			if v[0] != 0 || v[1] != 0 || v[2] != 0 {
				n++
			}
		}
	}
	return n
}

func TestLoop_InitUsesFrameWithoutOverlay(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	painted := -1
	f := newFixture(t, 5, []input{{events: drag(box.Min, box.Max)}}, tracksBox(box))
	f.init.inspect = func(frame gocv.Mat) {
		painted = countPainted(frame)
	}

	f.steps(t, 1)
	if countPainted(f.loop.frame) == 0 {
		t.Fatal("annotated frame carries no idle text")
	}
	if painted != 0 {
		t.Errorf("tracker saw %d overlay pixels, want a clean frame", painted)
	}
}

func TestLoop_RunCancelled(t *testing.T) {
	f := newFixture(t, 10, nil, tracksBox(image.Rect(0, 0, 1, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.source.reads != 0 {
		t.Errorf("read %d frames after cancel, want 0", f.source.reads)
	}
	if f.source.closes != 1 {
		t.Errorf("source closed %d times, want 1", f.source.closes)
	}
}

type recordingUpdater struct {
	snaps  []status.Snapshot
	frames int
}

func (r *recordingUpdater) UpdateTracking(s status.Snapshot) { r.snaps = append(r.snaps, s) }
func (r *recordingUpdater) SendFrame(frame gocv.Mat) { r.frames++ }

func TestLoop_PublishesSnapshots(t *testing.T) {
	box := image.Rect(420, 140, 520, 240)
	rec := &recordingUpdater{}
	src := newFakeSource(3)
	disp := &fakeDisplay{script: []input{{events: drag(box.Min, box.Max)}}}
	sink := &fakeSink{}
	init := &fakeInit{next: tracksBox(box)}

	l := New(src, disp, sink, init, Options{Session: "abc", Updater: rec})
	defer l.Close()
	for i := 0; i < 2; i++ {
		if _, err := l.Step(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if len(rec.snaps) != 2 || rec.frames != 2 {
		t.Fatalf("got %d snapshots and %d frames, want 2 each", len(rec.snaps), rec.frames)
	}
	first, second := rec.snaps[0], rec.snaps[1]
	if first.Phase != "tracking" || first.Box != nil {
		t.Errorf("first snapshot = %+v, want tracking phase without a box", first)
	}
	if second.Session != "abc" || second.Frame != 2 {
		t.Errorf("second snapshot session=%q frame=%d", second.Session, second.Frame)
	}
	if second.FrameWidth != testWidth || second.FrameHeight != testHeight {
		t.Errorf("frame size = %dx%d", second.FrameWidth, second.FrameHeight)
	}
	if second.Box == nil || *second.Box != (status.Box{X: 420, Y: 140, W: 100, H: 100}) {
		t.Errorf("box = %+v", second.Box)
	}
	if second.Center == nil || *second.Center != (status.Point{X: 470, Y: 190}) {
		t.Errorf("center = %+v", second.Center)
	}
	if second.CommandsSent != 1 || !second.SerialConnected {
		t.Errorf("commands=%d serial=%v", second.CommandsSent, second.SerialConnected)
	}
}
