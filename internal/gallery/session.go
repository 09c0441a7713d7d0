package gallery

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/trapcam/internal/inference"
	"github.com/Brownie44l1/trapcam/internal/model"
	"github.com/Brownie44l1/trapcam/internal/pager"
)

// inferTimeout bounds one debounced batch, pixel fetches included.
const inferTimeout = 2 * time.Minute

// Lister returns the file names of a folder. Forget drops any cached listing
// so the next List goes to the file server.
type Lister interface {
	List(ctx context.Context, folder string) ([]string, error)
	Forget(folder string)
}

// PixelSource returns decoded pixels for an image URL.
type PixelSource interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// ModelSource returns the currently loaded model, nil when there is none.
type ModelSource interface {
	Current() (model.Handle, string)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Lister   Lister
	Pixels   PixelSource
	Models   ModelSource
	Adapter  *inference.Adapter
	BaseURL  string
	Debounce time.Duration
	Log      logrus.FieldLogger
}

// Session is one visitor's gallery: the folder listing, the current window,
// its bound images and their predictions.
type Session struct {
	ID   string
	deps *Deps
	log  logrus.FieldLogger

	mu         sync.Mutex
	folder     string
	names      []string
	loading    bool
	window     pager.Window
	images     [pager.Size]Image
	preds      [pager.Size]model.Prediction
	generation uint64
	closed     bool

	debounce *inference.Debouncer
	watchers map[int]chan State
	nextID   int
}

// NewSession creates a session for folder. Call Refresh to fetch its listing.
func NewSession(id, folder string, deps *Deps) *Session {
	s := &Session{
		ID:       id,
		deps:     deps,
		log:      deps.Log.WithField("session", id),
		folder:   folder,
		loading:  true,
		window:   pager.First(),
		debounce: inference.NewDebouncer(deps.Debounce),
		watchers: make(map[int]chan State),
	}
	s.rebindLocked()
	return s
}

// Refresh lists the session's folder and resets the window to the first
// page. A failed listing leaves the gallery empty.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	folder := s.folder
	s.loading = true
	s.notifyLocked()
	s.mu.Unlock()

	names, err := s.deps.Lister.List(ctx, folder)
	if err != nil {
		s.log.WithField("folder", folder).WithError(err).Error("listing folder failed")
		names = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.folder != folder {
		return err
	}
	s.names = names
	s.loading = false
	s.window = pager.First()
	s.changedLocked()
	return err
}

// SetFolder switches the session to folder and lists it afresh, bypassing
// the listing cache so newly arrived images show up.
func (s *Session) SetFolder(ctx context.Context, folder string) error {
	s.mu.Lock()
	s.folder = folder
	s.mu.Unlock()
	s.deps.Lister.Forget(folder)
	return s.Refresh(ctx)
}

// Previous moves the window back a page. It reports whether it moved.
func (s *Session) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.window.Previous()
	if !ok {
		s.log.Debug("already on the first page")
		return false
	}
	s.window = w
	s.changedLocked()
	return true
}

// Next moves the window forward a page. It reports whether it moved.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.window.Next(len(s.names))
	if !ok {
		s.log.Debug("already on the last page")
		return false
	}
	s.window = w
	s.changedLocked()
	return true
}

// ModelChanged schedules a new batch for the new model.
func (s *Session) ModelChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
}

// Predict runs a batch right away and waits for it.
func (s *Session) Predict(ctx context.Context) State {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	s.infer(ctx, gen)
	return s.State()
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Watch returns a channel receiving a snapshot after every change and a
// function to stop watching. Slow watchers only see the latest snapshot.
func (s *Session) Watch() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.stateLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
	}
}

// Close cancels pending inference and ends all watches.
func (s *Session) Close() {
	s.debounce.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) changedLocked() {
	s.rebindLocked()
	s.notifyLocked()
	s.scheduleLocked()
}

func (s *Session) rebindLocked() {
	s.images = Bind(s.window, s.names, s.deps.BaseURL, s.folder)
	for i := range s.preds {
		s.preds[i] = model.Absent(i)
	}
	s.generation++
}

func (s *Session) scheduleLocked() {
	if s.closed {
		return
	}
	gen := s.generation
	s.debounce.Schedule(func() {
		ctx, cancel := context.WithTimeout(context.Background(), inferTimeout)
		defer cancel()
		s.infer(ctx, gen)
	})
}

// infer loads the page's pixels and classifies them. The predictions replace
// the previous ones in one step, and only if the page is still the one the
// batch was started for.
func (s *Session) infer(ctx context.Context, gen uint64) {
	h, modelURL := s.deps.Models.Current()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	images := s.images
	s.mu.Unlock()

	pixels := make([]image.Image, len(images))
	if h != nil {
		pixels = LoadPixels(ctx, s.deps.Pixels, images[:], s.log)
	}

	preds := s.deps.Adapter.Run(ctx, h, pixels)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.log.Debug("page changed during inference, dropping batch")
		return
	}
	for i := range images {
		s.images[i].Pixels = pixels[i]
		s.preds[i] = preds[i]
	}
	s.log.WithFields(logrus.Fields{
		"model":  modelURL,
		"window": s.window,
		"labels": inference.Labels(preds),
	}).Info("page classified")
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	if len(s.watchers) == 0 {
		return
	}
	st := s.stateLocked()
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
