// Package outboundtest provides an in-memory outbound.Channel for tests.
package outboundtest

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/anonchat/internal/server/models"
)

type Notice struct {
	UserID int64
	Text   string
}

type Forward struct {
	From, To int64
	Content  models.Content
}

// Recorder remembers everything sent through it. SendErr and ForwardErr, when
// set, are returned instead of recording.
type Recorder struct {
	mu       sync.Mutex
	notices  []Notice
	forwards []Forward

	SendErr    func(userID int64) error
	ForwardErr func(to int64) error
}

func (r *Recorder) Send(ctx context.Context, userID int64, text string) error {
	if r.SendErr != nil {
		if err := r.SendErr(userID); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{UserID: userID, Text: text})
	return nil
}

func (r *Recorder) ForwardContent(ctx context.Context, from, to int64, content models.Content) error {
	if r.ForwardErr != nil {
		if err := r.ForwardErr(to); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwards = append(r.forwards, Forward{From: from, To: to, Content: content})
	return nil
}

// NoticesFor returns the texts sent to userID in order.
func (r *Recorder) NoticesFor(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notices {
		if n.UserID == userID {
			out = append(out, n.Text)
		}
	}
	return out
}

func (r *Recorder) Forwards() []Forward {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Forward(nil), r.forwards...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
	r.forwards = nil
}
