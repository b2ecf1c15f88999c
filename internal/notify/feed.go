package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notice is a user-visible message produced by a verbose refresh.
type Notice struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Feed keeps the most recent notices in memory for display.
type Feed struct {
	mu      sync.RWMutex
	notices []Notice
	limit   int
	logger  *zap.SugaredLogger
}

// NewFeed creates a feed holding at most limit notices (limit <= 0 means 50).
func NewFeed(limit int, logger *zap.SugaredLogger) *Feed {
	if limit <= 0 {
		limit = 50
	}
	return &Feed{
		notices: make([]Notice, 0, limit),
		limit:   limit,
		logger:  logger,
	}
}

// ShowNotice records a notice.
func (f *Feed) ShowNotice(message string) {
	n := Notice{
		ID:      uuid.NewString(),
		Message: message,
		Time:    time.Now().UTC(),
	}
	f.logger.Infow("notice", "id", n.ID, "message", message)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	if over := len(f.notices) - f.limit; over > 0 {
		f.notices = append(f.notices[:0], f.notices[over:]...)
	}
}

// List returns the notices, newest first.
func (f *Feed) List() []Notice {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Notice, len(f.notices))
	for i, n := range f.notices {
		out[len(out)-1-i] = n
	}
	return out
}
