package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

var ErrMissingScooterID = errors.New("scooter record has no id")

// UpdateFailedError is reported when a poll of the scooter API fails. The
// previous snapshot stays in place.
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("failed to fetch scooter data: %v", e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// Fetcher is the bulk read side of the scooter API
type Fetcher interface {
	GetScooters(ctx context.Context) ([]sunshine.Scooter, error)
}

// Snapshot maps scooter id to the record from the last successful poll.
// A published snapshot is never mutated.
type Snapshot map[string]sunshine.Scooter

// Listener is called after every refresh attempt. err is nil on success.
type Listener func(snapshot Snapshot, err error)

type Coordinator struct {
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Logger

	mutex             sync.RWMutex
	data              Snapshot
	lastUpdateSuccess bool
	lastError         error
	lastUpdated       time.Time

	listenerMutex  sync.Mutex
	listeners      map[int]Listener
	nextListenerID int

	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator polling fetcher every interval. timeout bounds
// every fetch; zero means no bound.
func New(fetcher Fetcher, interval, timeout time.Duration, logger *logrus.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		fetcher:   fetcher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		data:      Snapshot{},
		listeners: make(map[int]Listener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Refresh polls the API now. Concurrent callers share a single fetch and
// all receive its result. The fetch runs on the coordinator's own context,
// so a caller whose ctx ends stops waiting without failing the poll for
// everyone else.
func (c *Coordinator) Refresh(ctx context.Context) error {
	result := c.group.DoChan("refresh", func() (any, error) {
		return nil, c.fetchAndUpdate()
	})

	select {
	case res := <-result:
		if res.Shared {
			c.logger.Debug("Refresh coalesced with in-flight poll")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) fetchAndUpdate() error {
	if err := c.ctx.Err(); err != nil {
		return err
	}

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, c.timeout)
		defer cancel()
	}
	return c.update(ctx)
}

// RequestRefresh is the fire-and-report variant used after commands: the
// failure is logged and delivered to listeners, never returned.
func (c *Coordinator) RequestRefresh(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.WithError(err).Warn("Requested refresh failed")
	}
}

func (c *Coordinator) update(ctx context.Context) error {
	scooters, err := c.fetcher.GetScooters(ctx)
	if err == nil {
		var snapshot Snapshot
		snapshot, err = buildSnapshot(scooters)
		if err == nil {
			c.mutex.Lock()
			c.data = snapshot
			c.lastUpdateSuccess = true
			c.lastError = nil
			c.lastUpdated = time.Now()
			c.mutex.Unlock()

			c.logger.Debugf("Fetched %d scooter(s)", len(snapshot))
			c.notify(snapshot, nil)
			return nil
		}
	}

	updateErr := &UpdateFailedError{Err: err}

	// stopping; the last result stands
	if c.ctx.Err() != nil {
		return updateErr
	}

	c.mutex.Lock()
	wasSuccessful := c.lastUpdateSuccess
	c.lastUpdateSuccess = false
	c.lastError = updateErr
	snapshot := c.data
	c.mutex.Unlock()

	if wasSuccessful {
		c.logger.WithError(err).Error("Error fetching scooter data")
	} else {
		c.logger.WithError(err).Debug("Scooter data still unavailable")
	}

	c.notify(snapshot, updateErr)
	return updateErr
}

func buildSnapshot(scooters []sunshine.Scooter) (Snapshot, error) {
	snapshot := make(Snapshot, len(scooters))
	for i, scooter := range scooters {
		id, ok := scooter.ID()
		if !ok {
			return nil, fmt.Errorf("record %d: %w", i, ErrMissingScooterID)
		}
		snapshot[id] = scooter
	}
	return snapshot, nil
}

// Subscribe registers a listener and returns a function removing it
func (c *Coordinator) Subscribe(listener Listener) func() {
	c.listenerMutex.Lock()
	defer c.listenerMutex.Unlock()

	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = listener

	return func() {
		c.listenerMutex.Lock()
		delete(c.listeners, id)
		c.listenerMutex.Unlock()
	}
}

func (c *Coordinator) notify(snapshot Snapshot, err error) {
	c.listenerMutex.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, listener := range c.listeners {
		listeners = append(listeners, listener)
	}
	c.listenerMutex.Unlock()

	for _, listener := range listeners {
		listener(snapshot, err)
	}
}

// Data returns the current snapshot
func (c *Coordinator) Data() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.data
}

// Scooter returns the record for one scooter from the current snapshot
func (c *Coordinator) Scooter(id string) (sunshine.Scooter, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	scooter, ok := c.data[id]
	return scooter, ok
}

func (c *Coordinator) LastUpdateSuccess() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastUpdateSuccess
}

func (c *Coordinator) LastError() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastError
}

func (c *Coordinator) LastUpdated() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastUpdated
}

func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Start begins periodic polling (implements Service interface)
func (c *Coordinator) Start() error {
	c.wg.Add(1)
	go c.pollLoop()
	c.logger.Infof("Polling scooter API every %v", c.interval)
	return nil
}

// Stop ends periodic polling and waits for an in-flight poll to return
// (implements Service interface)
func (c *Coordinator) Stop() error {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("Polling stopped")
	return nil
}

func (c *Coordinator) pollLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.scheduledRefresh()
		}
	}
}

func (c *Coordinator) scheduledRefresh() {
	// failures are already logged and delivered to listeners
	_ = c.Refresh(c.ctx)
}
