package coverage

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/metrics"
	"github.com/rohankatakam/timpact/internal/models"
)

var (
	ErrNotOpen   = stderrors.New("coverage session not open")
	ErrClosed    = stderrors.New("coverage session closed")
	ErrNotClosed = stderrors.New("coverage session still open")
)

// Recorder is handed to every call site that reports observations
type Recorder interface {
	Record(ctx context.Context, obs models.CoverageObservation) error
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateOpen
	stateClosed
)

// ClassInvocations is the union of everything observed for one class within
// one suite
type ClassInvocations struct {
	ClassName  string
	SourcePath string
	// keyed by method name + descriptor
	Methods map[string]models.Invocation
}

// Invocations returns the observed methods sorted by name, then descriptor
func (c *ClassInvocations) Invocations() []models.Invocation {
	out := make([]models.Invocation, 0, len(c.Methods))
	for _, inv := range c.Methods {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MethodName != out[j].MethodName {
			return out[i].MethodName < out[j].MethodName
		}
		return out[i].Descriptor < out[j].Descriptor
	})
	return out
}

// SuiteInvocations is everything observed for one suite
type SuiteInvocations struct {
	SuiteName string
	SuitePath string
	Classes   map[string]*ClassInvocations
}

// ClassNames returns the observed classes in sorted order
func (s *SuiteInvocations) ClassNames() []string {
	names := make([]string, 0, len(s.Classes))
	for name := range s.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Drained is the closed session's result, keyed by suite name
type Drained map[string]*SuiteInvocations

// SuiteNames returns the drained suite names in sorted order
func (d Drained) SuiteNames() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aggregator union-merges observations from any number of concurrent
// reporters. Observations travel over a channel to a single merging
// goroutine; nothing is visible until the session is closed.
type Aggregator struct {
	id      string
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	buffer  int

	mu    sync.RWMutex
	state sessionState
	ch    chan models.CoverageObservation
	done  chan struct{}

	// owned by the merging goroutine until done is closed
	result    Drained
	conflicts []error
}

// NewAggregator creates an idle aggregator. m may be nil.
func NewAggregator(buffer int, logger logrus.FieldLogger, m *metrics.Metrics) *Aggregator {
	if buffer < 1 {
		buffer = 64
	}
	id := uuid.New().String()
	return &Aggregator{
		id:      id,
		logger:  logger.WithField("session", id),
		metrics: m,
		buffer:  buffer,
		result:  make(Drained),
	}
}

// ID identifies the aggregation session in logs and observation files
func (a *Aggregator) ID() string {
	return a.id
}

// Open starts the merging goroutine
func (a *Aggregator) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrClosed
	}

	a.ch = make(chan models.CoverageObservation, a.buffer)
	a.done = make(chan struct{})
	a.state = stateOpen
	go a.run()

	a.logger.Debug("coverage session opened")
	return nil
}

// Recorder returns the handle reporting call sites use
func (a *Aggregator) Recorder() Recorder {
	return a
}

// Record queues one observation. It blocks only while the buffer is full.
func (a *Aggregator) Record(ctx context.Context, obs models.CoverageObservation) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	switch a.state {
	case stateIdle:
		return ErrNotOpen
	case stateClosed:
		return ErrClosed
	}

	select {
	case a.ch <- obs:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits until every queued observation is merged
func (a *Aggregator) Close() error {
	a.mu.Lock()
	switch a.state {
	case stateIdle:
		a.mu.Unlock()
		return ErrNotOpen
	case stateClosed:
		a.mu.Unlock()
		return nil
	}
	a.state = stateClosed
	close(a.ch)
	a.mu.Unlock()

	<-a.done
	a.logger.WithFields(logrus.Fields{
		"suites":    len(a.result),
		"conflicts": len(a.conflicts),
	}).Info("coverage session closed")
	return nil
}

// Drain returns the merged result of a closed session
func (a *Aggregator) Drain() (Drained, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.state != stateClosed {
		return nil, ErrNotClosed
	}
	return a.result, nil
}

// Conflicts returns the merge conflicts of a closed session
func (a *Aggregator) Conflicts() []error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.state != stateClosed {
		return nil
	}
	return a.conflicts
}

func (a *Aggregator) run() {
	defer close(a.done)
	for obs := range a.ch {
		a.merge(obs)
	}
}

func (a *Aggregator) merge(obs models.CoverageObservation) {
	if obs.SuiteName == "" {
		a.logger.WithField("process", obs.ProcessID).Warn("dropping observation without suite name")
		return
	}
	if a.metrics != nil {
		a.metrics.ObservationsMerged.Inc()
	}

	suite := a.result[obs.SuiteName]
	if suite == nil {
		suite = &SuiteInvocations{
			SuiteName: obs.SuiteName,
			Classes:   make(map[string]*ClassInvocations),
		}
		a.result[obs.SuiteName] = suite
	}
	if obs.SuitePath != "" {
		suite.SuitePath = obs.SuitePath
	}

	for _, inv := range obs.Invocations {
		if inv.ClassName == "" {
			continue
		}
		class := suite.Classes[inv.ClassName]
		if class == nil {
			class = &ClassInvocations{
				ClassName: inv.ClassName,
				Methods:   make(map[string]models.Invocation),
			}
			suite.Classes[inv.ClassName] = class
		}

		if inv.SourcePath != "" {
			if class.SourcePath != "" && class.SourcePath != inv.SourcePath {
				a.conflict(obs, class, inv.SourcePath)
			}
			class.SourcePath = inv.SourcePath
		}

		// a class-only observation records that the class was loaded
		if inv.MethodName == "" {
			continue
		}
		class.Methods[inv.MethodName+inv.Descriptor] = models.Invocation{
			ClassName:  inv.ClassName,
			MethodName: inv.MethodName,
			Descriptor: inv.Descriptor,
		}
	}
}

// conflict keeps the latest path and records the disagreement
func (a *Aggregator) conflict(obs models.CoverageObservation, class *ClassInvocations, latest string) {
	err := errors.MergeConflictError(obs.SuiteName, class.ClassName, class.SourcePath, latest)
	a.conflicts = append(a.conflicts, err)
	if a.metrics != nil {
		a.metrics.MergeConflicts.Inc()
	}
	a.logger.WithError(err).WithField("process", obs.ProcessID).Warn("coverage observations disagree, keeping latest")
}
