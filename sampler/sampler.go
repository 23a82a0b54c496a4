// Package sampler measures peak resident memory while a benchmark
// invocation runs. A background goroutine samples the RSS of the harness
// process and every tracked child process tree at a fixed interval and keeps
// the running maximum; it also tracks the minimum of the system's available
// memory as a secondary, best-effort figure for engines whose allocations
// bypass RSS accounting.
package sampler

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultInterval is short enough to catch transient peaks without
// materially affecting measured duration.
const DefaultInterval = 10 * time.Millisecond

// Peak is the result of one sampling session.
type Peak struct {
	// RSSBytes is the maximum resident set observed across the harness
	// process and all tracked child trees.
	RSSBytes uint64
	// AvailDropBytes is the pre-run available memory minus the minimum
	// observed during the run; zero when available memory never dropped
	// or could not be read.
	AvailDropBytes uint64
	// Samples counts how many times memory was read.
	Samples int
}

// Sampler tracks peak memory for exactly one invocation. Its state is local
// to the Start/Stop pair; repeated invocations each get a fresh Sampler so
// readings can never bleed across runs.
type Sampler struct {
	interval time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	roots         map[int]struct{}
	peak          uint64
	minAvail      uint64
	baselineAvail uint64
	samples       int

	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a Sampler reading memory every interval. A non-positive
// interval selects DefaultInterval.
func New(interval time.Duration, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		interval: interval,
		logger:   logger,
		roots:    map[int]struct{}{os.Getpid(): {}},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Track adds a spawned process to the sampled set. Its descendants are
// discovered on every tick, so worker pools forked later are still counted.
// Safe to call while sampling runs.
func (s *Sampler) Track(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[pid] = struct{}{}
}

// Start begins the background sampling loop. It probes the platform's
// memory source once and returns an error if readings are unavailable, so
// the caller can degrade to "memory unavailable" instead of aborting the
// run.
func (s *Sampler) Start() error {
	if s.started {
		return fmt.Errorf("sampler already started")
	}
	if _, err := processRSS(os.Getpid()); err != nil {
		return fmt.Errorf("probe resident memory: %w", err)
	}
	s.started = true

	if avail, err := availableMemory(); err == nil {
		s.baselineAvail = avail
		s.minAvail = avail
	}

	go s.loop()
	return nil
}

// Stop ends sampling and returns the observed peak. It takes one final
// sample before returning so short invocations are never reported as zero.
func (s *Sampler) Stop() Peak {
	if !s.started {
		return Peak{}
	}
	close(s.stop)
	<-s.done
	s.sample()

	s.mu.Lock()
	defer s.mu.Unlock()
	p := Peak{RSSBytes: s.peak, Samples: s.samples}
	if s.baselineAvail > s.minAvail {
		p.AvailDropBytes = s.baselineAvail - s.minAvail
	}
	return p
}

func (s *Sampler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// sample reads the RSS of every tracked process tree. Processes that have
// exited since the last tick are treated as no further growth, not as an
// error.
func (s *Sampler) sample() {
	s.mu.Lock()
	roots := make([]int, 0, len(s.roots))
	for pid := range s.roots {
		roots = append(roots, pid)
	}
	s.mu.Unlock()

	var total uint64
	seen := map[int]struct{}{}
	for _, root := range roots {
		for _, pid := range descendants(root) {
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}
			rss, err := processRSS(pid)
			if err != nil {
				continue
			}
			total += rss
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++
	if total > s.peak {
		s.peak = total
	}
	if avail, err := availableMemory(); err == nil && avail < s.minAvail {
		s.minAvail = avail
	}
}
