package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jobshepherd/core/pkg/models"
	"github.com/jobshepherd/core/pkg/runtime"
)

// fakeUnit is one container held by the fake runtime.
type fakeUnit struct {
	cmd      []string
	image    string
	env      []string
	running  bool
	exitCode int
}

// fakeRuntime is an in-memory container runtime. Started units "exit" with
// nextExitCode as soon as Wait is called.
type fakeRuntime struct {
	mu    sync.Mutex
	units map[string]*fakeUnit

	nextExitCode int
	probeErr     error

	probeCalls  int
	createCalls int
	startCalls  int
	removeCalls int
	waitCalls   int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{units: make(map[string]*fakeUnit)}
}

func (f *fakeRuntime) Probe(ctx context.Context, name string) (runtime.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	if f.probeErr != nil {
		return runtime.Status{}, f.probeErr
	}
	u, ok := f.units[name]
	if !ok {
		return runtime.Status{}, nil
	}
	return runtime.Status{
		Present:  true,
		Running:  u.running,
		ExitCode: u.exitCode,
		Cmd:      append([]string(nil), u.cmd...),
		Image:    u.image,
	}, nil
}

func (f *fakeRuntime) Create(ctx context.Context, spec runtime.CreateSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if _, ok := f.units[spec.Name]; ok {
		return fmt.Errorf("container %s already exists", spec.Name)
	}
	f.units[spec.Name] = &fakeUnit{
		cmd:   append([]string(nil), spec.Cmd...),
		image: spec.Image,
		env:   append([]string(nil), spec.Env...),
	}
	return nil
}

func (f *fakeRuntime) Start(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	u, ok := f.units[name]
	if !ok {
		return fmt.Errorf("container %s does not exist", name)
	}
	u.running = true
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	u, ok := f.units[name]
	if !ok {
		return fmt.Errorf("container %s does not exist", name)
	}
	if u.running {
		return fmt.Errorf("container %s is running", name)
	}
	delete(f.units, name)
	return nil
}

func (f *fakeRuntime) Wait(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitCalls++
	u, ok := f.units[name]
	if !ok {
		return 0, fmt.Errorf("container %s does not exist", name)
	}
	if u.running {
		u.running = false
		u.exitCode = f.nextExitCode
	}
	return u.exitCode, nil
}

// setUnit installs a container directly, for crash-recovery setups.
func (f *fakeRuntime) setUnit(name string, u *fakeUnit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units[name] = u
}

func (f *fakeRuntime) unit(name string) (fakeUnit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[name]
	if !ok {
		return fakeUnit{}, false
	}
	return *u, true
}

// fakeStore is an in-memory JobStore.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]models.Job
	envs map[int64][]models.JobEnv
	runs []models.Run

	reapCalls int
}

func newFakeStore(jobs ...models.Job) *fakeStore {
	s := &fakeStore{
		jobs: make(map[string]models.Job),
		envs: make(map[int64][]models.JobEnv),
	}
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s
}

func (s *fakeStore) ListJobs(ctx context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *fakeStore) GetJobByName(ctx context.Context, name string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return models.Job{}, errors.New("no such job")
	}
	return j, nil
}

func (s *fakeStore) ListJobEnv(ctx context.Context, jobID int64) ([]models.JobEnv, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.JobEnv(nil), s.envs[jobID]...), nil
}

func (s *fakeStore) MarkJobStarted(ctx context.Context, name string, scheduled time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return errors.New("no such job")
	}
	j.Active = true
	j.Scheduled = scheduled
	s.jobs[name] = j
	return nil
}

func (s *fakeStore) ReapJob(ctx context.Context, jobID int64, name string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapCalls++
	j, ok := s.jobs[name]
	if !ok {
		return errors.New("no such job")
	}
	j.Active = false
	s.jobs[name] = j
	s.runs = append(s.runs, models.Run{
		ID:        int64(len(s.runs) + 1),
		JobID:     jobID,
		Failed:    failed,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *fakeStore) job(name string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[name]
}

func (s *fakeStore) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func (s *fakeStore) lastRun() (models.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return models.Run{}, false
	}
	return s.runs[len(s.runs)-1], true
}
