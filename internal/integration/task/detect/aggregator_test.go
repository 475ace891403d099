package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/project/watcher"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

type aggregatorFixture struct {
	folders  *fakeFolders
	config   *fakeConfig
	watcher  *fakeWatcher
	registry *fakeRegistry
	computer *countingComputer
	agg      *Aggregator
}

func newAggregatorFixture(t *testing.T, folders ...workspace.Folder) *aggregatorFixture {
	t.Helper()
	f := &aggregatorFixture{
		folders:  newFakeFolders(folders...),
		config:   newFakeConfig(),
		watcher:  &fakeWatcher{},
		registry: &fakeRegistry{},
		computer: newCountingComputer(),
	}
	agg, err := NewAggregator(Options{
		Folders:    f.folders,
		Config:     f.config,
		Watcher:    f.watcher,
		Registry:   f.registry,
		Computer:   f.computer,
		Enablement: f.config,
	})
	if err != nil {
		t.Fatalf("NewAggregator error = %v", err)
	}
	f.agg = agg
	t.Cleanup(agg.Dispose)
	return f
}

func TestNewAggregator_MissingDependency(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no folders", Options{Registry: &fakeRegistry{}, Computer: newCountingComputer()}},
		{"no registry", Options{Folders: newFakeFolders(), Computer: newCountingComputer()}},
		{"no computer", Options{Folders: newFakeFolders(), Registry: &fakeRegistry{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAggregator(tt.opts); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("NewAggregator error = %v, want ErrMissingDependency", err)
			}
		})
	}
}

func TestAggregator_NoFolders(t *testing.T) {
	f := newAggregatorFixture(t)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	tasks, err := f.agg.ProvideTasks(context.Background())
	if err != nil {
		t.Fatalf("ProvideTasks error = %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("tasks = %v, want empty non-nil list", tasks)
	}
	if f.agg.IsRegistered() {
		t.Error("aggregator without folders should not be registered")
	}
	if reg, _, _ := f.registry.counts(); reg != 0 {
		t.Errorf("registered = %d, want 0", reg)
	}
}

func TestAggregator_FanOutIsolation(t *testing.T) {
	a, b, c := localFolder(t), localFolder(t), localFolder(t)
	f := newAggregatorFixture(t, a, b, c)
	f.computer.set(a, makeTasks(a, "a1", "a2"), nil)
	f.computer.set(b, nil, errors.New("broken build file"))
	f.computer.set(c, makeTasks(c, "c1", "c2", "c3"), nil)

	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	tasks, err := f.agg.ProvideTasks(context.Background())
	if err != nil {
		t.Fatalf("ProvideTasks error = %v", err)
	}
	want := []string{"a1", "a2", "c1", "c2", "c3"}
	if len(tasks) != len(want) {
		t.Fatalf("len(tasks) = %d, want %d", len(tasks), len(want))
	}
	for i, name := range want {
		if tasks[i].Name != name {
			t.Errorf("tasks[%d] = %q, want %q", i, tasks[i].Name, name)
		}
	}

	// The failing folder still reports its error directly.
	d, ok := f.agg.Detector(b.URI)
	if !ok {
		t.Fatal("missing detector for failing folder")
	}
	if _, err := d.Tasks(context.Background()); err == nil {
		t.Error("failing detector should return its error")
	}
}

func TestAggregator_SingleFolderPassthrough(t *testing.T) {
	a := localFolder(t)
	f := newAggregatorFixture(t, a)
	boom := errors.New("boom")
	f.computer.set(a, nil, boom)

	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	if _, err := f.agg.ProvideTasks(context.Background()); !errors.Is(err, boom) {
		t.Errorf("ProvideTasks error = %v, want %v", err, boom)
	}

	f.computer.set(a, makeTasks(a, "gcc"), nil)
	f.watcher.last().fire(watcher.OpWrite, "c_cpp_build.json")
	tasks, err := f.agg.ProvideTasks(context.Background())
	if err != nil {
		t.Fatalf("ProvideTasks error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "gcc" {
		t.Errorf("tasks = %v, want [gcc]", tasks)
	}
}

func TestAggregator_RegistrationLifecycle(t *testing.T) {
	a, b := localFolder(t), localFolder(t)
	f := newAggregatorFixture(t)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	f.folders.change([]workspace.Folder{a}, nil)
	if reg, disp, _ := f.registry.counts(); reg != 1 || disp != 0 {
		t.Fatalf("after first add: registered %d disposed %d, want 1 0", reg, disp)
	}
	if f.registry.provider != task.Provider(f.agg) {
		t.Error("registered provider should be the aggregator")
	}

	f.folders.change([]workspace.Folder{b}, nil)
	if reg, disp, _ := f.registry.counts(); reg != 1 || disp != 0 {
		t.Fatalf("after second add: registered %d disposed %d, want 1 0", reg, disp)
	}

	f.folders.change(nil, []workspace.Folder{a})
	if reg, disp, _ := f.registry.counts(); reg != 1 || disp != 0 {
		t.Fatalf("after first remove: registered %d disposed %d, want 1 0", reg, disp)
	}

	f.folders.change(nil, []workspace.Folder{b})
	if reg, disp, active := f.registry.counts(); reg != 1 || disp != 1 || active != 0 {
		t.Fatalf("after last remove: registered %d disposed %d active %d, want 1 1 0", reg, disp, active)
	}
	if f.agg.IsRegistered() {
		t.Error("IsRegistered() = true with no folders")
	}

	f.folders.change([]workspace.Folder{a}, nil)
	if reg, _, active := f.registry.counts(); reg != 2 || active != 1 {
		t.Errorf("after re-add: registered %d active %d, want 2 1", reg, active)
	}
}

func TestAggregator_RemoveUnknownFolderIgnored(t *testing.T) {
	a := localFolder(t)
	f := newAggregatorFixture(t, a)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	f.agg.updateFolders(nil, []workspace.Folder{{URI: "file:///not/tracked"}})

	if got := f.agg.Folders(); len(got) != 1 || got[0] != a.URI {
		t.Errorf("Folders() = %v, want [%s]", got, a.URI)
	}
}

func TestAggregator_RemoveDisposesDetector(t *testing.T) {
	a := localFolder(t)
	f := newAggregatorFixture(t, a)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	d, _ := f.agg.Detector(a.URI)

	f.folders.change(nil, []workspace.Folder{a})

	if d.IsWatching() {
		t.Error("removed folder's detector should be disposed")
	}
	if _, ok := f.agg.Detector(a.URI); ok {
		t.Error("removed folder should be forgotten")
	}
}

func TestAggregator_ConfigChangeRebuilds(t *testing.T) {
	a, b := localFolder(t), localFolder(t)
	f := newAggregatorFixture(t, a, b)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	before := map[string]*FolderDetector{}
	for _, uri := range f.agg.Folders() {
		d, _ := f.agg.Detector(uri)
		before[uri] = d
	}

	f.config.fire()

	after := f.agg.Folders()
	if len(after) != 2 || after[0] != a.URI || after[1] != b.URI {
		t.Fatalf("Folders() after rebuild = %v, want [%s %s]", after, a.URI, b.URI)
	}
	for _, uri := range after {
		d, _ := f.agg.Detector(uri)
		if d == before[uri] {
			t.Errorf("detector for %s was not recreated", uri)
		}
		if before[uri].IsWatching() {
			t.Errorf("old detector for %s still watching", uri)
		}
		if !d.IsWatching() {
			t.Errorf("new detector for %s not watching", uri)
		}
	}
	if f.watcher.open() != 2 {
		t.Errorf("open watches = %d, want 2", f.watcher.open())
	}
	if reg, disp, _ := f.registry.counts(); reg != 1 || disp != 0 {
		t.Errorf("registered %d disposed %d, want 1 0", reg, disp)
	}
}

func TestAggregator_ConfigChangeAppliesEnablement(t *testing.T) {
	a, b := localFolder(t), localFolder(t)
	f := newAggregatorFixture(t, a, b)
	f.computer.set(a, makeTasks(a, "a1"), nil)
	f.computer.set(b, makeTasks(b, "b1"), nil)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	f.config.setEnabled(b, false)
	f.config.fire()

	d, _ := f.agg.Detector(b.URI)
	if d.IsWatching() {
		t.Error("disabled folder should not be watched")
	}
	tasks, err := f.agg.ProvideTasks(context.Background())
	if err != nil {
		t.Fatalf("ProvideTasks error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "a1" {
		t.Errorf("tasks = %v, want [a1]", tasks)
	}
}

func TestAggregator_DuplicateAddReplaces(t *testing.T) {
	a, b := localFolder(t), localFolder(t)
	f := newAggregatorFixture(t, a, b)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	old, _ := f.agg.Detector(a.URI)

	f.folders.change([]workspace.Folder{a}, nil)

	got := f.agg.Folders()
	if len(got) != 2 || got[0] != a.URI || got[1] != b.URI {
		t.Errorf("Folders() = %v, want original order", got)
	}
	current, _ := f.agg.Detector(a.URI)
	if current == old {
		t.Error("duplicate add should replace the detector")
	}
	if old.IsWatching() {
		t.Error("replaced detector should be disposed")
	}
	if f.watcher.open() != 2 {
		t.Errorf("open watches = %d, want 2", f.watcher.open())
	}
}

func TestAggregator_DisposeReleasesEverything(t *testing.T) {
	a, b := localFolder(t), localFolder(t)
	f := newAggregatorFixture(t, a, b)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if f.watcher.open() != 2 {
		t.Fatalf("open watches = %d, want 2", f.watcher.open())
	}

	f.agg.Dispose()
	f.agg.Dispose()

	if f.watcher.open() != 0 {
		t.Errorf("open watches after Dispose = %d, want 0", f.watcher.open())
	}
	if _, disp, active := f.registry.counts(); disp != 1 || active != 0 {
		t.Errorf("disposed %d active %d, want 1 0", disp, active)
	}
	if f.folders.listenerCount() != 0 {
		t.Errorf("folder listeners = %d, want 0", f.folders.listenerCount())
	}
	if f.config.listenerCount() != 0 {
		t.Errorf("config listeners = %d, want 0", f.config.listenerCount())
	}
	if len(f.agg.Folders()) != 0 {
		t.Errorf("Folders() = %v, want none", f.agg.Folders())
	}

	// Late notifications are ignored.
	f.agg.updateFolders([]workspace.Folder{localFolder(t)}, nil)
	f.agg.rebuild()
	if len(f.agg.Folders()) != 0 || f.agg.IsRegistered() {
		t.Error("disposed aggregator reacted to a notification")
	}
	if err := f.agg.Start(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Start after Dispose error = %v, want ErrDisposed", err)
	}
}

func TestAggregator_DisposeWithoutStart(t *testing.T) {
	f := newAggregatorFixture(t, localFolder(t))
	f.agg.Dispose()
	if reg, _, _ := f.registry.counts(); reg != 0 {
		t.Errorf("registered = %d, want 0", reg)
	}
}

func TestAggregator_StartTwice(t *testing.T) {
	f := newAggregatorFixture(t, localFolder(t))
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if err := f.agg.Start(); err != nil {
		t.Fatalf("second Start error = %v", err)
	}
	if f.folders.listenerCount() != 1 {
		t.Errorf("folder listeners = %d, want 1", f.folders.listenerCount())
	}
	if f.watcher.open() != 1 {
		t.Errorf("open watches = %d, want 1", f.watcher.open())
	}
}

func TestAggregator_ResolveTask(t *testing.T) {
	f := newAggregatorFixture(t, localFolder(t))
	resolved, err := f.agg.ResolveTask(context.Background(), &task.Task{Name: "gcc"})
	if resolved != nil || err != nil {
		t.Errorf("ResolveTask() = %v, %v; want nil, nil", resolved, err)
	}
	if got := f.computer.calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestAggregator_CanceledContext(t *testing.T) {
	a, b := localFolder(t), localFolder(t)
	f := newAggregatorFixture(t, a, b)
	f.computer.gate = make(chan struct{})
	defer close(f.computer.gate)
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.agg.ProvideTasks(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ProvideTasks error = %v, want context.Canceled", err)
	}
}

func TestAggregator_WithTaskRegistry(t *testing.T) {
	a, b := localFolder(t), localFolder(t)
	registry := task.NewRegistry()
	computer := newCountingComputer()
	computer.set(a, makeTasks(a, "a1"), nil)
	computer.set(b, makeTasks(b, "b1"), nil)
	folders := newFakeFolders(a, b)

	agg, err := NewAggregator(Options{Folders: folders, Registry: registry, Computer: computer})
	if err != nil {
		t.Fatalf("NewAggregator error = %v", err)
	}
	if err := agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	tasks, err := registry.TasksFor(context.Background(), task.ToolName)
	if err != nil {
		t.Fatalf("TasksFor error = %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("len(tasks) = %d, want 2", len(tasks))
	}

	agg.Dispose()
	if registry.Len() != 0 {
		t.Errorf("registry Len() = %d after Dispose, want 0", registry.Len())
	}
}

func TestAggregator_ConfigChangeKeepsInFlightResult(t *testing.T) {
	a := localFolder(t)
	f := newAggregatorFixture(t, a)
	f.computer.set(a, makeTasks(a, "debug", "release"), nil)
	f.computer.gate = make(chan struct{})
	if err := f.agg.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	type reply struct {
		tasks []*task.Task
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		tasks, err := f.agg.ProvideTasks(context.Background())
		done <- reply{tasks, err}
	}()
	eventually(t, func() bool { return f.computer.calls.Load() == 1 })

	f.config.fire()
	close(f.computer.gate)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("ProvideTasks error = %v, want the in-flight result", r.err)
		}
		if len(r.tasks) != 2 {
			t.Errorf("ProvideTasks = %v, want 2 tasks", r.tasks)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ProvideTasks did not return after the computation finished")
	}
}
