package ecs_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelworks/ecs"
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
	"github.com/kestrelworks/ecs/view"
	"github.com/stretchr/testify/require"
)

// testSystem runs once per chunk matched by its query. Most tests here seed
// the world with a single, componentless entity and give the system an
// empty query so exactly one chunk matches and RunChunk fires once per
// tick — close enough to the old per-tick Run semantics these tests were
// originally written against.
type testSystem struct {
	name      string
	desc      ecs.SystemDescriptor
	mu        sync.Mutex
	executed  *[]string
	deferCmd  func(exec ecs.ExecutionContext)
	failLimit int
	failCount int
}

func (s *testSystem) Descriptor() ecs.SystemDescriptor {
	if s.desc.Name == "" {
		s.desc.Name = s.name
	}
	return s.desc
}

func (s *testSystem) RunChunk(_ context.Context, exec ecs.ExecutionContext, _ view.MatchedChunk) ecs.SystemResult {
	if s.deferCmd != nil {
		s.deferCmd(exec)
	}
	if s.executed != nil {
		s.mu.Lock()
		*s.executed = append(*s.executed, s.name)
		s.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLimit > 0 && s.failCount < s.failLimit {
		s.failCount++
		return ecs.SystemResult{Err: fmt.Errorf("forced failure %s", s.name)}
	}
	return ecs.SystemResult{}
}

type recordingObserver struct {
	mu        sync.Mutex
	summaries []ecs.WorkGroupSummary
}

func (o *recordingObserver) WorkGroupCompleted(summary ecs.WorkGroupSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, summary)
}

type recordingPromCollector struct {
	mu       sync.Mutex
	observed []ecs.WorkGroupSummary
}

func (c *recordingPromCollector) ObserveWorkGroup(summary ecs.WorkGroupSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observed = append(c.observed, summary)
}

type recordingSigNozExporter struct {
	mu       sync.Mutex
	exported []ecs.WorkGroupSummary
}

func (e *recordingSigNozExporter) ExportWorkGroup(summary ecs.WorkGroupSummary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exported = append(e.exported, summary)
}

// seededWorld returns a world containing one componentless entity, so a
// testSystem with the zero-value Query (which matches every archetype)
// always has exactly one chunk to dispatch.
func seededWorld(t *testing.T) *ecs.World {
	t.Helper()
	world := ecs.NewWorld()
	_, err := world.CreateEntity(typeset.TypeSet{}, nil, nil)
	require.NoError(t, err)
	return world
}

// compRegistry builds a registry with one Regular component named "comp"
// and returns its TypeID alongside the query facet helpers below.
func compRegistry(t *testing.T) (*registry.Registry, registry.TypeID) {
	t.Helper()
	reg := registry.New()
	id, err := reg.Register("comp", 8, 8, registry.Regular, nil, nil)
	require.NoError(t, err)
	return reg, id
}

func writeQuery(reg *registry.Registry, id registry.TypeID) typeset.Query {
	return typeset.Query{Write: typeset.Of(reg.Count(), id)}
}

func resourceAccess(name string, mode ecs.AccessMode) []ecs.ResourceAccess {
	return []ecs.ResourceAccess{{Name: name, Mode: mode}}
}

func TestSchedulerRunsGroupsInOrder(t *testing.T) {
	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	order := make([]string, 0)
	sysA := &testSystem{name: "A", executed: &order}
	sysB := &testSystem{name: "B", executed: &order}

	group1 := ecs.WorkGroupConfig{ID: "group1", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sysA}}
	group2 := ecs.WorkGroupConfig{ID: "group2", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sysB}}

	_, err = scheduler.RegisterWorkGroup(group1)
	require.NoError(t, err)
	_, err = scheduler.RegisterWorkGroup(group2)
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))

	require.Equal(t, []string{"A", "B"}, order)
}

func TestSchedulerAppliesDeferredCommands(t *testing.T) {
	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	before := world.EntityCount()
	target := world.NewTempID()
	sys := &testSystem{
		name: "creator",
		deferCmd: func(exec ecs.ExecutionContext) {
			exec.Defer(ecs.CreateEntityCommand{Target: target, Types: typeset.TypeSet{}})
		},
	}

	cfg := ecs.WorkGroupConfig{ID: "create", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sys}}
	_, err = scheduler.RegisterWorkGroup(cfg)
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))

	require.Equal(t, before+1, world.EntityCount())
	created := world.Resolve(target)
	require.False(t, created.IsTemp(), "expected temp id to resolve to a real entity")
}

func TestSchedulerRunsAsyncGroup(t *testing.T) {
	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	_, err = scheduler.Builder().WithAsyncWorkers(2).Build(nil)
	require.NoError(t, err)

	order := make([]string, 0)
	asyncSys := &testSystem{name: "async", executed: &order, desc: ecs.SystemDescriptor{AsyncAllowed: true}}
	syncSys := &testSystem{name: "sync", executed: &order}

	asyncGroup := ecs.WorkGroupConfig{ID: "async", Mode: ecs.WorkGroupModeAsync, Systems: []ecs.System{asyncSys}}
	syncGroup := ecs.WorkGroupConfig{ID: "sync", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{syncSys}}

	_, err = scheduler.RegisterWorkGroup(asyncGroup)
	require.NoError(t, err)
	_, err = scheduler.RegisterWorkGroup(syncGroup)
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))

	require.Len(t, order, 2)
	require.Contains(t, order, "async")
	require.Contains(t, order, "sync")
}

func TestSchedulerHonorsTickInterval(t *testing.T) {
	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	executions := make([]string, 0)
	sys := &testSystem{
		name:     "periodic",
		desc:     ecs.SystemDescriptor{RunEvery: ecs.TickInterval{Every: 2}},
		executed: &executions,
	}

	cfg := ecs.WorkGroupConfig{ID: "periodic", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sys}}
	_, err = scheduler.RegisterWorkGroup(cfg)
	require.NoError(t, err)

	runCounts := 0
	for i := 0; i < 4; i++ {
		require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))
		runCounts += len(executions)
		executions = executions[:0]
	}

	require.Equal(t, 2, runCounts)
}

func TestSchedulerAsyncGroupRejectsWrites(t *testing.T) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)
	_, err = scheduler.Builder().WithAsyncWorkers(1).Build(nil)
	require.NoError(t, err)

	reg, id := compRegistry(t)
	system := &testSystem{name: "writer", desc: ecs.SystemDescriptor{AsyncAllowed: true, Query: writeQuery(reg, id)}}
	cfg := ecs.WorkGroupConfig{ID: "async-writer", Mode: ecs.WorkGroupModeAsync, Systems: []ecs.System{system}}

	_, err = scheduler.RegisterWorkGroup(cfg)
	require.ErrorIs(t, err, ecs.ErrAsyncWritesNotSupported)
}

func TestSchedulerAsyncGroupRespectsAsyncAllowed(t *testing.T) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)
	_, err = scheduler.Builder().WithAsyncWorkers(1).Build(nil)
	require.NoError(t, err)

	system := &testSystem{name: "no-async", desc: ecs.SystemDescriptor{AsyncAllowed: false}}
	cfg := ecs.WorkGroupConfig{ID: "async-disallowed", Mode: ecs.WorkGroupModeAsync, Systems: []ecs.System{system}}

	_, err = scheduler.RegisterWorkGroup(cfg)
	require.ErrorIs(t, err, ecs.ErrAsyncSystemNotAllowed)
}

func TestSchedulerRejectsConflictingWritersAcrossGroups(t *testing.T) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	reg, id := compRegistry(t)
	writerA := &testSystem{name: "writerA", desc: ecs.SystemDescriptor{Query: writeQuery(reg, id)}}
	writerB := &testSystem{name: "writerB", desc: ecs.SystemDescriptor{Query: writeQuery(reg, id)}}

	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "A", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{writerA}})
	require.NoError(t, err)

	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "B", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{writerB}})
	require.ErrorIs(t, err, ecs.ErrDuplicateWriteAccess)
}

func TestSchedulerRejectsOverlappingReadWriteQuery(t *testing.T) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	reg, id := compRegistry(t)
	q := typeset.Query{
		Read:  typeset.Of(reg.Count(), id),
		Write: typeset.Of(reg.Count(), id),
	}
	system := &testSystem{name: "overlap", desc: ecs.SystemDescriptor{Query: q}}

	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "overlap", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{system}})
	require.ErrorIs(t, err, ecs.ErrOverlappingQuery)
}

func TestSchedulerRejectsResourceWriteConflicts(t *testing.T) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	resWriterA := &testSystem{name: "resA", desc: ecs.SystemDescriptor{Resources: resourceAccess("clock", ecs.AccessModeWrite)}}
	resWriterB := &testSystem{name: "resB", desc: ecs.SystemDescriptor{Resources: resourceAccess("clock", ecs.AccessModeWrite)}}

	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "resA", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{resWriterA}})
	require.NoError(t, err)

	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "resB", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{resWriterB}})
	require.ErrorIs(t, err, ecs.ErrDuplicateResourceWriteAccess)
}

func TestSchedulerAllowsMultipleResourceReaders(t *testing.T) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	readerA := &testSystem{name: "readerA", desc: ecs.SystemDescriptor{Resources: resourceAccess("clock", ecs.AccessModeRead)}}
	readerB := &testSystem{name: "readerB", desc: ecs.SystemDescriptor{Resources: resourceAccess("clock", ecs.AccessModeRead)}}

	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "readerA", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{readerA}})
	require.NoError(t, err)

	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "readerB", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{readerB}})
	require.NoError(t, err)
}

func TestSchedulerAsyncResourceWritesRejected(t *testing.T) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)
	_, err = scheduler.Builder().WithAsyncWorkers(1).Build(nil)
	require.NoError(t, err)

	writer := &testSystem{name: "asyncRes", desc: ecs.SystemDescriptor{AsyncAllowed: true, Resources: resourceAccess("clock", ecs.AccessModeWrite)}}
	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "async-resource", Mode: ecs.WorkGroupModeAsync, Systems: []ecs.System{writer}})
	require.ErrorIs(t, err, ecs.ErrAsyncResourceWritesNotSupported)
}

func TestSchedulerObserverReceivesSummary(t *testing.T) {
	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	observer := &recordingObserver{}
	prom := &recordingPromCollector{}
	sig := &recordingSigNozExporter{}
	_, err = scheduler.Builder().WithInstrumentation(ecs.InstrumentationConfig{
		Observer: observer,
		Observation: ecs.ObservationSettings{
			EnablePrometheus:    true,
			PrometheusCollector: prom,
			EnableSigNoz:        true,
			SigNozExporter:      sig,
		},
	}).Build(nil)
	require.NoError(t, err)

	sys := &testSystem{name: "observer"}
	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "obs", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sys}})
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))

	observer.mu.Lock()
	require.Len(t, observer.summaries, 1)
	summary := observer.summaries[0]
	observer.mu.Unlock()
	require.Equal(t, ecs.WorkGroupID("obs"), summary.WorkGroupID)
	require.Equal(t, 1, summary.SystemsExecuted)

	prom.mu.Lock()
	require.Len(t, prom.observed, 1)
	prom.mu.Unlock()

	sig.mu.Lock()
	require.Len(t, sig.exported, 1)
	sig.mu.Unlock()
}

func TestSchedulerEmitsTracerSpansPerSystem(t *testing.T) {
	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	type event struct {
		spanID string
		name   string
		start  bool
	}
	var mu sync.Mutex
	var events []event
	tracer := ecs.NewUUIDTracer(func(spanID, name string, start bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event{spanID: spanID, name: name, start: start})
	})

	_, err = scheduler.Builder().WithInstrumentation(ecs.InstrumentationConfig{EnableTrace: true, Tracer: tracer}).Build(nil)
	require.NoError(t, err)

	sys := &testSystem{
		name: "traced",
		deferCmd: func(exec ecs.ExecutionContext) {
			require.NotNil(t, exec.Tracer())
		},
	}
	cfg := ecs.WorkGroupConfig{ID: "trace", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sys}}
	_, err = scheduler.RegisterWorkGroup(cfg)
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	require.Equal(t, "traced", events[0].name)
	require.True(t, events[0].start)
	require.Equal(t, "traced", events[1].name)
	require.False(t, events[1].start)
	require.Equal(t, events[0].spanID, events[1].spanID)
}

func TestSchedulerRetryPolicy(t *testing.T) {
	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	failing := &testSystem{name: "flaky", failLimit: 1}
	cfg := ecs.WorkGroupConfig{ID: "retry", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{failing}, ErrorPolicy: ecs.ErrorPolicyRetry}
	_, err = scheduler.RegisterWorkGroup(cfg)
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))
	require.Equal(t, 1, failing.failCount)
}

func TestSchedulerParallelChunkDispatch(t *testing.T) {
	reg, id := compRegistry(t)
	world := ecs.NewWorld(ecs.WithRegistry(reg))

	// Two distinct shared-component values land in two different chunks of
	// the same archetype, so a query over this component's write facet
	// matches two chunks and exercises runSystem's errgroup fan-out path.
	sharedID, err := reg.Register("shared", 8, 8, registry.Shared, nil, nil)
	require.NoError(t, err)
	types := typeset.Of(reg.Count(), id, sharedID)

	one := make([]byte, 8)
	one[0] = 1
	two := make([]byte, 8)
	two[0] = 2
	_, err = world.CreateEntity(types, map[registry.TypeID][]byte{sharedID: one}, nil)
	require.NoError(t, err)
	_, err = world.CreateEntity(types, map[registry.TypeID][]byte{sharedID: two}, nil)
	require.NoError(t, err)

	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	var chunksSeen int32
	sys := &parallelCountingSystem{query: typeset.Query{Required: types, Write: typeset.Of(reg.Count(), id)}, count: &chunksSeen}
	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "parallel", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sys}})
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))
	require.EqualValues(t, 2, chunksSeen)
}

// counterSystem adds its entity id to the counter component, so the final
// value depends on how many ticks ran but not on chunk dispatch order.
type counterSystem struct {
	query typeset.Query
	cT    registry.TypeID
}

func (s counterSystem) Descriptor() ecs.SystemDescriptor {
	return ecs.SystemDescriptor{Name: "counter", Query: s.query}
}

func (s counterSystem) RunChunk(_ context.Context, _ ecs.ExecutionContext, m view.MatchedChunk) ecs.SystemResult {
	view.EachChunk1[int64](m, s.cT, func(id int64, c *int64) {
		*c += id
	})
	return ecs.SystemResult{}
}

func TestSingleAndMultiThreadedTicksAgree(t *testing.T) {
	build := func(singleThreaded bool) (*ecs.World, registry.TypeID, []ecs.EntityID) {
		reg := registry.New()
		counterType, err := reg.Register("Counter", 8, 8, registry.Regular, nil, nil)
		require.NoError(t, err)
		groupType, err := reg.Register("Group", 4, 4, registry.Shared, nil, nil)
		require.NoError(t, err)
		world := ecs.NewWorld(ecs.WithRegistry(reg))

		// Three distinct shared values spread the entities over three chunks
		// so the parallel run actually fans out.
		types := typeset.Of(reg.Count(), counterType, groupType)
		ids := make([]ecs.EntityID, 0, 30)
		for i := 0; i < 30; i++ {
			group := []byte{byte(i % 3), 0, 0, 0}
			id, err := world.CreateEntity(types, map[registry.TypeID][]byte{groupType: group}, nil)
			require.NoError(t, err)
			ids = append(ids, id)
		}

		scheduler, err := ecs.NewScheduler(world)
		require.NoError(t, err)
		_, err = scheduler.Builder().WithSingleThreaded(singleThreaded).Build(nil)
		require.NoError(t, err)

		sys := counterSystem{
			query: typeset.Query{Required: types, Write: typeset.Of(reg.Count(), counterType)},
			cT:    counterType,
		}
		_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "count", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sys}})
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))
		}
		return world, counterType, ids
	}

	parallelWorld, parallelType, ids := build(false)
	serialWorld, serialType, serialIDs := build(true)
	require.Equal(t, ids, serialIDs)

	for _, id := range ids {
		p := parallelWorld.GetComponent(id, parallelType)
		s := serialWorld.GetComponent(id, serialType)
		require.NotNil(t, p)
		require.Equal(t, s, p, "entity %v diverged between serial and parallel runs", id)
	}
}

type parallelCountingSystem struct {
	query typeset.Query
	count *int32
}

func (s *parallelCountingSystem) Descriptor() ecs.SystemDescriptor {
	return ecs.SystemDescriptor{Name: "parallel-count", Query: s.query}
}

func (s *parallelCountingSystem) RunChunk(_ context.Context, _ ecs.ExecutionContext, _ view.MatchedChunk) ecs.SystemResult {
	atomic.AddInt32(s.count, 1)
	return ecs.SystemResult{}
}
