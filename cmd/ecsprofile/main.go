// Profiling:
//
//	go build ./cmd/ecsprofile
//	go tool pprof -http=":8000" -nodefraction=0.001 ./ecsprofile mem.pprof
package main

import (
	"context"
	"time"
	"unsafe"

	"github.com/kestrelworks/ecs"
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
	"github.com/kestrelworks/ecs/view"
	"github.com/pkg/profile"
)

type position struct {
	X, Y float64
}

type velocity struct {
	X, Y float64
}

func main() {
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(50, 2000, 1000)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for i := 0; i < rounds; i++ {
		reg := registry.New()
		posType, _ := reg.Register("Position", int(unsafe.Sizeof(position{})), int(unsafe.Alignof(position{})), registry.Regular, nil, nil)
		velType, _ := reg.Register("Velocity", int(unsafe.Sizeof(velocity{})), int(unsafe.Alignof(velocity{})), registry.Regular, nil, nil)

		world := ecs.NewWorld(ecs.WithRegistry(reg))
		types := typeset.Of(reg.Count(), posType, velType)
		for i := 0; i < numEntities; i++ {
			world.CreateEntity(types, nil, nil)
		}

		scheduler, _ := ecs.NewScheduler(world)
		query := typeset.Query{
			Required: types,
			Read:     typeset.Of(reg.Count(), velType),
			Write:    typeset.Of(reg.Count(), posType),
		}
		_, _ = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{
			ID:   "movement",
			Mode: ecs.WorkGroupModeSynchronized,
			Systems: []ecs.System{
				movementSystem{query: query, posType: posType, velType: velType},
			},
		})

		ctx := context.Background()
		for iter := 0; iter < iters; iter++ {
			_ = scheduler.Tick(ctx, 16*time.Millisecond)
		}
	}
}

type movementSystem struct {
	query   typeset.Query
	posType registry.TypeID
	velType registry.TypeID
}

func (s movementSystem) Descriptor() ecs.SystemDescriptor {
	return ecs.SystemDescriptor{Name: "movement", Query: s.query}
}

func (s movementSystem) RunChunk(ctx context.Context, exec ecs.ExecutionContext, m view.MatchedChunk) ecs.SystemResult {
	dt := exec.TimeDelta().Seconds()
	view.EachChunk2[position, velocity](m, s.posType, s.velType, func(id int64, pos *position, vel *velocity) {
		if pos == nil || vel == nil {
			return
		}
		pos.X += vel.X * dt
		pos.Y += vel.Y * dt
	})
	return ecs.SystemResult{}
}
