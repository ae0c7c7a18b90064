package ecs_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kestrelworks/ecs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestZapLoggerReceivesSystemExecutionEvents(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zap.InfoLevel)
	base := zap.New(core)

	world := seededWorld(t)
	scheduler, err := ecs.NewScheduler(world)
	require.NoError(t, err)

	_, err = scheduler.Builder().WithLogger(ecs.NewZapLogger(base)).Build(nil)
	require.NoError(t, err)

	sys := &testSystem{name: "zap-logged"}
	_, err = scheduler.RegisterWorkGroup(ecs.WorkGroupConfig{ID: "logged", Mode: ecs.WorkGroupModeSynchronized, Systems: []ecs.System{sys}})
	require.NoError(t, err)

	require.NoError(t, scheduler.Tick(context.Background(), time.Millisecond))

	out := buf.String()
	require.Contains(t, out, "system executed")
	require.Contains(t, out, "zap-logged")
	require.Contains(t, out, "logged")
}
