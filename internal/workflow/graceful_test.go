package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imtaco/liveroom/internal/log"
)

func TestShutdownRunsEveryStep(t *testing.T) {
	var ran []string
	step := func(name string, err error) ShutdownStep {
		return ShutdownStep{Name: name, Run: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	ok := Shutdown(context.Background(), log.NewNop(), time.Second,
		step("server", nil),
		step("agent", assert.AnError),
		step("store", nil),
	)
	assert.True(t, ok)
	assert.Equal(t, []string{"server", "agent", "store"}, ran)
}

func TestShutdownTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ok := Shutdown(context.Background(), log.NewNop(), 20*time.Millisecond, ShutdownStep{
		Name: "stuck",
		Run: func(context.Context) error {
			<-release
			return nil
		},
	})
	assert.False(t, ok)
}

func TestShutdownRecoversPanic(t *testing.T) {
	ok := Shutdown(context.Background(), log.NewNop(), time.Second, ShutdownStep{
		Name: "boom",
		Run:  func(context.Context) error { panic("boom") },
	})
	assert.True(t, ok)
}

func TestWaitGracefulShutdownOnContextEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	WaitGracefulShutdown(ctx, log.NewNop(), time.Second, ShutdownStep{
		Name: "flag",
		Run: func(context.Context) error {
			ran = true
			return nil
		},
	})
	assert.True(t, ran)
}
