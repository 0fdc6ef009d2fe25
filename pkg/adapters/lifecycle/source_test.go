package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	silolifecycle "github.com/aretw0/silo/pkg/adapters/lifecycle"
	"github.com/aretw0/silo/pkg/core"
)

func TestEventSource_Forwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan core.Event, 2)
	events <- core.Event{Kind: core.EventCreated, ID: "1"}
	events <- core.Event{Kind: core.EventDeleted, ID: "1", Affected: 1}
	close(events)

	src := silolifecycle.NewEventSource(events)
	require.NoError(t, src.Start(ctx))

	var got []string
	for e := range src.Events() {
		got = append(got, e.String())
	}
	require.Len(t, got, 2)
	assert.Equal(t, core.Event{Kind: core.EventCreated, ID: "1"}.String(), got[0])
}

func TestChangeSource_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	changes := make(chan core.Change)
	src := silolifecycle.NewChangeSource(changes)
	require.NoError(t, src.Start(ctx))

	go func() { changes <- core.Change{Type: core.ChangeCreate, ID: "a"} }()
	select {
	case e := <-src.Events():
		assert.Equal(t, "CREATE a", e.String())
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-src.Events()
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}
