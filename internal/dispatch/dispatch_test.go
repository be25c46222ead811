package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calmd/internal/calmerr"
)

// bareDispatcher builds a Dispatcher with only the handlers under test
// registered, bypassing New()'s full component wiring so these tests don't
// need a live metadata store or embedding engine.
func bareDispatcher() *Dispatcher {
	return &Dispatcher{Name: "calmd-test", Version: "0.0.0-test", handlers: make(map[string]Handler)}
}

func TestCallUnknownTool(t *testing.T) {
	d := bareDispatcher()
	envelope := d.Call(context.Background(), "does_not_exist", nil)

	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok, "expected an error envelope, got %#v", envelope)
	assert.Equal(t, string(calmerr.KindUnknownTool), errObj["type"])
}

func TestCallRecoversFromPanic(t *testing.T) {
	d := bareDispatcher()
	d.register("boom", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		panic("kaboom")
	})

	envelope := d.Call(context.Background(), "boom", nil)
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok, "expected an error envelope, got %#v", envelope)
	assert.Equal(t, string(calmerr.KindInternal), errObj["type"])
}

func TestCallRespectsCanceledContext(t *testing.T) {
	d := bareDispatcher()
	d.register("noop", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "should not run", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	envelope := d.Call(ctx, "noop", nil)
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok, "expected an error envelope, got %#v", envelope)
	assert.Equal(t, string(calmerr.KindTimeout), errObj["type"])
}

func TestCallTranslatesTypedError(t *testing.T) {
	d := bareDispatcher()
	d.register("fails_validation", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, calmerr.New(calmerr.KindValidation, "missing required argument %q", "text")
	})

	envelope := d.Call(context.Background(), "fails_validation", nil)
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(calmerr.KindValidation), errObj["type"])
	assert.Contains(t, errObj["message"], "text")
}

func TestCallBareStringResult(t *testing.T) {
	d := bareDispatcher()
	d.register("greet", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "hello", nil
	})

	envelope := d.Call(context.Background(), "greet", nil)
	assert.Equal(t, "hello", envelope["result"])
}

func TestCallStructResultRoundTripsToPlainMap(t *testing.T) {
	d := bareDispatcher()
	d.register("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return struct {
			OK    bool   `json:"ok"`
			Value string `json:"value"`
		}{OK: true, Value: "x"}, nil
	})

	envelope := d.Call(context.Background(), "echo", nil)
	assert.Equal(t, true, envelope["ok"])
	assert.Equal(t, "x", envelope["value"])
}

func TestPing(t *testing.T) {
	d := New("calmd-test", "1.2.3")
	envelope := d.Call(context.Background(), "ping", nil)
	assert.Equal(t, "healthy", envelope["status"])
	assert.Equal(t, "calmd-test", envelope["server"])
	assert.Equal(t, "1.2.3", envelope["version"])
}

func TestCallWithNeverCanceledContextStillDispatches(t *testing.T) {
	d := bareDispatcher()
	d.register("slow_ok", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "done", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	envelope := d.Call(ctx, "slow_ok", nil)
	assert.Equal(t, "done", envelope["result"])
}
