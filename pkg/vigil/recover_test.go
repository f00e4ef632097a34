package vigil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstApplicationFrame(frames []StackFrame) StackFrame {
	for _, f := range frames {
		if !f.IsNative {
			return f
		}
	}
	return StackFrame{}
}

func TestRecover_CapturesPanic(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	func() {
		defer Recover(context.Background(), collector)
		panic("test panic")
	}()

	records := sink.getRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "panic(string)", records[0].ExceptionType)
	assert.Equal(t, "test panic", records[0].Message)
}

func TestRecover_StackStartsAtPanicSite(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	func() {
		defer Recover(context.Background(), collector)
		panic("stack trace test")
	}()

	records := sink.getRecords()
	require.Len(t, records, 1)
	top := firstApplicationFrame(records[0].StackTrace)
	assert.True(t, strings.HasPrefix(top.MethodName, "github.com/strongdm/vigil/pkg/vigil.TestRecover_StackStartsAtPanicSite"),
		"first application frame = %q", top.MethodName)
	for _, f := range records[0].StackTrace {
		assert.NotContains(t, f.MethodName, "vigil.Recover")
		assert.NotContains(t, f.MethodName, "vigil.capturePanic")
	}
}

func TestRecover_ReturnsRecoveredValue(t *testing.T) {
	collector := NewCollector()

	var got any
	func() {
		defer func() {
			got = RecoverValue(context.Background(), collector, recover())
		}()
		panic("return value test")
	}()

	assert.Equal(t, "return value test", got)
}

func TestRecover_NoPanic_NoRecord(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	func() {
		defer Recover(context.Background(), collector)
		// No panic
	}()

	assert.Empty(t, sink.getRecords())
	assert.Nil(t, RecoverValue(context.Background(), collector, nil))
}

func TestRecover_DoesNotRePanic(t *testing.T) {
	collector := NewCollector(WithSink(&testSink{writeErr: errors.New("sink down")}))

	assert.NotPanics(t, func() {
		defer Recover(context.Background(), collector)
		panic("should be caught")
	})
}

func TestRecover_NilCollector(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover(context.Background(), nil)
		panic("no collector")
	})
}

func TestRecover_HandlesErrorPanic(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	func() {
		defer Recover(context.Background(), collector)
		panic(&testError{msg: "error panic"})
	}()

	records := sink.getRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "error panic", records[0].Message)
	assert.Equal(t, "*vigil.testError", records[0].ExceptionType)
}

func TestRecover_RuntimeError(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	func() {
		defer Recover(context.Background(), collector,
			WithLocals(map[string]any{"items": []int{1, 2, 3}, "index": 10}))
		items := []int{1, 2, 3}
		index := 10
		fmt.Println(items[index])
	}()

	records := sink.getRecords()
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "runtime.boundsError", r.ExceptionType)
	assert.Contains(t, r.Message, "index out of range [10] with length 3")
	assert.Len(t, r.LocalVariables["items"].ArrayElements, 3)
}

func TestRecover_IncludesContextID(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))
	ctx := WithContextID(context.Background(), 12345)

	func() {
		defer Recover(ctx, collector)
		panic("context id test")
	}()

	records := sink.getRecords()
	require.Len(t, records, 1)
	assert.Equal(t, uint64(12345), records[0].Context[ContextKeyContextID])
}

// testError is a custom error type for testing.
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
