// recover.go provides the Recover helper for standalone panic recovery.
// Use this in HTTP handlers, goroutines, or other code outside of Runner.

package vigil

import "context"

// Recover captures a panic to the collector and returns the recovered value.
// It never re-panics. Non-error panic values are captured as *PanicError;
// runtime errors keep their own type (e.g. runtime.boundsError).
//
// Use in defer:
//
//	func handler(ctx context.Context) {
//	    defer vigil.Recover(ctx, collector)
//	    // code that might panic
//	}
//
// Or to capture the recovered value:
//
//	func handler(ctx context.Context) (err error) {
//	    defer func() {
//	        if r := vigil.RecoverValue(ctx, collector, recover()); r != nil {
//	            err = fmt.Errorf("panic: %v", r)
//	        }
//	    }()
//	    // code that might panic
//	}
func Recover(ctx context.Context, collector Collector, opts ...CaptureOption) any {
	r := recover()
	if r == nil {
		return nil
	}
	capturePanic(ctx, collector, r, opts)
	return r
}

// RecoverValue captures a value already obtained from recover(). It exists
// for deferred closures, where calling Recover would not stop the panic.
func RecoverValue(ctx context.Context, collector Collector, recovered any, opts ...CaptureOption) any {
	if recovered == nil {
		return nil
	}
	capturePanic(ctx, collector, recovered, opts)
	return recovered
}

func capturePanic(ctx context.Context, collector Collector, recovered any, opts []CaptureOption) {
	if collector == nil {
		return
	}
	// Frames above the panic site belong to the runtime and are marked native;
	// skip this helper and its exported caller.
	opts = append(opts, WithSkip(2))
	collector.Capture(ctx, AsError(recovered), opts...)
}
