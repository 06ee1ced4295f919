package jsrt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// RemoteCaller delivers a call to a remote function back to the VM that owns
// it. It must not block; the usual implementation schedules onto the JS thread.
type RemoteCaller func(fn *shareable.RemoteFunction, args []value.Value)

// VM is a goja runtime confined to one thread.
type VM struct {
	name string
	rt   *goja.Runtime

	// mu guards the caches below so Forget can run on any goroutine.
	mu sync.Mutex
	// identity maps objects this VM handed out, or captured by identity,
	// back to their Shareable.
	identity map[*goja.Object]shareable.Shareable
	// materialized maps identity kinds to their object in this VM.
	materialized map[shareable.Shareable]goja.Value

	remote RemoteCaller
	logger *slog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithRemoteCaller sets how remote functions owned by other VMs are called.
// Without one, calling such a function throws.
func WithRemoteCaller(fn RemoteCaller) Option {
	return func(vm *VM) {
		vm.remote = fn
	}
}

// WithLogger sets the logger that console.log writes to.
func WithLogger(l *slog.Logger) Option {
	return func(vm *VM) {
		vm.logger = l
	}
}

// New creates a VM named name ("js" or "ui" by convention) with console.log
// and the worklet authoring helper installed.
func New(name string, opts ...Option) *VM {
	vm := &VM{
		name:         name,
		rt:           goja.New(),
		identity:     make(map[*goja.Object]shareable.Shareable),
		materialized: make(map[shareable.Shareable]goja.Value),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.installGlobals()
	return vm
}

// Name returns the VM name.
func (vm *VM) Name() string {
	return vm.name
}

// Runtime exposes the underlying goja runtime.
func (vm *VM) Runtime() *goja.Runtime {
	return vm.rt
}

func (vm *VM) installGlobals() {
	console := vm.rt.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.logger.Info("console.log", "runtime", vm.name, "message", strings.Join(parts, " "))
		return goja.Undefined()
	})
	vm.rt.Set("console", console)

	// worklet(fn, closure) marks fn as a worklet the way the authoring
	// layer does: it records the closure and a hash of the source.
	vm.rt.Set("worklet", func(call goja.FunctionCall) goja.Value {
		fn, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(vm.rt.NewTypeError("worklet: first argument must be a function"))
		}
		if _, callable := goja.AssertFunction(fn); !callable {
			panic(vm.rt.NewTypeError("worklet: first argument must be a function"))
		}
		closure := call.Argument(1)
		if goja.IsUndefined(closure) || goja.IsNull(closure) {
			closure = vm.rt.NewObject()
		}
		fn.Set("__closure", closure)
		fn.Set("__workletHash", WorkletHash(fn.String()))
		return fn
	})
}

// Run evaluates src and converts the completion value.
func (vm *VM) Run(src string) (value.Value, error) {
	res, err := vm.rt.RunString(src)
	if err != nil {
		return nil, fmt.Errorf("%s runtime: %w", vm.name, err)
	}
	return vm.ToValue(res)
}

// Set defines a global from a plain value.
func (vm *VM) Set(name string, v value.Value) error {
	jv, err := vm.FromValue(v)
	if err != nil {
		return err
	}
	return vm.rt.Set(name, jv)
}

// Get converts a global to a plain value.
func (vm *VM) Get(name string) (value.Value, error) {
	return vm.ToValue(vm.rt.Get(name))
}

// SetFunc defines a global function backed by Go.
func (vm *VM) SetFunc(name string, fn worklet.Callable) error {
	return vm.rt.Set(name, vm.hostFunction(name, fn))
}

// Worklet evaluates src to a function, marks it as a worklet closing over
// closure, and captures it. closure must be an object or undefined; Opaque
// members carrying Shareables (mutable values, other worklets) are
// materialized so the worklet sees them by identity.
func (vm *VM) Worklet(src string, closure value.Value) (*shareable.Worklet, error) {
	fnVal, err := vm.rt.RunString("(" + src + ")")
	if err != nil {
		return nil, fmt.Errorf("%s runtime: compile worklet: %w", vm.name, err)
	}
	fn, ok := fnVal.(*goja.Object)
	if _, callable := goja.AssertFunction(fnVal); !ok || !callable {
		return nil, fmt.Errorf("%s runtime: worklet source is not a function", vm.name)
	}

	if closure == nil {
		closure = value.Undefined{}
	}
	switch closure.(type) {
	case value.Object, value.Undefined:
	default:
		return nil, fmt.Errorf("%s runtime: worklet closure must be an object, got %s", vm.name, value.Kind(closure))
	}
	closureVal, err := vm.FromValue(closure)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(closureVal) {
		closureVal = vm.rt.NewObject()
	}

	fn.Set("__closure", closureVal)
	fn.Set("__workletHash", WorkletHash(src))

	s, err := vm.MakeShareableClone(fn, false)
	if err != nil {
		return nil, err
	}
	return s.(*shareable.Worklet), nil
}

// Forget drops this VM's cached materializations of s. Safe from any goroutine.
func (vm *VM) Forget(s shareable.Shareable) {
	switch s.(type) {
	case nil, shareable.Scalar, shareable.String, shareable.Array, shareable.Object:
		return
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	if obj, ok := vm.materialized[s].(*goja.Object); ok {
		delete(vm.identity, obj)
	}
	delete(vm.materialized, s)

	switch val := s.(type) {
	case *shareable.Worklet:
		val.Forget(vm)
	case *shareable.Handle:
		val.Forget(vm)
	case *shareable.Retaining:
		val.Forget(vm)
	}
}

// Cached returns how many shareables this VM holds a materialization or
// clone origin for.
func (vm *VM) Cached() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return max(len(vm.materialized), len(vm.identity))
}

// Interrupt aborts the script currently running on the VM, if any.
// Safe from any goroutine.
func (vm *VM) Interrupt(reason string) {
	vm.rt.Interrupt(reason)
}

func (vm *VM) lookupIdentity(obj *goja.Object) (shareable.Shareable, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	s, ok := vm.identity[obj]
	return s, ok
}

func (vm *VM) lookupMaterialized(s shareable.Shareable) (goja.Value, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	v, ok := vm.materialized[s]
	return v, ok
}

func (vm *VM) remember(s shareable.Shareable, v goja.Value) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.materialized[s] = v
	if obj, ok := v.(*goja.Object); ok {
		vm.identity[obj] = s
	}
}
