// Package vm implements the stack-oriented bytecode machine: a value
// stack, a call-frame stack, and a global-variable table, executing the
// chunks produced by pkg/compiler one instruction at a time.
package vm

import (
	"fmt"
	"io"
	"math"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/bytecode"
	"github.com/kristofer/lox/pkg/value"
)

// maxFrames bounds call depth so unbounded recursion fails with a clean
// runtime error instead of exhausting the Go stack.
const maxFrames = 255

// Mode distinguishes REPL execution (print lines are prefixed) from file
// execution.
type Mode int

const (
	ModeFile Mode = iota
	ModeREPL
)

// Frame is one call's activation record: the function running, its
// instruction pointer, and the stack index its local slot 0 lives at.
type Frame struct {
	Function *bytecode.Function
	IP       int
	Base     int
}

// VM is a single bytecode interpreter. Globals persist across calls to
// Run, so a REPL driver can reuse one VM across lines.
type VM struct {
	stack   []any
	frames  []Frame
	globals map[string]any
	mode    Mode
	out     io.Writer
}

// New returns a VM with empty globals, ready to Run.
func New(mode Mode, out io.Writer) *VM {
	return &VM{globals: map[string]any{}, mode: mode, out: out}
}

// Run executes fn as the program's entry point, pushing it onto the stack
// as the sentinel just below the script frame's base (stack slot 0 on a
// fresh VM, so the base is 1). On error the stack and frame list are reset
// so a REPL driver can keep using the same VM for the next line.
func (vm *VM) Run(fn *bytecode.Function) error {
	vm.push(fn)
	vm.frames = append(vm.frames, Frame{Function: fn, IP: 0, Base: len(vm.stack)})
	err := vm.run()
	if err != nil {
		vm.stack = vm.stack[:0]
		vm.frames = vm.frames[:0]
	}
	return err
}

func (vm *VM) push(v any) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() any {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) any {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) run() error {
	for {
		frame := &vm.frames[len(vm.frames)-1]
		if frame.IP >= frame.Function.Chunk.Len() {
			return vm.newRuntimeError(bytecode.Position{}, "", "ran off the end of the chunk")
		}
		instr := frame.Function.Chunk.Code[frame.IP]
		pos := frame.Function.Chunk.Positions[frame.IP]
		frame.IP++

		switch instr.Op {
		case bytecode.OpLoad:
			vm.push(instr.Operand)

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpAdd:
			if err := vm.execAdd(pos); err != nil {
				return err
			}

		case bytecode.OpSub:
			if err := vm.execArith(pos, "-", func(a, b float64) (float64, error) { return a - b, nil }); err != nil {
				return err
			}

		case bytecode.OpMul:
			if err := vm.execArith(pos, "*", func(a, b float64) (float64, error) { return a * b, nil }); err != nil {
				return err
			}

		case bytecode.OpDiv:
			if err := vm.execArith(pos, "/", divide); err != nil {
				return err
			}

		case bytecode.OpMod:
			if err := vm.execArith(pos, "%", modulo); err != nil {
				return err
			}

		case bytecode.OpNegate:
			v := vm.pop()
			n, ok := v.(float64)
			if !ok {
				return vm.newRuntimeError(pos, "-", fmt.Sprintf("operand must be a number, got %s", value.TypeName(v)))
			}
			vm.push(-n)

		case bytecode.OpNot:
			vm.push(!value.IsTruthy(vm.pop()))

		case bytecode.OpEq:
			b, a := vm.pop(), vm.pop()
			vm.push(value.IsEqual(a, b))

		case bytecode.OpLess:
			if err := vm.execCompare(pos, "<", func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case bytecode.OpGreater:
			if err := vm.execCompare(pos, ">", func(a, b float64) bool { return a > b }); err != nil {
				return err
			}

		case bytecode.OpDefineGlobal:
			name := instr.Operand.(string)
			vm.globals[name] = vm.pop()

		case bytecode.OpGetGlobal:
			name := instr.Operand.(string)
			v, ok := vm.globals[name]
			if !ok {
				return vm.newRuntimeError(pos, name, fmt.Sprintf("undefined variable '%s'", name))
			}
			vm.push(v)

		case bytecode.OpSetGlobal:
			name := instr.Operand.(string)
			if _, ok := vm.globals[name]; !ok {
				return vm.newRuntimeError(pos, name, fmt.Sprintf("undefined variable '%s'", name))
			}
			vm.globals[name] = vm.peek(0)

		case bytecode.OpGetLocal:
			slot := instr.Operand.(int)
			vm.push(vm.stack[frame.Base+slot])

		case bytecode.OpSetLocal:
			slot := instr.Operand.(int)
			vm.stack[frame.Base+slot] = vm.peek(0)

		case bytecode.OpJump:
			frame.IP += instr.Operand.(int)

		case bytecode.OpJumpForward:
			frame.IP -= instr.Operand.(int)

		case bytecode.OpJumpIfTrue:
			if value.IsTruthy(vm.peek(0)) {
				frame.IP += instr.Operand.(int)
			}

		case bytecode.OpJumpIfFalse:
			if !value.IsTruthy(vm.peek(0)) {
				frame.IP += instr.Operand.(int)
			}

		case bytecode.OpPrint:
			v := vm.pop()
			if vm.mode == ModeREPL {
				fmt.Fprintln(vm.out, "[REPL]: "+value.Stringify(v))
			} else {
				fmt.Fprintln(vm.out, value.Stringify(v))
			}

		case bytecode.OpCall:
			if err := vm.call(instr.Operand.(int), pos); err != nil {
				return err
			}

		case bytecode.OpReturn:
			done := vm.doReturn()
			if done {
				return nil
			}

		case bytecode.OpAddIGlobal, bytecode.OpSubIGlobal, bytecode.OpMulIGlobal, bytecode.OpDivIGlobal, bytecode.OpModIGlobal:
			name := instr.Operand.(string)
			rhs := vm.pop()
			current, ok := vm.globals[name]
			if !ok {
				return vm.newRuntimeError(pos, name, fmt.Sprintf("undefined variable '%s'", name))
			}
			result, err := vm.fusedArith(instr.Op, current, rhs, pos)
			if err != nil {
				return err
			}
			vm.globals[name] = result
			vm.push(result)

		case bytecode.OpAddILocal, bytecode.OpSubILocal, bytecode.OpMulILocal, bytecode.OpDivILocal, bytecode.OpModILocal:
			slot := instr.Operand.(int)
			rhs := vm.pop()
			current := vm.stack[frame.Base+slot]
			result, err := vm.fusedArith(instr.Op, current, rhs, pos)
			if err != nil {
				return err
			}
			vm.stack[frame.Base+slot] = result
			vm.push(result)

		default:
			return vm.newRuntimeError(pos, "", fmt.Sprintf("unhandled opcode %s", instr.Op))
		}
	}
}

func (vm *VM) execAdd(pos bytecode.Position) error {
	b, a := vm.pop(), vm.pop()
	if an, ok := a.(float64); ok {
		if bn, ok := b.(float64); ok {
			vm.push(an + bn)
			return nil
		}
		return vm.newRuntimeError(pos, "+", fmt.Sprintf("operands must be two numbers or a string and a value, got %s and %s", value.TypeName(a), value.TypeName(b)))
	}
	if as, ok := a.(string); ok {
		vm.push(as + value.Stringify(b))
		return nil
	}
	return vm.newRuntimeError(pos, "+", fmt.Sprintf("operands must be two numbers or a string and a value, got %s and %s", value.TypeName(a), value.TypeName(b)))
}

func (vm *VM) execArith(pos bytecode.Position, opName string, apply func(a, b float64) (float64, error)) error {
	b, a := vm.pop(), vm.pop()
	an, aok := a.(float64)
	bn, bok := b.(float64)
	if !aok || !bok {
		return vm.newRuntimeError(pos, opName, fmt.Sprintf("operands must be numbers, got %s and %s", value.TypeName(a), value.TypeName(b)))
	}
	result, err := apply(an, bn)
	if err != nil {
		return vm.newRuntimeError(pos, opName, err.Error())
	}
	vm.push(result)
	return nil
}

func (vm *VM) execCompare(pos bytecode.Position, opName string, cmp func(a, b float64) bool) error {
	b, a := vm.pop(), vm.pop()
	an, aok := a.(float64)
	bn, bok := b.(float64)
	if !aok || !bok {
		return vm.newRuntimeError(pos, opName, fmt.Sprintf("operands must be numbers, got %s and %s", value.TypeName(a), value.TypeName(b)))
	}
	vm.push(cmp(an, bn))
	return nil
}

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivByZero
	}
	return a / b, nil
}

func modulo(a, b float64) (float64, error) {
	bi := math.Trunc(b)
	if bi == 0 {
		return 0, errDivByZero
	}
	return math.Mod(math.Trunc(a), bi), nil
}

// fusedKind maps a fused compound-assignment opcode to its arithmetic
// function and display operator, shared between the global and local forms.
func fusedKind(op bytecode.OpCode) (apply func(a, b float64) (float64, error), opName string) {
	switch op {
	case bytecode.OpAddIGlobal, bytecode.OpAddILocal:
		return func(a, b float64) (float64, error) { return a + b, nil }, "+="
	case bytecode.OpSubIGlobal, bytecode.OpSubILocal:
		return func(a, b float64) (float64, error) { return a - b, nil }, "-="
	case bytecode.OpMulIGlobal, bytecode.OpMulILocal:
		return func(a, b float64) (float64, error) { return a * b, nil }, "*="
	case bytecode.OpDivIGlobal, bytecode.OpDivILocal:
		return divide, "/="
	default:
		return modulo, "%="
	}
}

func (vm *VM) fusedArith(op bytecode.OpCode, current, rhs any, pos bytecode.Position) (any, error) {
	apply, opName := fusedKind(op)
	cn, cok := current.(float64)
	rn, rok := rhs.(float64)
	if !cok || !rok {
		return nil, vm.newRuntimeError(pos, opName, fmt.Sprintf("operands must be numbers, got %s and %s", value.TypeName(current), value.TypeName(rhs)))
	}
	result, err := apply(cn, rn)
	if err != nil {
		return nil, vm.newRuntimeError(pos, opName, err.Error())
	}
	return result, nil
}

func (vm *VM) call(argc int, pos bytecode.Position) error {
	calleeIdx := len(vm.stack) - argc - 1
	callee := vm.stack[calleeIdx]
	fn, ok := callee.(*bytecode.Function)
	if !ok {
		return vm.newRuntimeError(pos, "call", fmt.Sprintf("can only call functions, got %s", value.TypeName(callee)))
	}
	if fn.Arity != argc {
		return vm.newRuntimeError(pos, fn.Name, fmt.Sprintf("expected %d arguments but got %d", fn.Arity, argc))
	}
	if len(vm.frames) >= maxFrames {
		return vm.newRuntimeError(pos, fn.Name, "call stack overflow")
	}
	vm.frames = append(vm.frames, Frame{Function: fn, IP: 0, Base: calleeIdx})
	return nil
}

// doReturn pops the return value, unwinds the callee's frame and stack
// slots, and pushes the value back at the slot the callee occupied. It
// reports whether the VM has now returned from its outermost frame.
func (vm *VM) doReturn() bool {
	result := vm.pop()
	frame := vm.frames[len(vm.frames)-1]
	vm.stack = vm.stack[:frame.Base]
	vm.push(result)
	vm.frames = vm.frames[:len(vm.frames)-1]
	return len(vm.frames) == 0
}

var errDivByZero = fmt.Errorf("divisor cannot be 0")

func (vm *VM) newRuntimeError(pos bytecode.Position, operand, msg string) *RuntimeError {
	d := diag.AtToken(diag.KindRuntime, diag.Position(pos), operand, false, msg)
	trace := make([]frameTrace, len(vm.frames))
	for i, f := range vm.frames {
		at := f.IP - 1
		if at < 0 {
			at = 0
		}
		if at >= len(f.Function.Chunk.Positions) {
			at = len(f.Function.Chunk.Positions) - 1
		}
		p := f.Function.Chunk.Positions[at]
		trace[i] = frameTrace{name: f.Function.String(), line: p.Line, column: p.Column}
	}
	return &RuntimeError{Diag: d, Trace: trace}
}
