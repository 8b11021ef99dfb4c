package vm

import (
	"io"
	"testing"
)

func benchInterpret(b *testing.B, source string) {
	b.Helper()
	for i := 0; i < b.N; i++ {
		machine := New(Config{Stdout: io.Discard, Stderr: io.Discard})
		if result := machine.Interpret(source); result != InterpretOK {
			b.Fatalf("result = %v", result)
		}
	}
}

func BenchmarkFib(b *testing.B) {
	benchInterpret(b, "fun fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); } fib(15);")
}

func BenchmarkCountingLoop(b *testing.B) {
	benchInterpret(b, "var sum = 0; for (var i = 0; i < 10000; i = i + 1) sum = sum + i;")
}

func BenchmarkStringConcat(b *testing.B) {
	benchInterpret(b, `var s = ""; for (var i = 0; i < 100; i = i + 1) s = s + "x";`)
}

func BenchmarkMethodCalls(b *testing.B) {
	benchInterpret(b, `
	class Counter {
		init() { this.n = 0; }
		bump() { this.n = this.n + 1; }
	}
	var c = Counter();
	for (var i = 0; i < 1000; i = i + 1) c.bump();`)
}

func BenchmarkClosureCalls(b *testing.B) {
	benchInterpret(b, `
	fun adder(n) { fun add(x) { return x + n; } return add; }
	var add5 = adder(5);
	var sum = 0;
	for (var i = 0; i < 1000; i = i + 1) sum = add5(sum);`)
}
