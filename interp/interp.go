package interp

// Interpreter owns the execution threads for one environment. Threads
// share the environment's instance state but nothing else.
type Interpreter struct {
	env     *Env
	threads []*Thread
}

// New creates an interpreter over the environment.
func New(env *Env) *Interpreter {
	return &Interpreter{env: env}
}

// Thread returns thread n, creating it and any lower-numbered threads
// on first use. Test harnesses run everything on thread 0.
func (i *Interpreter) Thread(n int) *Thread {
	for len(i.threads) <= n {
		i.threads = append(i.threads, &Thread{env: i.env})
	}
	return i.threads[n]
}

// Env returns the environment the interpreter executes against.
func (i *Interpreter) Env() *Env { return i.env }
