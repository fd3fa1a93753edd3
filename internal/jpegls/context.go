package jpegls

// Context holds the adaptive statistics for one coding context. A is
// the accumulated error magnitude, B the bias accumulator, C the bias
// correction, N the occurrence count.
type Context struct {
	A int
	B int
	C int
	N int
}

// ComputeK derives the Golomb parameter k = ceil(log2(A/N)), capped.
func (ctx *Context) ComputeK(maxK int) int {
	if ctx.N == 0 {
		return 0
	}
	k := 0
	for temp := ctx.N; temp < ctx.A; temp <<= 1 {
		k++
		if k >= maxK {
			return maxK
		}
	}
	return k
}

// Update folds a coded error value into the context statistics and
// adjusts the bias correction, per ITU-T T.87 A.6.
func (ctx *Context) Update(errval, reset int) {
	ctx.B += errval
	if errval < 0 {
		ctx.A -= errval
	} else {
		ctx.A += errval
	}

	if ctx.N == reset {
		ctx.A = (ctx.A + 1) >> 1
		if ctx.B >= 0 {
			ctx.B = (ctx.B + 1) >> 1
		} else {
			ctx.B = -((1 - ctx.B) >> 1)
		}
		ctx.N = (ctx.N + 1) >> 1
	}
	ctx.N++

	if ctx.B <= -ctx.N {
		ctx.B += ctx.N
		if ctx.C > MinC {
			ctx.C--
		}
		if ctx.B <= -ctx.N {
			ctx.B = -ctx.N + 1
		}
	} else if ctx.B > 0 {
		ctx.B -= ctx.N
		if ctx.C < MaxC {
			ctx.C++
		}
		if ctx.B > 0 {
			ctx.B = 0
		}
	}
}

// ContextModel manages the regular and run mode contexts plus the run
// index. Encoder and decoder each hold one and, fed the same decisions,
// evolve identically.
type ContextModel struct {
	contexts    [ContextCount]Context
	runContexts [RunContextCount]Context
	runIndex    int
	params      *Params
}

// NewContextModel initializes all contexts per ITU-T T.87 A.2.1.
func NewContextModel(params *Params) *ContextModel {
	cm := &ContextModel{params: params}
	initA := max((params.Range+32)/64, 2)
	for i := range cm.contexts {
		cm.contexts[i] = Context{A: initA, N: 1}
	}
	for i := range cm.runContexts {
		cm.runContexts[i] = Context{A: initA, N: 1}
	}
	return cm
}

// QuantizeGradient maps a gradient to [-4, 4] using the thresholds,
// per ITU-T T.87 Table A.7.
func QuantizeGradient(g, t1, t2, t3 int) int {
	switch {
	case g < -t3:
		return -4
	case g < -t2:
		return -3
	case g < -t1:
		return -2
	case g < 0:
		return -1
	case g == 0:
		return 0
	case g <= t1:
		return 1
	case g <= t2:
		return 2
	case g <= t3:
		return 3
	default:
		return 4
	}
}

// GetContextIndex maps quantized gradients to a context index in
// [0, 364] and the sign flip that makes the first non-zero gradient
// positive.
func GetContextIndex(q1, q2, q3 int) (idx, sign int) {
	sign = 1
	if q1 < 0 || (q1 == 0 && q2 < 0) || (q1 == 0 && q2 == 0 && q3 < 0) {
		q1, q2, q3 = -q1, -q2, -q3
		sign = -1
	}
	idx = q1*81 + q2*9 + q3
	return
}

// ContextFromGradients quantizes raw gradients and resolves the context.
func (cm *ContextModel) ContextFromGradients(g1, g2, g3 int) (idx, sign int) {
	p := cm.params
	q1 := QuantizeGradient(g1, p.T1, p.T2, p.T3)
	q2 := QuantizeGradient(g2, p.T1, p.T2, p.T3)
	q3 := QuantizeGradient(g3, p.T1, p.T2, p.T3)
	return GetContextIndex(q1, q2, q3)
}

// Context returns the regular context for idx.
func (cm *ContextModel) Context(idx int) *Context {
	return &cm.contexts[idx]
}

// RunContext returns run context 0 or 1.
func (cm *ContextModel) RunContext(idx int) *Context {
	return &cm.runContexts[idx]
}

// RunIndex returns the current position in JTable.
func (cm *ContextModel) RunIndex() int { return cm.runIndex }

// IncrementRunIndex advances after a complete run segment.
func (cm *ContextModel) IncrementRunIndex() {
	if cm.runIndex < len(JTable)-1 {
		cm.runIndex++
	}
}

// DecrementRunIndex backs off after a run interruption.
func (cm *ContextModel) DecrementRunIndex() {
	if cm.runIndex > 0 {
		cm.runIndex--
	}
}

// ResetRunIndex resets the run index at the start of each line.
func (cm *ContextModel) ResetRunIndex() { cm.runIndex = 0 }
