package states

// ExprCellOption configures an expression-backed computed cell.
type ExprCellOption func(*exprCellConfig)

type exprCellConfig struct {
	evaluator Evaluator
	logger    EvaluatorLogger
	inputs    []string
	args      map[string]any
	metadata  map[string]any
}

// ExprWithEvaluator selects the evaluator engine. Defaults to the expr
// engine with a fresh program cache.
func ExprWithEvaluator(evaluator Evaluator) ExprCellOption {
	return func(cfg *exprCellConfig) {
		if evaluator != nil {
			cfg.evaluator = evaluator
		}
	}
}

// ExprWithLogger routes evaluation attempts to logger.
func ExprWithLogger(logger EvaluatorLogger) ExprCellOption {
	return func(cfg *exprCellConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// ExprWithInputs restricts the snapshot to the named cells. Without it the
// expression sees every cell registered at evaluation time.
func ExprWithInputs(names ...string) ExprCellOption {
	return func(cfg *exprCellConfig) {
		cfg.inputs = append(cfg.inputs, names...)
	}
}

// ExprWithArgs injects static arguments made available as "args".
func ExprWithArgs(args map[string]any) ExprCellOption {
	return func(cfg *exprCellConfig) {
		cfg.args = args
	}
}

// ExprWithMetadata injects metadata made available as "metadata".
func ExprWithMetadata(metadata map[string]any) ExprCellOption {
	return func(cfg *exprCellConfig) {
		cfg.metadata = metadata
	}
}

// NewExprComputed constructs a computed cell whose value is an expression
// over other cells in the registry. Input cells become expression variables
// by name, and each evaluation registers them as dependencies so the cell
// recomputes when any of them settles.
func NewExprComputed(r *Registry, name, expression string, opts ...ExprCellOption) *Computed[any] {
	cfg := exprCellConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.evaluator == nil {
		cfg.evaluator = NewExprEvaluator(ExprWithProgramCache(NewMapProgramCache()))
	}
	if cfg.logger == nil {
		cfg.logger = noopEvaluatorLogger{}
	}

	return NewComputed(r, name, func(t *Track) (any, error) {
		inputs := cfg.inputs
		if len(inputs) == 0 {
			inputs = snapshotInputs(r, name)
		}
		snapshot := make(map[string]any, len(inputs))
		for _, input := range inputs {
			if input == name {
				continue
			}
			if value, ok := r.readAnyCell(input, t); ok {
				snapshot[input] = value
			}
		}
		return evaluateLogged(cfg.evaluator, cfg.logger, EvalContext{
			Snapshot: snapshot,
			Args:     cfg.args,
			Metadata: cfg.metadata,
			Cell:     name,
		}, expression)
	})
}

func snapshotInputs(r *Registry, self string) []string {
	names := r.Names()
	inputs := names[:0]
	for _, n := range names {
		if n != self {
			inputs = append(inputs, n)
		}
	}
	return inputs
}
