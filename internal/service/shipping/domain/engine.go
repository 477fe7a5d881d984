package domain

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// SurchargeRule 以 CEL 表达式描述按件加收的条件，表达式变量为 item
type SurchargeRule struct {
	Name      string
	Condition string
	PerUnit   decimal.Decimal
	Reason    string
}

type Config struct {
	FlatFee           decimal.Decimal
	FreeThreshold     decimal.Decimal // <= 0 表示不包邮
	CODFee            decimal.Decimal
	VolumetricDivisor float64
	Surcharges        []SurchargeRule
}

// DefaultConfig 与线上默认费率一致
func DefaultConfig() Config {
	return Config{
		FlatFee:           decimal.RequireFromString("3.50"),
		FreeThreshold:     decimal.RequireFromString("35.00"),
		CODFee:            decimal.RequireFromString("4.00"),
		VolumetricDivisor: 5000,
		Surcharges: []SurchargeRule{
			{Name: "heavy_item", Condition: "item.billableKg > 5.0", PerUnit: decimal.RequireFromString("1.50"), Reason: "billable weight over 5kg"},
			{Name: "very_heavy_item", Condition: "item.billableKg > 10.0", PerUnit: decimal.RequireFromString("2.50"), Reason: "billable weight over 10kg"},
			{Name: "oversize_item", Condition: "item.longestSideCm > 100.0", PerUnit: decimal.RequireFromString("3.00"), Reason: "longest side over 100cm"},
		},
	}
}

type compiledRule struct {
	SurchargeRule
	program cel.Program
}

// Engine 是纯计算组件：相同输入永远得到相同报价，可以被并发调用
type Engine struct {
	cfg   Config
	rules []compiledRule
}

// NewEngine 编译所有加收规则，任何一条表达式非法都会返回错误
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.FlatFee.IsNegative() || cfg.CODFee.IsNegative() {
		return nil, fmt.Errorf("shipping fees must not be negative")
	}
	// 金额统一到分，保证轨迹之和与 Cost 完全一致
	cfg.FlatFee = cfg.FlatFee.Round(2)
	cfg.FreeThreshold = cfg.FreeThreshold.Round(2)
	cfg.CODFee = cfg.CODFee.Round(2)

	env, err := cel.NewEnv(cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	rules := make([]compiledRule, 0, len(cfg.Surcharges))
	for _, r := range cfg.Surcharges {
		if r.PerUnit.IsNegative() {
			return nil, fmt.Errorf("surcharge %s: negative per-unit amount", r.Name)
		}
		r.PerUnit = r.PerUnit.Round(2)
		ast, iss := env.Compile(r.Condition)
		if iss.Err() != nil {
			return nil, fmt.Errorf("surcharge %s: %w", r.Name, iss.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("surcharge %s: condition must evaluate to bool, got %v", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("surcharge %s: %w", r.Name, err)
		}
		rules = append(rules, compiledRule{SurchargeRule: r, program: prg})
	}
	return &Engine{cfg: cfg, rules: rules}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Quote 计算运费；返回的 RuleTrace 之和与 Breakdown 之和都等于 Cost
func (e *Engine) Quote(req QuoteRequest) (*Quote, error) {
	method, err := NormalizeMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if req.Subtotal.IsNegative() {
		return nil, fmt.Errorf("%w: negative subtotal", ErrInvalidInput)
	}
	for _, it := range req.Items {
		if err := it.validate(); err != nil {
			return nil, err
		}
	}

	q := &Quote{Method: method, RuleTrace: []RuleLine{}}
	switch method {
	case MethodPickup:
		q.RuleTrace = append(q.RuleTrace, RuleLine{Rule: "pickup", Amount: decimal.Zero, Reason: "customer collects the order"})
	case MethodCourier:
		if err := e.courier(req, q); err != nil {
			return nil, err
		}
	case MethodCourierCOD:
		if err := e.courier(req, q); err != nil {
			return nil, err
		}
		q.Breakdown.COD = e.cfg.CODFee
		q.RuleTrace = append(q.RuleTrace, RuleLine{Rule: "cod_fee", Amount: e.cfg.CODFee, Reason: "cash on delivery handling"})
	}

	q.Cost = q.Breakdown.Total()
	return q, nil
}

func (e *Engine) courier(req QuoteRequest, q *Quote) error {
	// 1. 满额包邮：整单快递费（含加收）全部免除
	if e.cfg.FreeThreshold.IsPositive() && req.Subtotal.GreaterThanOrEqual(e.cfg.FreeThreshold) {
		q.RuleTrace = append(q.RuleTrace, RuleLine{
			Rule:   "free_shipping",
			Amount: decimal.Zero,
			Reason: fmt.Sprintf("subtotal %s reaches free shipping threshold %s", req.Subtotal.StringFixed(2), e.cfg.FreeThreshold.StringFixed(2)),
		})
		return nil
	}

	// 2. 基础运费
	q.Breakdown.Base = e.cfg.FlatFee
	q.RuleTrace = append(q.RuleTrace, RuleLine{Rule: "base_fee", Amount: e.cfg.FlatFee, Reason: "courier flat fee"})

	// 3. 按件加收，每个 (规则, 商品) 一行
	for _, it := range req.Items {
		vars := map[string]interface{}{
			"item": map[string]interface{}{
				"weightKg":      it.WeightKg,
				"billableKg":    it.billableKg(e.cfg.VolumetricDivisor),
				"lengthCm":      it.LengthCm,
				"widthCm":       it.WidthCm,
				"heightCm":      it.HeightCm,
				"longestSideCm": it.longestSideCm(),
				"quantity":      int64(it.Quantity),
			},
		}
		for _, r := range e.rules {
			out, _, err := r.program.Eval(vars)
			if err != nil {
				return fmt.Errorf("evaluate surcharge %s: %w", r.Name, err)
			}
			matched, ok := out.Value().(bool)
			if !ok || !matched {
				continue
			}
			amount := r.PerUnit.Mul(decimal.NewFromInt(int64(it.Quantity)))
			q.Breakdown.PerItem = q.Breakdown.PerItem.Add(amount)
			q.RuleTrace = append(q.RuleTrace, RuleLine{
				Rule:      r.Name,
				Amount:    amount,
				Reason:    fmt.Sprintf("%s (%d x %s)", r.Reason, it.Quantity, r.PerUnit.StringFixed(2)),
				ProductID: it.ProductID,
			})
		}
	}
	return nil
}
