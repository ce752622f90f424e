package eval

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/open-feature/flagx/core/pkg/model"
	"go.uber.org/zap"
)

// matchRule reports whether all (AND) or any (OR) conditions hold and, when the
// rule carries a JsonLogic expression, whether it is truthy for the context.
func (e *Evaluator) matchRule(rule model.TargetingRule, ctx model.EvaluationContext) bool {
	if !e.matchConditions(rule, ctx) {
		return false
	}
	if len(rule.Expression) == 0 {
		return true
	}
	return e.matchExpression(rule, ctx)
}

func (e *Evaluator) matchConditions(rule model.TargetingRule, ctx model.EvaluationContext) bool {
	if len(rule.Conditions) == 0 {
		// a rule without conditions only narrows through its expression
		return len(rule.Expression) > 0
	}
	if rule.Operator == model.RuleOr {
		for _, c := range rule.Conditions {
			if e.matchCondition(c, ctx) {
				return true
			}
		}
		return false
	}
	for _, c := range rule.Conditions {
		if !e.matchCondition(c, ctx) {
			return false
		}
	}
	return true
}

// matchCondition never panics; any fault is a non-match.
func (e *Evaluator) matchCondition(c model.TargetingCondition, ctx model.EvaluationContext) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("targeting condition fault",
				zap.String("attribute", c.Attribute), zap.Any("panic", r))
			matched = false
		}
	}()

	actual, present := ctx.Lookup(c.Attribute)
	if !present {
		// absent attributes satisfy only the negated operators
		switch c.Operator {
		case model.OpNotEquals, model.OpNotContains, model.OpNotIn:
			return true
		default:
			return false
		}
	}

	switch c.Operator {
	case model.OpEquals:
		return equalValues(actual, c.Value)
	case model.OpNotEquals:
		return !equalValues(actual, c.Value)
	case model.OpContains:
		return contains(actual, c.Value)
	case model.OpNotContains:
		return !contains(actual, c.Value)
	case model.OpGreaterThan:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return okA && okB && a > b
	case model.OpLessThan:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return okA && okB && a < b
	case model.OpIn:
		return inList(actual, c.Value)
	case model.OpNotIn:
		return !inList(actual, c.Value)
	case model.OpRegex:
		re, ok := e.pattern(fmt.Sprint(c.Value))
		return ok && re.MatchString(fmt.Sprint(actual))
	default:
		e.logger.Debug("unknown condition operator", zap.String("operator", string(c.Operator)))
		return false
	}
}

func (e *Evaluator) pattern(src string) (*regexp.Regexp, bool) {
	if cached, ok := e.patterns.Load(src); ok {
		re, valid := cached.(*regexp.Regexp)
		return re, valid
	}
	re, err := regexp.Compile(src)
	if err != nil {
		e.logger.Debug("invalid regex in targeting condition", zap.String("pattern", src), zap.Error(err))
		e.patterns.Store(src, err)
		return nil, false
	}
	e.patterns.Store(src, re)
	return re, true
}

func (e *Evaluator) matchExpression(rule model.TargetingRule, ctx model.EvaluationContext) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("jsonlogic expression fault", zap.String("rule_id", rule.ID), zap.Any("panic", r))
			matched = false
		}
	}()

	data, err := json.Marshal(ctx.Flatten())
	if err != nil {
		return false
	}
	out, err := jsonlogic.ApplyRaw(rule.Expression, data)
	if err != nil {
		e.logger.Debug("jsonlogic expression failed", zap.String("rule_id", rule.ID), zap.Error(err))
		return false
	}
	var result any
	if err := json.Unmarshal(out, &result); err != nil {
		return false
	}
	return truthy(result)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

func contains(actual, expected any) bool {
	if list, ok := toList(actual); ok {
		for _, item := range list {
			if equalValues(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected))
}

func inList(actual, list any) bool {
	items, ok := toList(list)
	if !ok {
		return false
	}
	for _, item := range items {
		if equalValues(actual, item) {
			return true
		}
	}
	return false
}

func toList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
