package core

import (
	"fmt"
	"strings"

	xerr "equisense/pkg/error"
)

// Validator 按字段集合校验载荷并计算质量分。
// 质量分 = 期望字段中实际存在的比例 × QualityCeiling。
type Validator struct {
	Required       []string // 最少必需字段，缺任意一个即不可用
	Expected       []string // 完整度计算所用的字段全集
	QualityCeiling float64  // 该数据源质量分上限，抓取类数据源应低于 1
}

// Validate 返回是否可用、质量分和存在的字段；不可用时质量分为 0
func (v Validator) Validate(payload Payload) (bool, float64, []string) {
	fields := payload.Fields()
	for _, f := range v.Required {
		if !payload.Has(f) {
			return false, 0, fields
		}
	}

	ceiling := v.QualityCeiling
	if ceiling <= 0 || ceiling > 1 {
		ceiling = 1
	}
	if len(v.Expected) == 0 {
		return true, ceiling, fields
	}

	present := 0
	for _, f := range v.Expected {
		if payload.Has(f) {
			present++
		}
	}
	completeness := float64(present) / float64(len(v.Expected))
	return true, completeness * ceiling, fields
}

// Missing 返回缺失的必需字段
func (v Validator) Missing(payload Payload) []string {
	var missing []string
	for _, f := range v.Required {
		if !payload.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// ValidationError 构造带缺失字段信息的校验错误
func (v Validator) ValidationError(source string, payload Payload) error {
	missing := v.Missing(payload)
	return xerr.NewError(xerr.CodeValidationFailed,
		fmt.Sprintf("%s: missing required fields [%s]", source, strings.Join(missing, ","))).
		WithContext("missing", missing)
}
