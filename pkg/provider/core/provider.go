package core

import "context"

// DataSource 外部数据源的统一契约。
// FetchCompanyData 从不返回 error：所有失败都体现在 DataSourceResult 中。
type DataSource interface {
	// Name 返回数据源名称，用于标识、日志和可靠性统计
	Name() string

	// Priority 返回配置的优先级，数值越小越优先；用于质量分相同时的确定性排序
	Priority() int

	// IsConfigured 是否具备发起请求所需的凭证
	IsConfigured() bool

	// FetchCompanyData 获取 key 对应的数据
	FetchCompanyData(ctx context.Context, key string) DataSourceResult

	// Validate 校验载荷，返回是否可用、质量分和存在的字段
	Validate(payload Payload) (valid bool, quality float64, fields []string)
}

// Closable 需要清理资源的数据源应实现此接口
type Closable interface {
	Close() error
}
